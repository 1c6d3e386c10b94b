/*
energy-audit - Energy auditing for wired and wireless loads
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package devicescli lists and manages the hub's devices over D-Bus.
package devicescli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/TheCacophonyProject/energy-audit/auditclient"
	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"github.com/TheCacophonyProject/energy-audit/registry"
	"github.com/alexflint/go-arg"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	List    *subcommand `arg:"subcommand:list"    help:"List all devices."`
	Show    *Show       `arg:"subcommand:show"    help:"Show one device and its waste summary."`
	History *History    `arg:"subcommand:history" help:"Print recent readings of a device, oldest first."`
	Rename  *Rename     `arg:"subcommand:rename"  help:"Set the display name of a device."`
	Delete  *Delete     `arg:"subcommand:delete"  help:"Delete a wireless device."`
	Watch   *subcommand `arg:"subcommand:watch"   help:"Print waste alerts as they are raised."`
	logging.LogArgs
}

type subcommand struct {
}

type Show struct {
	ID string `arg:"positional,required" help:"Device ID."`
}

type History struct {
	ID    string `arg:"positional,required" help:"Device ID."`
	Count int    `arg:"--count" default:"20" help:"Number of readings, at most the hub's history limit."`
}

type Rename struct {
	ID   string `arg:"positional,required" help:"Device ID."`
	Name string `arg:"positional,required" help:"New display name, 1 to 50 characters."`
}

type Delete struct {
	ID string `arg:"positional,required" help:"Device ID."`
}

var defaultArgs = Args{}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	if err == nil && parser.Subcommand() == nil {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)

	switch {
	case args.List != nil:
		devices, err := auditclient.Devices()
		if err != nil {
			return err
		}
		return printDevices(os.Stdout, devices)
	case args.Show != nil:
		d, err := auditclient.Device(args.Show.ID)
		if err != nil {
			return err
		}
		summary, err := auditclient.Summary(args.Show.ID)
		if err != nil {
			return err
		}
		return printDevice(os.Stdout, d, summary)
	case args.History != nil:
		h, err := auditclient.History(args.History.ID, args.History.Count)
		if err != nil {
			return err
		}
		return printHistory(os.Stdout, h)
	case args.Rename != nil:
		if err := auditclient.Rename(args.Rename.ID, args.Rename.Name); err != nil {
			return explain(err)
		}
		log.Infof("Renamed '%s'", args.Rename.ID)
	case args.Delete != nil:
		if err := auditclient.Delete(args.Delete.ID); err != nil {
			return explain(err)
		}
		log.Infof("Deleted '%s'", args.Delete.ID)
	case args.Watch != nil:
		events, err := auditclient.WasteSignals(log)
		if err != nil {
			return err
		}
		for e := range events {
			fmt.Printf("%s (%s):\n%s\n", e.Name, e.ID, e.Summary)
		}
	}
	return nil
}

// explain adds a hint for errors caused by the request rather than the hub.
func explain(err error) error {
	switch {
	case errors.Is(err, registry.ErrForbidden):
		return fmt.Errorf("%w (only wireless devices can be deleted)", err)
	case errors.Is(err, registry.ErrNotFound):
		return fmt.Errorf("%w (see 'devices list')", err)
	}
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func flagList(f registry.Flags) string {
	s := ""
	add := func(on bool, name string) {
		if !on {
			return
		}
		if s != "" {
			s += ","
		}
		s += name
	}
	add(f.StandbyWaste, "standby")
	add(f.UsageAnomaly, "always-on")
	add(f.EfficiencyIssue, "low-pf")
	if s == "" {
		return "-"
	}
	return s
}

func printDevices(out io.Writer, devices []registry.Device) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tACTIVE\tPOWER (W)\tAVG (W)\tENERGY (kWh)\tFLAGS")
	for _, d := range devices {
		power := "-"
		if d.HasReading {
			power = fmt.Sprintf("%.1f", d.Latest.Power)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\t%.3f\t%s\n",
			d.ID, d.Name, d.Kind, yesNo(d.Active), power, d.AvgPower, d.TotalEnergy, flagList(d.Flags))
	}
	return w.Flush()
}

func printDevice(out io.Writer, d registry.Device, summary string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", d.ID)
	fmt.Fprintf(w, "Name:\t%s\n", d.Name)
	fmt.Fprintf(w, "Kind:\t%s\n", d.Kind)
	fmt.Fprintf(w, "Active:\t%s\n", yesNo(d.Active))
	if d.HasReading {
		r := d.Latest
		fmt.Fprintf(w, "Voltage:\t%.1f V\n", r.Voltage)
		fmt.Fprintf(w, "Current:\t%.3f A\n", r.Current)
		fmt.Fprintf(w, "Power:\t%.1f W\n", r.Power)
		fmt.Fprintf(w, "Power factor:\t%.2f\n", r.PowerFactor)
		fmt.Fprintf(w, "Frequency:\t%.1f Hz\n", r.Frequency)
	} else {
		fmt.Fprintln(w, "Latest:\tno reading yet")
	}
	fmt.Fprintf(w, "Average power:\t%.1f W\n", d.AvgPower)
	fmt.Fprintf(w, "Max power:\t%.1f W\n", d.MaxPower)
	fmt.Fprintf(w, "Energy:\t%.3f kWh\n", d.TotalEnergy)
	fmt.Fprintf(w, "History:\t%d retained, %d total\n", d.Retained, d.TotalInsertions)
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%s\n", summary)
	return err
}

func printHistory(out io.Writer, h []energy.Reading) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME (ms)\tV\tA\tW\tPF")
	for _, r := range h {
		fmt.Fprintf(w, "%d\t%.1f\t%.3f\t%.1f\t%.2f\n", r.Timestamp, r.Voltage, r.Current, r.Power, r.PowerFactor)
	}
	return w.Flush()
}
