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

package hub

import (
	"context"
	"time"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/internal/config"
	"github.com/TheCacophonyProject/energy-audit/registry"
	"github.com/TheCacophonyProject/energy-audit/telemetry"
	"github.com/TheCacophonyProject/energy-audit/waste"
	mapset "github.com/deckarep/golang-set/v2"
)

const wirelessNamePrefix = "Wireless Node "

type meterReader interface {
	ReadAll() (energy.Reading, error)
}

// meterChecker is implemented by meters with a start up health check.
type meterChecker interface {
	Check() error
}

// wiredMeter is a provisioned wired device. meter is nil when the line could
// not be opened, the device is then listed but never polled.
type wiredMeter struct {
	id    string
	name  string
	meter meterReader
}

// request is a registry mutation run by the main loop.
type request struct {
	apply func(reg *registry.Registry) error
	reply chan error
}

type intervals struct {
	poll     time.Duration
	waste    time.Duration
	liveness time.Duration
}

// hub owns the registry. Only the goroutine in run writes to it.
type hub struct {
	reg        *registry.Registry
	meters     []wiredMeter
	now        func() int64
	nominal    telemetry.Nominal
	thresholds waste.Thresholds
	intervals  intervals
	allowed    mapset.Set[string]
	inbound    chan telemetry.Packet
	requests   chan request
	onWaste    func(waste.Change)
}

func newHub(conf *HubConfig, now func() int64) *hub {
	allowed := mapset.NewSet[string]()
	for _, id := range conf.AllowedNodes {
		allowed.Add(id)
	}
	def := config.DefaultHub()
	queue := conf.PacketQueue
	if queue <= 0 {
		queue = def.PacketQueue
	}
	return &hub{
		reg:        registry.New(conf.registryConfig()),
		now:        now,
		nominal:    conf.nominal(),
		thresholds: conf.thresholds(),
		intervals: intervals{
			poll:     orDefault(conf.PollInterval, def.PollInterval),
			waste:    orDefault(conf.WasteInterval, def.WasteInterval),
			liveness: orDefault(conf.LivenessInterval, def.LivenessInterval),
		},
		allowed:  allowed,
		inbound:  make(chan telemetry.Packet, queue),
		requests: make(chan request),
		onWaste:  func(waste.Change) {},
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// addMeter provisions a wired device so it is listed before its first reading,
// then runs the meter's health check. A failed check is only logged.
func (h *hub) addMeter(id, name string, m meterReader) error {
	if err := h.reg.Provision(id, name, registry.Wired); err != nil {
		return err
	}
	h.meters = append(h.meters, wiredMeter{id: id, name: name, meter: m})
	if c, ok := m.(meterChecker); ok {
		if err := c.Check(); err != nil {
			log.Warnf("Meter '%s' did not respond: %v", id, err)
		} else {
			log.Infof("Meter '%s' ready", id)
		}
	}
	return nil
}

// enqueuePacket is called from the link's receive goroutine. It never blocks
// and never touches the registry.
func (h *hub) enqueuePacket(p telemetry.Packet) {
	if h.allowed.Cardinality() > 0 && !h.allowed.Contains(p.ID) {
		log.Debugf("Ignoring packet from node '%s', not in allowed nodes", p.ID)
		return
	}
	select {
	case h.inbound <- p:
	default:
		log.Warnf("Packet queue full, dropping packet from '%s'", p.ID)
	}
}

func (h *hub) ingestPacket(p telemetry.Packet) {
	now := h.now()
	err := h.reg.Upsert(p.ID, wirelessNamePrefix+p.ID, registry.Wireless, p.Reading(h.nominal, now), now)
	if err != nil {
		log.Warnf("Packet from '%s' not recorded: %v", p.ID, err)
		return
	}
	log.Debugf("Node '%s': %.2fA %.1fW pf %.2f", p.ID, p.Current, p.Power, p.PowerFactor)
}

func (h *hub) pollMeters() {
	for _, m := range h.meters {
		if m.meter == nil {
			continue
		}
		r, err := m.meter.ReadAll()
		if err != nil {
			log.Debugf("No reading from '%s': %v", m.id, err)
			continue
		}
		if err := h.reg.Upsert(m.id, m.name, registry.Wired, r, h.now()); err != nil {
			log.Warnf("Reading from '%s' not recorded: %v", m.id, err)
		}
	}
}

func (h *hub) sweepWaste() {
	for _, c := range waste.Sweep(h.reg, h.thresholds) {
		log.Infof("Waste detected on '%s' (%s): %s", c.Device.ID, c.Device.Name,
			waste.Summary(c.Raised, c.Device.Latest))
		h.onWaste(c)
	}
}

// do runs apply on the main loop and waits for the result.
func (h *hub) do(ctx context.Context, apply func(reg *registry.Registry) error) error {
	req := request{apply: apply, reply: make(chan error, 1)}
	select {
	case h.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *hub) run(ctx context.Context) {
	poll := time.NewTicker(h.intervals.poll)
	defer poll.Stop()
	wasteTicker := time.NewTicker(h.intervals.waste)
	defer wasteTicker.Stop()
	liveness := time.NewTicker(h.intervals.liveness)
	defer liveness.Stop()

	h.pollMeters()
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			h.pollMeters()
		case <-wasteTicker.C:
			h.sweepWaste()
		case <-liveness.C:
			h.reg.Sweep(h.now())
		case p := <-h.inbound:
			h.ingestPacket(p)
		case req := <-h.requests:
			req.reply <- req.apply(h.reg)
		}
	}
}
