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

// Package auditclient talks to the hub's D-Bus service.
package auditclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/registry"
	"github.com/godbus/dbus/v5"
)

const (
	DBusName    = "org.cacophony.EnergyAudit"
	DBusPath    = "/org/cacophony/EnergyAudit"
	WasteSignal = DBusName + ".WasteDetected"
)

var errorNames = []struct {
	name string
	err  error
}{
	{"NotFound", registry.ErrNotFound},
	{"Forbidden", registry.ErrForbidden},
	{"InvalidName", registry.ErrInvalidName},
	{"Full", registry.ErrFull},
	{"KindConflict", registry.ErrKindConflict},
}

// ErrorName is the D-Bus error suffix for a registry error, or "" for any
// other error.
func ErrorName(err error) string {
	for _, e := range errorNames {
		if errors.Is(err, e.err) {
			return e.name
		}
	}
	return ""
}

// fromDBus turns a named D-Bus error back into the matching registry error.
func fromDBus(err error) error {
	if err == nil {
		return nil
	}
	var de dbus.Error
	if !errors.As(err, &de) {
		var dep *dbus.Error
		if !errors.As(err, &dep) || dep == nil {
			return err
		}
		de = *dep
	}
	msg := de.Error()
	suffix := strings.TrimPrefix(de.Name, DBusName+".")
	for _, e := range errorNames {
		if suffix == e.name {
			// The message already names the error.
			return fmt.Errorf("%w%s", e.err, strings.TrimPrefix(msg, e.err.Error()))
		}
	}
	return errors.New(msg)
}

func call(method string, out interface{}, args ...interface{}) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object(DBusName, DBusPath)
	c := obj.Call(DBusName+"."+method, 0, args...)
	if c.Err != nil {
		return fromDBus(c.Err)
	}
	if out == nil {
		return nil
	}
	return c.Store(out)
}

func callJSON(method string, out interface{}, args ...interface{}) error {
	var data string
	if err := call(method, &data, args...); err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), out)
}

func Devices() ([]registry.Device, error) {
	var devices []registry.Device
	if err := callJSON("Devices", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func Device(id string) (registry.Device, error) {
	var d registry.Device
	err := callJSON("Device", &d, id)
	return d, err
}

// History returns up to count recent readings, oldest first.
func History(id string, count int) ([]energy.Reading, error) {
	var h []energy.Reading
	if err := callJSON("History", &h, id, int32(count)); err != nil {
		return nil, err
	}
	return h, nil
}

func Summary(id string) (string, error) {
	var s string
	err := call("Summary", &s, id)
	return s, err
}

func Rename(id, name string) error {
	return call("Rename", nil, id, name)
}

func Delete(id string) error {
	return call("Delete", nil, id)
}
