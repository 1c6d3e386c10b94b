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

package auditclient

import (
	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"github.com/godbus/dbus/v5"
)

// WasteEvent is a waste flag newly raised on a device.
type WasteEvent struct {
	ID      string
	Name    string
	Summary string
}

// parseWasteSignal returns false for any signal that is not a well formed waste signal.
func parseWasteSignal(signal *dbus.Signal) (WasteEvent, bool) {
	if signal.Name != WasteSignal || len(signal.Body) != 3 {
		return WasteEvent{}, false
	}
	id, ok1 := signal.Body[0].(string)
	name, ok2 := signal.Body[1].(string)
	summary, ok3 := signal.Body[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return WasteEvent{}, false
	}
	return WasteEvent{ID: id, Name: name, Summary: summary}, true
}

// WasteSignals listens for waste signals from the hub.
func WasteSignals(log *logging.Logger) (chan WasteEvent, error) {
	if log == nil {
		log = logging.NewLogger("info")
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(DBusName),
		dbus.WithMatchMember("WasteDetected"),
	)
	if err != nil {
		return nil, err
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)

	events := make(chan WasteEvent, 10)
	log.Infof("Listening for D-Bus signals from %s...", DBusName)
	go func() {
		for signal := range c {
			e, ok := parseWasteSignal(signal)
			if !ok {
				log.Debugf("Ignoring signal %s: %v", signal.Name, signal.Body)
				continue
			}
			events <- e
		}
	}()
	return events, nil
}
