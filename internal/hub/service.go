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
	"encoding/json"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/TheCacophonyProject/energy-audit/auditclient"
	"github.com/TheCacophonyProject/energy-audit/registry"
	"github.com/TheCacophonyProject/energy-audit/waste"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	dbusName = auditclient.DBusName
	dbusPath = auditclient.DBusPath

	requestTimeout = 5 * time.Second
)

type service struct {
	h    *hub
	conn *dbus.Conn
}

func startService(h *hub) (*service, error) {
	log.Info("Starting energy audit service")
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}
	s := &service{h: h, conn: conn}
	if err := conn.Export(s, dbusPath, dbusName); err != nil {
		return nil, err
	}
	if err := conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, err
	}
	return s, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

/*
dbus-send --system --print-reply --dest=org.cacophony.EnergyAudit /org/cacophony/EnergyAudit \
org.cacophony.EnergyAudit.Rename string:NODE_01 string:"Kitchen fridge"
*/

// Devices returns every device as a JSON array, in registration order.
func (s *service) Devices() (string, *dbus.Error) {
	return marshal(s.h.reg.List())
}

func (s *service) Device(id string) (string, *dbus.Error) {
	d, err := s.h.reg.Get(id)
	if err != nil {
		return "", dbusErr(err)
	}
	return marshal(d)
}

// History returns up to count recent readings, oldest first. count <= 0 means
// the configured limit.
func (s *service) History(id string, count int32) (string, *dbus.Error) {
	h, err := s.h.reg.History(id, int(count))
	if err != nil {
		return "", dbusErr(err)
	}
	return marshal(h)
}

// Summary is the waste alert text for a device.
func (s *service) Summary(id string) (string, *dbus.Error) {
	d, err := s.h.reg.Get(id)
	if err != nil {
		return "", dbusErr(err)
	}
	return waste.Summary(d.Flags, d.Latest), nil
}

func (s *service) Rename(id, name string) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return dbusErr(s.h.do(ctx, func(reg *registry.Registry) error {
		return reg.Rename(id, name)
	}))
}

func (s *service) Delete(id string) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return dbusErr(s.h.do(ctx, func(reg *registry.Registry) error {
		return reg.Delete(id)
	}))
}

// emitWaste broadcasts a newly raised waste flag.
func (s *service) emitWaste(c waste.Change) {
	err := s.conn.Emit(dbusPath, auditclient.WasteSignal,
		c.Device.ID, c.Device.Name, waste.Summary(c.Raised, c.Device.Latest))
	if err != nil {
		log.Errorf("Failed to emit waste signal: %v", err)
	}
}

func marshal(v interface{}) (string, *dbus.Error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", dbusErr(err)
	}
	return string(b), nil
}

// dbusErr names registry errors so clients can tell them apart, anything
// else is named after the calling method.
func dbusErr(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	name := auditclient.ErrorName(err)
	if name == "" {
		name = getCallerName()
	}
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}

func getCallerName() string {
	fpcs := make([]uintptr, 1)
	n := runtime.Callers(3, fpcs)
	if n == 0 {
		return ""
	}
	caller := runtime.FuncForPC(fpcs[0] - 1)
	if caller == nil {
		return ""
	}
	funcNames := strings.Split(caller.Name(), ".")
	return funcNames[len(funcNames)-1]
}
