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
	"time"

	"github.com/TheCacophonyProject/energy-audit/waste"
	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
)

var addEvent = eventclient.AddEvent

// reportWaste records a newly raised waste flag with the event reporter.
func reportWaste(c waste.Change) {
	err := addEvent(eventclient.Event{
		Timestamp: time.Now(),
		Type:      "energyAuditWaste",
		Details: map[string]interface{}{
			"deviceID":        c.Device.ID,
			"deviceName":      c.Device.Name,
			"kind":            c.Device.Kind.String(),
			"standbyWaste":    c.Raised.StandbyWaste,
			"usageAnomaly":    c.Raised.UsageAnomaly,
			"efficiencyIssue": c.Raised.EfficiencyIssue,
			"power":           c.Device.Latest.Power,
			"powerFactor":     c.Device.Latest.PowerFactor,
			"avgPower":        c.Device.AvgPower,
		},
	})
	if err != nil {
		log.Errorf("Error adding event: %v", err)
	}
}
