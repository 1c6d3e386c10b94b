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

// Package registry holds every monitored device, its latest reading, a bounded
// history and the aggregates derived from it.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/internal/logging"
)

var log = logging.NewLogger("info")

// SetLogger replaces the package logger.
func SetLogger(l *logging.Logger) {
	if l != nil {
		log = l
	}
}

const (
	msPerHour        = 3600000.0
	wattsPerKilowatt = 1000.0
)

var (
	ErrNotFound     = errors.New("device not found")
	ErrForbidden    = errors.New("operation not permitted on device")
	ErrInvalidName  = errors.New("invalid device name")
	ErrFull         = errors.New("registry is full")
	ErrKindConflict = errors.New("device id already used by another kind")
)

type Config struct {
	Capacity      int
	HistorySize   int
	AverageWindow int
	GracePeriodMs int64
	MaxNameLength int
	HistoryLimit  int
}

func DefaultConfig() Config {
	return Config{
		Capacity:      10,
		HistorySize:   1000,
		AverageWindow: 100,
		GracePeriodMs: 30000,
		MaxNameLength: 50,
		HistoryLimit:  200,
	}
}

// Flags are written only by waste detection.
type Flags struct {
	StandbyWaste    bool `json:"standbyWaste"`
	UsageAnomaly    bool `json:"usageAnomaly"`
	EfficiencyIssue bool `json:"efficiencyIssue"`
}

func (f Flags) Any() bool {
	return f.StandbyWaste || f.UsageAnomaly || f.EfficiencyIssue
}

// Device is a copy of a record, safe to hold after the registry changes.
type Device struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	DefaultName     string         `json:"defaultName"`
	CustomName      string         `json:"customName,omitempty"`
	Kind            Kind           `json:"kind"`
	Active          bool           `json:"active"`
	LastSeen        int64          `json:"lastSeen"`
	HasReading      bool           `json:"hasReading"`
	Latest          energy.Reading `json:"latest"`
	Retained        int            `json:"retained"`
	TotalInsertions uint64         `json:"totalInsertions"`
	AvgPower        float64        `json:"avgPower"`
	MaxPower        float64        `json:"maxPower"`
	TotalEnergy     float64        `json:"totalEnergy"` // kWh
	Flags
}

type record struct {
	id          string
	defaultName string
	customName  string
	kind        Kind
	active      bool
	lastSeen    int64
	hasReading  bool
	latest      energy.Reading
	history     history
	avgPower    float64
	maxPower    float64
	totalEnergy float64
	flags       Flags
}

func (rec *record) displayName() string {
	if rec.customName != "" {
		return rec.customName
	}
	return rec.defaultName
}

func (rec *record) snapshot() Device {
	return Device{
		ID:              rec.id,
		Name:            rec.displayName(),
		DefaultName:     rec.defaultName,
		CustomName:      rec.customName,
		Kind:            rec.kind,
		Active:          rec.active,
		LastSeen:        rec.lastSeen,
		HasReading:      rec.hasReading,
		Latest:          rec.latest,
		Retained:        rec.history.retained(),
		TotalInsertions: rec.history.total,
		AvgPower:        rec.avgPower,
		MaxPower:        rec.maxPower,
		TotalEnergy:     rec.totalEnergy,
		Flags:           rec.flags,
	}
}

// ingest appends a reading to the history and updates the aggregates.
func (rec *record) ingest(r energy.Reading, window int) {
	prev, hasPrev := rec.history.newest()
	rec.history.push(r)

	if hasPrev {
		if dt := r.Timestamp - prev.Timestamp; dt > 0 {
			rec.totalEnergy += r.Power * float64(dt) / msPerHour / wattsPerKilowatt
		}
	}
	if rec.history.total == 1 || r.Power > rec.maxPower {
		rec.maxPower = r.Power
	}

	recent := rec.history.last(window)
	sum := 0.0
	for _, e := range recent {
		sum += e.Power
	}
	rec.avgPower = sum / float64(len(recent))
	rec.latest = r
	rec.hasReading = true
}

// Registry is safe for concurrent use. Records keep their insertion order.
type Registry struct {
	mu      sync.RWMutex
	cfg     Config
	records []*record
}

func New(cfg Config) *Registry {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.AverageWindow <= 0 {
		cfg.AverageWindow = def.AverageWindow
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = def.MaxNameLength
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	return &Registry{
		cfg:     cfg,
		records: make([]*record, 0, cfg.Capacity),
	}
}

func (r *Registry) Config() Config {
	return r.cfg
}

func (r *Registry) find(id string) (int, *record) {
	for i, rec := range r.records {
		if rec.id == id {
			return i, rec
		}
	}
	return -1, nil
}

// admit returns the record for id, creating it if there is room.
func (r *Registry) admit(id, defaultName string, kind Kind) (*record, error) {
	if _, rec := r.find(id); rec != nil {
		if rec.kind != kind {
			log.Warnf("Rejecting %s reading for %s device '%s'", kind, rec.kind, id)
			return nil, fmt.Errorf("%w: '%s' is %s", ErrKindConflict, id, rec.kind)
		}
		return rec, nil
	}
	if len(r.records) >= r.cfg.Capacity {
		log.Warnf("Registry full (%d devices), not adding '%s'", r.cfg.Capacity, id)
		return nil, fmt.Errorf("%w: cannot add '%s'", ErrFull, id)
	}
	rec := &record{
		id:          id,
		defaultName: defaultName,
		kind:        kind,
		history:     newHistory(r.cfg.HistorySize),
	}
	r.records = append(r.records, rec)
	log.Infof("Added %s device '%s' (%s)", kind, id, defaultName)
	return rec, nil
}

// Provision creates a device with no reading. It is listed but inactive
// until its first reading arrives. Provisioning an existing device is a no-op.
func (r *Registry) Provision(id, defaultName string, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.admit(id, defaultName, kind)
	return err
}

// Upsert records a reading for id, creating the device first if needed.
// Identity and kind of an existing device are never changed.
func (r *Registry) Upsert(id, defaultName string, kind Kind, reading energy.Reading, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.admit(id, defaultName, kind)
	if err != nil {
		return err
	}
	rec.ingest(reading, r.cfg.AverageWindow)
	rec.lastSeen = now
	if !rec.active {
		log.Infof("Device '%s' is active", id)
	}
	rec.active = true
	return nil
}

// Sweep marks devices inactive when nothing has been ingested for the grace
// period. It returns the ids that became inactive.
func (r *Registry) Sweep(now int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []string
	for _, rec := range r.records {
		if rec.active && now-rec.lastSeen > r.cfg.GracePeriodMs {
			rec.active = false
			stale = append(stale, rec.id)
			log.Infof("Device '%s' is inactive, last seen %dms ago", rec.id, now-rec.lastSeen)
		}
	}
	return stale
}

func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, rec := r.find(id)
	if rec == nil {
		return Device{}, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	return rec.snapshot(), nil
}

func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	devices := make([]Device, len(r.records))
	for i, rec := range r.records {
		devices[i] = rec.snapshot()
	}
	return devices
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// History returns up to n of the most recent readings for id, oldest first.
// n is capped at the configured history limit, n <= 0 means the limit.
func (r *Registry) History(id string, n int) ([]energy.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, rec := r.find(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	if n <= 0 || n > r.cfg.HistoryLimit {
		n = r.cfg.HistoryLimit
	}
	return rec.history.last(n), nil
}

// Rename sets the custom name of a device. Surrounding whitespace is trimmed
// and the result must be 1 to MaxNameLength characters.
func (r *Registry) Rename(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, rec := r.find(id)
	if rec == nil {
		return fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > r.cfg.MaxNameLength {
		return fmt.Errorf("%w: must be 1 to %d characters", ErrInvalidName, r.cfg.MaxNameLength)
	}
	rec.customName = name
	log.Infof("Renamed '%s' to '%s'", id, name)
	return nil
}

// Delete removes a wireless device. Wired devices can not be deleted.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, rec := r.find(id)
	if rec == nil {
		return fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	switch rec.kind {
	case Wireless:
		r.records = slices.Delete(r.records, i, i+1)
		log.Infof("Deleted device '%s'", id)
		return nil
	case Wired:
		return fmt.Errorf("%w: '%s' is wired", ErrForbidden, id)
	default:
		return fmt.Errorf("%w: '%s' has unknown kind", ErrForbidden, id)
	}
}

// Recent returns the latest reading and up to n recent history entries,
// oldest first, for analysis.
func (r *Registry) Recent(id string, n int) (Device, []energy.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, rec := r.find(id)
	if rec == nil {
		return Device{}, nil, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	return rec.snapshot(), rec.history.last(n), nil
}

// SetFlags replaces the waste flags of a device and returns the previous ones.
func (r *Registry) SetFlags(id string, flags Flags) (Flags, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, rec := r.find(id)
	if rec == nil {
		return Flags{}, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	prev := rec.flags
	rec.flags = flags
	return prev, nil
}
