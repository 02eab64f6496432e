// Package store persists the phase-count setting and energy counters
// across restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when nothing has been saved yet.
var ErrNotFound = errors.New("not found")

// Settings are the user-selectable options that survive a restart.
type Settings struct {
	PhaseCount int `yaml:"phase_count" json:"phase_count"`
}

// Validate rejects settings the meter cannot apply.
func (s Settings) Validate() error {
	if s.PhaseCount != 1 && s.PhaseCount != 3 {
		return fmt.Errorf("invalid phase count %d: must be 1 or 3", s.PhaseCount)
	}
	return nil
}

// Energy is a persisted energy counter snapshot.
type Energy struct {
	ImportedKWh float64   `yaml:"imported_kwh" json:"imported_kwh"`
	ExportedKWh float64   `yaml:"exported_kwh" json:"exported_kwh"`
	Time        time.Time `yaml:"time" json:"time"`
}

// Store loads and saves settings and energy counters.
type Store interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
	LoadEnergy(ctx context.Context) (Energy, error)
	SaveEnergy(ctx context.Context, e Energy) error
	Close() error
}

var (
	_ Store = (*File)(nil)
	_ Store = (*Redis)(nil)
)
