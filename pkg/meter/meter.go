// Package meter accumulates generation service consumption.
package meter

import (
	"sync"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Meter counts consumed units (tokens) and requests. Safe for concurrent use.
type Meter struct {
	mu       sync.Mutex
	units    int64
	requests int64
}

// New returns an empty Meter.
func New() *Meter {
	return &Meter{}
}

// Record adds one request consuming units.
func (m *Meter) Record(units int64) {
	m.mu.Lock()
	m.units += units
	m.requests++
	m.mu.Unlock()
}

// Snapshot returns the current totals. AverageUnits is 0 before any request.
func (m *Meter) Snapshot() models.UsageSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.UsageSnapshot{TotalUnits: m.units, TotalRequests: m.requests}
	if m.requests > 0 {
		s.AverageUnits = float64(m.units) / float64(m.requests)
	}
	return s
}
