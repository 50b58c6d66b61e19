package batch

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrZeroTotal = errors.New("progress total must be greater than zero")

type Snapshot struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Fraction   float64 `json:"fraction"`
	Percentage float64 `json:"percentage"`
}

// Tracker counts completed jobs out of a fixed total. Safe for concurrent use.
type Tracker struct {
	description string
	total       int

	mu        sync.Mutex
	completed int
}

func NewTracker(total int, description string) (*Tracker, error) {
	if total <= 0 {
		return nil, ErrZeroTotal
	}
	return &Tracker{description: description, total: total}, nil
}

// Update adds increment to the completed count. Negative increments are
// ignored so the count never goes backwards.
func (t *Tracker) Update(increment int) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if increment > 0 {
		t.completed += increment
	}
	s := t.snapshotLocked()
	slog.Debug("progress", "description", t.description, "percentage", s.Percentage, "completed", s.Completed, "total", s.Total)
	return s
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	fraction := float64(t.completed) / float64(t.total)
	if fraction > 1 {
		fraction = 1
	}
	return Snapshot{
		Completed:  t.completed,
		Total:      t.total,
		Fraction:   fraction,
		Percentage: fraction * 100,
	}
}
