// Package snapshot hands every accepted command to visualization and logging
// collaborators.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	"tse/ik"
)

// Snapshot is the state of the extender after the controller accepted a
// command.
type Snapshot struct {
	Time      time.Time             `json:"time"`
	Session   string                `json:"session"`
	Pose      ik.Pose               `json:"pose"`
	Commands  []float64             `json:"commands"` // as transmitted, controller units
	Travel    [ik.Actuators]float64 `json:"travel_positions"`
	TopJoints [ik.Legs]r3.Vector    `json:"top_joints"`
	Axes      [3]r3.Vector          `json:"axes"`
	Saturated bool                  `json:"saturated"`
}

// Sink consumes snapshots. Record must not retain s.Commands beyond the call.
type Sink interface {
	Record(ctx context.Context, s Snapshot) error
	Close() error
}

// Multi fans a snapshot out to every sink and combines their errors.
type Multi []Sink

// Record passes s to each sink in order.
func (m Multi) Record(ctx context.Context, s Snapshot) error {
	var err error
	for _, sink := range m {
		err = multierr.Append(err, sink.Record(ctx, s))
	}
	return err
}

// Close closes each sink.
func (m Multi) Close() error {
	var err error
	for _, sink := range m {
		err = multierr.Append(err, sink.Close())
	}
	return err
}

// Recorder keeps the latest snapshot and a bounded history in memory.
type Recorder struct {
	mu      sync.RWMutex
	limit   int
	history []Snapshot
}

// NewRecorder keeps up to limit snapshots; limit < 1 keeps only the latest.
func NewRecorder(limit int) *Recorder {
	if limit < 1 {
		limit = 1
	}
	return &Recorder{limit: limit}
}

// Record stores a copy of s.
func (r *Recorder) Record(_ context.Context, s Snapshot) error {
	s.Commands = append([]float64(nil), s.Commands...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, s)
	if over := len(r.history) - r.limit; over > 0 {
		r.history = append(r.history[:0], r.history[over:]...)
	}
	return nil
}

// Latest returns the most recent snapshot.
func (r *Recorder) Latest() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.history) == 0 {
		return Snapshot{}, false
	}
	return r.history[len(r.history)-1], true
}

// History returns the retained snapshots, oldest first.
func (r *Recorder) History() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, len(r.history))
	copy(out, r.history)
	return out
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }
