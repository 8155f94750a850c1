// Package metrics accumulates training statistics between reports.
package metrics

import (
	"sync"
	"time"
)

// Window accumulates timing stats across multiple fits and renders.
type Window struct {
	samples  int
	fits     int
	fit      time.Duration
	renders  int
	render   time.Duration
	lastLoss float64
}

// RecordFit adds one optimizer step to the window.
func (w *Window) RecordFit(batchSize int, fitTime time.Duration, loss float64) {
	w.samples += batchSize
	w.fits++
	w.fit += fitTime
	w.lastLoss = loss
}

// RecordRender adds one render pass to the window.
func (w *Window) RecordRender(renderTime time.Duration) {
	w.renders++
	w.render += renderTime
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{}
	if w.fit > 0 {
		snap.SamplesPerSec = float64(w.samples) / w.fit.Seconds()
	}
	if w.fits > 0 {
		snap.AvgFitMS = (w.fit.Seconds() * 1000) / float64(w.fits)
	}
	if w.renders > 0 {
		snap.AvgRenderMS = (w.render.Seconds() * 1000) / float64(w.renders)
	}
	snap.LastLoss = w.lastLoss

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.  Iteration and Fits are
// totals since training started and are filled in by the caller.
type Snapshot struct {
	Iteration     int     `json:"iteration"`
	Fits          int     `json:"fits"`
	SamplesPerSec float64 `json:"samples_per_sec"`
	AvgFitMS      float64 `json:"avg_fit_ms"`
	AvgRenderMS   float64 `json:"avg_render_ms"`
	LastLoss      float64 `json:"last_loss"`
}

// historyCap bounds the loss history kept by a Board.
const historyCap = 1000

// Board holds the latest snapshot and a bounded loss history for
// concurrent readers.
type Board struct {
	mu      sync.RWMutex
	latest  Snapshot
	history []float64
}

// Publish records a snapshot.
func (b *Board) Publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = snap
	b.history = append(b.history, snap.LastLoss)
	if len(b.history) > historyCap {
		b.history = append([]float64(nil), b.history[len(b.history)-historyCap:]...)
	}
}

// Latest returns the most recent snapshot and a copy of the loss
// history, oldest first.
func (b *Board) Latest() (snap Snapshot, history []float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, append([]float64(nil), b.history...)
}
