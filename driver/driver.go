// Package driver runs the live training loop: sample and fit a few
// batches, render, yield to the display, repeat.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/drawnet/metrics"
	"github.com/stevegt/drawnet/sample"
	"gonum.org/v1/gonum/mat"
)

// State is the driver's lifecycle state.
type State int

const (
	Initializing State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	}
	return Spf("State(%d)", int(s))
}

// BatchSource yields training batches.
type BatchSource interface {
	Next() sample.Batch
}

// Fitter performs one optimizer step per call.
type Fitter interface {
	Fit(inputs, targets *mat.Dense) (float64, error)
}

// Painter repaints the composition.
type Painter interface {
	Render() error
}

// Options configures the loop.
type Options struct {
	// NumBatches is the number of fits between renders.
	NumBatches int
	// Report enables metrics reporting every ReportEvery fits.
	Report      bool
	ReportEvery int
}

// Driver owns the loop.  Everything it calls runs on the goroutine
// that calls Start, Step and Run.
type Driver struct {
	src      BatchSource
	fitter   Fitter
	painter  Painter
	sched    Scheduler
	opts     Options
	board    *metrics.Board
	state    State
	rendered bool
	iter     int
	fits     int
	window   metrics.Window
}

// New returns a driver in the Initializing state.  board may be nil.
func New(src BatchSource, fitter Fitter, painter Painter, sched Scheduler, opts Options, board *metrics.Board) (*Driver, error) {
	if opts.NumBatches <= 0 {
		return nil, fmt.Errorf("num batches must be > 0 (got %d)", opts.NumBatches)
	}
	if opts.Report && opts.ReportEvery <= 0 {
		return nil, fmt.Errorf("report every must be > 0 (got %d)", opts.ReportEvery)
	}
	if sched == nil {
		sched = Cooperative{}
	}
	return &Driver{
		src:     src,
		fitter:  fitter,
		painter: painter,
		sched:   sched,
		opts:    opts,
		board:   board,
	}, nil
}

// State returns the current state.
func (d *Driver) State() State {
	return d.state
}

// Iterations returns the number of completed iterations.
func (d *Driver) Iterations() int {
	return d.iter
}

// Start performs the initial render so the display has a frame
// before training begins.
func (d *Driver) Start() error {
	if d.state != Initializing {
		return errors.New("driver already running")
	}
	if err := d.painter.Render(); err != nil {
		return fmt.Errorf("initial render: %w", err)
	}
	d.rendered = true
	return nil
}

// Step runs one iteration: NumBatches sample/fit round trips, then
// one render.  An error leaves the previous frame on display.
func (d *Driver) Step() error {
	for i := 0; i < d.opts.NumBatches; i++ {
		batch := d.src.Next()
		start := time.Now()
		loss, err := d.fitter.Fit(batch.Inputs, batch.Targets)
		if err != nil {
			return fmt.Errorf("iteration %d fit %d: %w", d.iter, i, err)
		}
		d.window.RecordFit(batch.Len(), time.Since(start), loss)
		d.fits++
		if d.opts.Report && d.fits%d.opts.ReportEvery == 0 {
			d.report()
		}
	}
	start := time.Now()
	if err := d.painter.Render(); err != nil {
		return fmt.Errorf("iteration %d render: %w", d.iter, err)
	}
	d.window.RecordRender(time.Since(start))
	d.iter++
	return nil
}

func (d *Driver) report() {
	snap := d.window.Snapshot()
	snap.Iteration = d.iter
	snap.Fits = d.fits
	Pf("iter=%d fits=%d loss=%.5f samples_per_sec=%.0f fit_ms=%.2f render_ms=%.2f\n",
		snap.Iteration,
		snap.Fits,
		snap.LastLoss,
		snap.SamplesPerSec,
		snap.AvgFitMS,
		snap.AvgRenderMS,
	)
	if d.board != nil {
		d.board.Publish(snap)
	}
}

// Run moves the driver to Running and iterates until ctx is
// cancelled or a step fails.  Cancellation is a normal shutdown and
// returns nil.  Start must have succeeded first.
func (d *Driver) Run(ctx context.Context) error {
	if !d.rendered {
		return errors.New("driver not started")
	}
	if d.state == Running {
		return errors.New("driver already running")
	}
	d.state = Running
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := d.Step(); err != nil {
			return err
		}
		if err := d.sched.Yield(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
