// Command drawnet trains a network to reproduce an image and shows
// the source beside the live reconstruction in a browser.
//
//	drawnet [flags] image
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/drawnet"
	"github.com/stevegt/drawnet/config"
	"github.com/stevegt/drawnet/display"
	"github.com/stevegt/drawnet/driver"
	"github.com/stevegt/drawnet/grid"
	"github.com/stevegt/drawnet/metrics"
	"github.com/stevegt/drawnet/picture"
	"github.com/stevegt/drawnet/render"
	"github.com/stevegt/drawnet/sample"
	"github.com/stevegt/drawnet/shape"
)

func main() {
	err := run(os.Args[1:])
	if err != nil {
		Pf("drawnet: %v\n", err)
		os.Exit(1)
	}
}

func buildNetwork(cfg *config.Config) (*drawnet.Network, error) {
	s, err := shape.Parse(cfg.Shape)
	if err != nil {
		return nil, err
	}
	if len(s.InputNames) != 2 {
		return nil, fmt.Errorf("shape %s: want 2 inputs (x y), got %d", s.Name, len(s.InputNames))
	}
	if len(s.OutputNames) != 3 {
		return nil, fmt.Errorf("shape %s: want 3 outputs (r g b), got %d", s.Name, len(s.OutputNames))
	}
	return drawnet.NewNetwork(s, drawnet.Parms{
		LearningRate: cfg.LearningRate,
		Momentum:     cfg.Momentum,
		Seed:         cfg.Seed,
	})
}

func run(args []string) (err error) {
	cfg, err := config.FromArgs(args)
	if err != nil {
		return
	}
	nn, err := buildNetwork(cfg)
	if err != nil {
		return
	}
	if cfg.Dot {
		Pl(nn.Draw())
		return nil
	}

	pic, err := picture.Load(cfg.Image)
	if err != nil {
		return
	}
	g, err := grid.Build(pic.Width(), pic.Height())
	if err != nil {
		return
	}
	smp, err := sample.New(rand.New(rand.NewSource(cfg.SamplerSeed())), pic, cfg.BatchSize)
	if err != nil {
		return
	}
	comp := render.NewComposition(g.Width, g.Height)
	board := &metrics.Board{}
	var sched driver.Scheduler = driver.Cooperative{}
	if cfg.FrameInterval > 0 {
		sched = &driver.Paced{Interval: cfg.FrameInterval}
	}
	drv, err := driver.New(smp, nn, render.New(nn, g, comp), sched, driver.Options{
		NumBatches:  cfg.NumBatches,
		Report:      cfg.Report,
		ReportEvery: cfg.ReportEvery,
	}, board)
	if err != nil {
		return
	}
	err = drv.Start()
	if err != nil {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return
	}
	srv := display.New(display.Options{
		Title:       Spf("drawnet: %s", cfg.Image),
		Zoom:        cfg.Zoom,
		Source:      pic.Image(),
		Composition: comp,
		Board:       board,
		Arch:        nn.Draw(),
		Close:       cancel,
	})
	Pf("%s %dx%d, %d pixels per fit, display at http://%s/\n",
		cfg.Image, g.Width, g.Height, cfg.BatchSize, ln.Addr())

	var wg sync.WaitGroup
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = srv.Serve(ctx, ln)
		// a dead display ends training too
		cancel()
	}()

	err = drv.Run(ctx)
	cancel()
	wg.Wait()
	Pf("stopped after %d iterations\n", drv.Iterations())
	return errors.Join(err, serveErr)
}
