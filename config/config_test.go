package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/drawnet/shape"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drawnet.yaml")
	err := os.WriteFile(path, []byte(body), 0o644)
	Tassert(t, err == nil, err)
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := FromArgs([]string{"cat.png"})
	Tassert(t, err == nil, err)
	Tassert(t, cfg.Image == "cat.png", cfg.Image)
	Tassert(t, cfg.BatchSize == 1000, cfg.BatchSize)
	Tassert(t, cfg.NumBatches == 5, cfg.NumBatches)
	Tassert(t, cfg.Zoom == 1, cfg.Zoom)
	Tassert(t, cfg.LearningRate == 0.1, cfg.LearningRate)
	Tassert(t, cfg.Momentum == 0.9, cfg.Momentum)
	Tassert(t, cfg.Seed == 123, cfg.Seed)
	Tassert(t, cfg.SamplerSeed() == 124, cfg.SamplerSeed())
	Tassert(t, cfg.Shape == shape.Default, cfg.Shape)
	Tassert(t, cfg.Report && cfg.ReportEvery == 100)
	Tassert(t, cfg.Listen == "localhost:8080", cfg.Listen)
}

func TestLoadAndOverride(t *testing.T) {
	path := writeFile(t, `
image: cat.png
batch_size: 200
zoom: 4
seed: 9
sample_seed: 77
report: false
frame_interval: 50ms
`)
	cfg, err := FromArgs([]string{"-config", path, "-zoom", "2", "-momentum", "0.5"})
	Tassert(t, err == nil, err)
	Tassert(t, cfg.Image == "cat.png", cfg.Image)
	Tassert(t, cfg.BatchSize == 200, cfg.BatchSize)
	// flag wins over file
	Tassert(t, cfg.Zoom == 2, cfg.Zoom)
	Tassert(t, cfg.Momentum == 0.5, cfg.Momentum)
	// unset flags keep file values, not flag defaults
	Tassert(t, cfg.Seed == 9, cfg.Seed)
	Tassert(t, !cfg.Report)
	Tassert(t, cfg.SamplerSeed() == 77, cfg.SamplerSeed())
	Tassert(t, cfg.FrameInterval == 50*time.Millisecond, cfg.FrameInterval)
	Tassert(t, cfg.NumBatches == 5, cfg.NumBatches)
}

func TestLoadEmpty(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	Tassert(t, err == nil, err)
	Tassert(t, cfg.BatchSize == 1000, cfg.BatchSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "batch_sise: 10\n"))
	Tassert(t, err != nil, "unknown key accepted")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	Tassert(t, err != nil, "missing file accepted")
}

func TestValidate(t *testing.T) {
	cases := map[string][]string{
		"no image":       {},
		"batch size":     {"-batch-size", "0", "a.png"},
		"num batches":    {"-num-batches", "-1", "a.png"},
		"zoom":           {"-zoom", "0", "a.png"},
		"learning rate":  {"-learning-rate", "0", "a.png"},
		"momentum":       {"-momentum", "1", "a.png"},
		"report every":   {"-report-every", "0", "a.png"},
		"frame interval": {"-frame-interval", "-1s", "a.png"},
		"bad flag":       {"-bogus", "a.png"},
		"two images":     {"a.png", "b.png"},
		"image twice":    {"-image", "a.png", "b.png"},
	}
	for name, args := range cases {
		_, err := FromArgs(args)
		Tassert(t, errors.Is(err, ErrInvalid), name, err)
	}

	// report cadence is ignored when reporting is off
	cfg, err := FromArgs([]string{"-report=false", "-report-every", "0", "a.png"})
	Tassert(t, err == nil, err)
	Tassert(t, !cfg.Report)

	// -dot needs no image
	cfg, err = FromArgs([]string{"-dot"})
	Tassert(t, err == nil, err)
	Tassert(t, cfg.Dot)
}
