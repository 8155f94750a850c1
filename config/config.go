// Package config loads the knobs for a drawing run from an optional
// YAML file and command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/stevegt/drawnet/shape"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config captures the runtime knobs for a drawing run.
type Config struct {
	Image         string        `yaml:"image"`
	BatchSize     int           `yaml:"batch_size"`
	NumBatches    int           `yaml:"num_batches"`
	Zoom          int           `yaml:"zoom"`
	LearningRate  float64       `yaml:"learning_rate"`
	Momentum      float64       `yaml:"momentum"`
	Seed          int64         `yaml:"seed"`
	SampleSeed    int64         `yaml:"sample_seed"`
	Shape         string        `yaml:"shape"`
	Report        bool          `yaml:"report"`
	ReportEvery   int           `yaml:"report_every"`
	Listen        string        `yaml:"listen"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	Dot           bool          `yaml:"dot"`
}

// Default returns the stock configuration.  Image is left empty.
func Default() *Config {
	return &Config{
		BatchSize:    1000,
		NumBatches:   5,
		Zoom:         1,
		LearningRate: 0.1,
		Momentum:     0.9,
		Seed:         123,
		Shape:        shape.Default,
		Report:       true,
		ReportEvery:  100,
		Listen:       "localhost:8080",
	}
}

// Load reads a YAML file over the defaults.  Unknown keys are an
// error; an empty file yields the defaults.  The result is not
// validated.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FromArgs builds a validated Config from command-line arguments
// (without the program name).  A -config file is read first; flags
// given explicitly override it.  A single positional argument is
// taken as the image path.
func FromArgs(args []string) (*Config, error) {
	def := Default()
	fs := flag.NewFlagSet("drawnet", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", "", "YAML config file")
	var o Config
	fs.StringVar(&o.Image, "image", "", "source image path")
	fs.IntVar(&o.BatchSize, "batch-size", def.BatchSize, "pixels sampled per fit")
	fs.IntVar(&o.NumBatches, "num-batches", def.NumBatches, "fits between renders")
	fs.IntVar(&o.Zoom, "zoom", def.Zoom, "display scale factor")
	fs.Float64Var(&o.LearningRate, "learning-rate", def.LearningRate, "optimizer learning rate")
	fs.Float64Var(&o.Momentum, "momentum", def.Momentum, "Nesterov momentum")
	fs.Int64Var(&o.Seed, "seed", def.Seed, "weight initialization seed")
	fs.Int64Var(&o.SampleSeed, "sample-seed", 0, "pixel sampling seed, 0 derives it from -seed")
	fs.StringVar(&o.Shape, "shape", def.Shape, "layer configuration")
	fs.BoolVar(&o.Report, "report", def.Report, "print training metrics")
	fs.IntVar(&o.ReportEvery, "report-every", def.ReportEvery, "fits between metrics reports")
	fs.StringVar(&o.Listen, "listen", def.Listen, "display listen address")
	fs.DurationVar(&o.FrameInterval, "frame-interval", 0, "minimum time between renders")
	fs.BoolVar(&o.Dot, "dot", false, "print the architecture graph and exit")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg := def
	if *path != "" {
		var err error
		cfg, err = Load(*path)
		if err != nil {
			return nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "image":
			cfg.Image = o.Image
		case "batch-size":
			cfg.BatchSize = o.BatchSize
		case "num-batches":
			cfg.NumBatches = o.NumBatches
		case "zoom":
			cfg.Zoom = o.Zoom
		case "learning-rate":
			cfg.LearningRate = o.LearningRate
		case "momentum":
			cfg.Momentum = o.Momentum
		case "seed":
			cfg.Seed = o.Seed
		case "sample-seed":
			cfg.SampleSeed = o.SampleSeed
		case "shape":
			cfg.Shape = o.Shape
		case "report":
			cfg.Report = o.Report
		case "report-every":
			cfg.ReportEvery = o.ReportEvery
		case "listen":
			cfg.Listen = o.Listen
		case "frame-interval":
			cfg.FrameInterval = o.FrameInterval
		case "dot":
			cfg.Dot = o.Dot
		}
	})
	switch fs.NArg() {
	case 0:
	case 1:
		if cfg.Image != "" && cfg.Image != fs.Arg(0) {
			return nil, fmt.Errorf("%w: image given twice: %q and %q", ErrInvalid, cfg.Image, fs.Arg(0))
		}
		cfg.Image = fs.Arg(0)
	default:
		return nil, fmt.Errorf("%w: unexpected arguments %q", ErrInvalid, fs.Args()[1:])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	if c.Image == "" && !c.Dot {
		return fmt.Errorf("%w: image must be set", ErrInvalid)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0 (got %d)", ErrInvalid, c.BatchSize)
	}
	if c.NumBatches <= 0 {
		return fmt.Errorf("%w: num_batches must be > 0 (got %d)", ErrInvalid, c.NumBatches)
	}
	if c.Zoom <= 0 {
		return fmt.Errorf("%w: zoom must be > 0 (got %d)", ErrInvalid, c.Zoom)
	}
	if !(c.LearningRate > 0) {
		return fmt.Errorf("%w: learning_rate must be > 0 (got %v)", ErrInvalid, c.LearningRate)
	}
	if !(c.Momentum >= 0 && c.Momentum < 1) {
		return fmt.Errorf("%w: momentum must be in [0, 1) (got %v)", ErrInvalid, c.Momentum)
	}
	if c.Report && c.ReportEvery <= 0 {
		return fmt.Errorf("%w: report_every must be > 0 (got %d)", ErrInvalid, c.ReportEvery)
	}
	if c.FrameInterval < 0 {
		return fmt.Errorf("%w: frame_interval must be >= 0 (got %v)", ErrInvalid, c.FrameInterval)
	}
	if c.Shape == "" {
		c.Shape = shape.Default
	}
	if c.Listen == "" {
		c.Listen = "localhost:8080"
	}
	return nil
}

// SamplerSeed returns the seed for the pixel sampler, which must not
// share a stream with weight initialization.
func (c *Config) SamplerSeed() int64 {
	if c.SampleSeed != 0 {
		return c.SampleSeed
	}
	return c.Seed + 1
}
