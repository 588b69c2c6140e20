// Package config carries the run configuration: sampling, concurrency, crop
// region, OCR engine selection and the failure policy. Values come from
// defaults, an optional YAML file, then command-line overrides, in that
// order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine names for Config.OCR.Engine.
const (
	EngineTesseract = "tesseract"
	EngineVision    = "vision"
)

// Failure policies for per-unit fetch/parse failures.
const (
	PolicySkip  = "skip"
	PolicyWarn  = "warn"
	PolicyAbort = "abort"
)

// Crop is the telemetry overlay region as fractions of the frame size, so
// the same config works at any resolution. The GPS strip sits at the bottom
// of the frame on most dashcams.
type Crop struct {
	Left   float64 `yaml:"left"`
	Top    float64 `yaml:"top"`
	Right  float64 `yaml:"right"`
	Bottom float64 `yaml:"bottom"`
}

type OCR struct {
	Engine   string `yaml:"engine"`
	Language string `yaml:"language"`
	// Whitelist restricts Tesseract to the overlay's character set.
	Whitelist string `yaml:"whitelist"`
	// MinConfidence (0-100) turns low-confidence Tesseract output into a
	// per-unit failure instead of feeding it to the parser. 0 disables the
	// check. The vision engine reports no calibrated confidence, so the
	// threshold only applies to Tesseract.
	MinConfidence float64 `yaml:"min_confidence"`
	// OllamaURL and Model configure the vision engine.
	OllamaURL string `yaml:"ollama_url"`
	Model     string `yaml:"model"`
}

type Config struct {
	// Interval is the sampling interval in seconds.
	Interval      float64           `yaml:"interval"`
	Workers       int               `yaml:"workers"`
	Crop          Crop              `yaml:"crop"`
	OCR           OCR               `yaml:"ocr"`
	Policy        string            `yaml:"policy"`
	Substitutions map[string]string `yaml:"substitutions"`
	// PostgresDSN, when set, also records the parsed track in Postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
	// Bulk extracts all frames in one ffmpeg pass and consumes them as they
	// are written, instead of seeking per timestamp.
	Bulk bool `yaml:"bulk"`
}

func Default() Config {
	return Config{
		Interval: 10,
		Workers:  4,
		// Bottom strip of the frame, full width.
		Crop: Crop{Left: 0, Top: 0.92, Right: 1, Bottom: 1},
		OCR: OCR{
			Engine:    EngineTesseract,
			Language:  "eng",
			Whitelist: `0123456789.,°'"NSEW `,
			OllamaURL: "http://localhost",
			Model:     "llama3.2-vision:11b",
		},
		Policy: PolicyWarn,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// IntervalDuration returns the sampling interval as a time.Duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval * float64(time.Second))
}

// Validate reports the first configuration error. All of these abort the run
// before any work starts.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %gs", c.Interval)
	}
	if c.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Workers)
	}
	if err := c.Crop.validate(); err != nil {
		return err
	}
	switch c.OCR.Engine {
	case EngineTesseract, EngineVision:
	default:
		return fmt.Errorf("unknown OCR engine %q", c.OCR.Engine)
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be within [0,100], got %v", c.OCR.MinConfidence)
	}
	switch c.Policy {
	case PolicySkip, PolicyWarn, PolicyAbort:
	default:
		return fmt.Errorf("unknown failure policy %q", c.Policy)
	}
	return nil
}

func (c *Crop) validate() error {
	for _, v := range []float64{c.Left, c.Top, c.Right, c.Bottom} {
		if v < 0 || v > 1 {
			return fmt.Errorf("crop fractions must be within [0,1], got %+v", *c)
		}
	}
	if c.Left >= c.Right || c.Top >= c.Bottom {
		return fmt.Errorf("crop region is empty: %+v", *c)
	}
	return nil
}

// ParseCrop parses the --crop flag: four comma-separated fractions
// "left,top,right,bottom".
func ParseCrop(s string) (Crop, error) {
	var c Crop
	n, err := fmt.Sscanf(s, "%g,%g,%g,%g", &c.Left, &c.Top, &c.Right, &c.Bottom)
	if err != nil || n != 4 {
		return Crop{}, fmt.Errorf("crop must be four fractions left,top,right,bottom, got %q", s)
	}
	if err := c.validate(); err != nil {
		return Crop{}, err
	}
	return c, nil
}
