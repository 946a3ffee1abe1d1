package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for a dubbing run. Values come from
// environment variables (optionally a .env file); the CLI overrides
// individual fields after Load.
type Config struct {
	// Synthesis configuration
	Voice         string `envconfig:"SUBDUB_VOICE" default:"en-US-JennyNeural"`
	Provider      string `envconfig:"SUBDUB_PROVIDER" default:"edge"` // edge, http
	SynthURL      string `envconfig:"SUBDUB_SYNTH_URL" default:""`    // required for the http provider
	SynthAPIKey   string `envconfig:"SUBDUB_SYNTH_API_KEY" default:""`
	SynthTimeout  int    `envconfig:"SUBDUB_SYNTH_TIMEOUT" default:"30"` // per-attempt timeout in seconds
	Retries       int    `envconfig:"SUBDUB_RETRIES" default:"10"`       // retry attempts after the first
	BatchSize     int    `envconfig:"SUBDUB_BATCH_SIZE" default:"10"`    // concurrent synthesis requests per batch
	RetryBackoff  int    `envconfig:"SUBDUB_RETRY_BACKOFF" default:"1000"` // initial backoff in milliseconds

	// Timing configuration
	MaxSpeed       float64 `envconfig:"SUBDUB_MAX_SPEED" default:"1.5"` // maximum speed-up factor
	SampleRate     int     `envconfig:"SUBDUB_SAMPLE_RATE" default:"24000"`
	TargetDuration string  `envconfig:"SUBDUB_TARGET_DURATION" default:""` // HH:MM:SS, MM:SS, or seconds
	RefMedia       string  `envconfig:"SUBDUB_REF_MEDIA" default:""`       // media file to probe for target duration

	// Work directory and resume behavior
	WorkDir  string `envconfig:"SUBDUB_WORK_DIR" default:""` // derived from input content when empty
	Resume   bool   `envconfig:"SUBDUB_RESUME" default:"false"`
	KeepWork bool   `envconfig:"SUBDUB_KEEP_WORK" default:"false"`
	NoConcat bool   `envconfig:"SUBDUB_NO_CONCAT" default:"false"` // generate segments only, skip final merge

	// Output configuration
	OutputFormat string `envconfig:"SUBDUB_FORMAT" default:""` // wav, m4a, opus; empty = from extension

	// Resilience configuration
	BreakerMaxFailures  int `envconfig:"SUBDUB_BREAKER_MAX_FAILURES" default:"5"`
	BreakerResetTimeout int `envconfig:"SUBDUB_BREAKER_RESET_TIMEOUT" default:"30"` // seconds

	// Observability configuration
	LogLevel    string `envconfig:"SUBDUB_LOG_LEVEL" default:"info"`
	LogPretty   bool   `envconfig:"SUBDUB_LOG_PRETTY" default:"true"`
	MetricsAddr string `envconfig:"SUBDUB_METRICS_ADDR" default:""` // serve /metrics here during the run when set
}

// Load reads configuration from a .env file (if present) and the
// environment, then validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the field constraints the pipeline relies on.
func (c *Config) Validate() error {
	if c.MaxSpeed < 1.0 {
		return fmt.Errorf("max speed must be >= 1.0, got %g", c.MaxSpeed)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", c.Retries)
	}
	if c.SampleRate < 1 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	switch c.Provider {
	case "edge", "http":
	default:
		return fmt.Errorf("unknown synthesis provider %q", c.Provider)
	}
	if c.Provider == "http" && c.SynthURL == "" {
		return fmt.Errorf("SUBDUB_SYNTH_URL is required for the http provider")
	}
	if c.OutputFormat != "" {
		switch c.OutputFormat {
		case "wav", "m4a", "opus":
		default:
			return fmt.Errorf("unsupported output format %q", c.OutputFormat)
		}
	}
	return nil
}

// ParseTargetDuration parses "HH:MM:SS", "MM:SS", or a plain number of
// seconds (fractions allowed) into a duration.
func ParseTargetDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if !strings.Contains(s, ":") {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil || secs < 0 {
			return 0, fmt.Errorf("invalid duration %q: use HH:MM:SS or seconds", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration %q: use HH:MM:SS or seconds", s)
	}

	var hours int
	var err error
	if len(parts) == 3 {
		hours, err = strconv.Atoi(parts[0])
		if err != nil || hours < 0 {
			return 0, fmt.Errorf("invalid hours in duration %q", s)
		}
		parts = parts[1:]
	}
	mins, err := strconv.Atoi(parts[0])
	if err != nil || mins < 0 {
		return 0, fmt.Errorf("invalid minutes in duration %q", s)
	}
	secs, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid seconds in duration %q", s)
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs*float64(time.Second)), nil
}
