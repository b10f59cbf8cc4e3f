package hearbird

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/HearBird/pkg/hearbird/classifier"
	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/hearbird/recorder"
	"github.com/himanishpuri/HearBird/pkg/hearbird/reference"
)

const DefaultEndpoint = "http://localhost:8000/analyze"

// Environment variables read by FromEnv.
const (
	EnvEndpoint      = "HEARBIRD_ENDPOINT"
	EnvFallback      = "HEARBIRD_FALLBACK"
	EnvFallbackDelay = "HEARBIRD_FALLBACK_DELAY"
	EnvWireShape     = "HEARBIRD_WIRE_SHAPE"
	EnvReferenceDB   = "HEARBIRD_REFERENCE_DB"
	EnvHTTPTimeout   = "HEARBIRD_HTTP_TIMEOUT"
)

type Config struct {
	Endpoint    string
	WireShape   classifier.Shape
	HTTPTimeout time.Duration
	Fallback    classifier.Policy
	Location    *classifier.Location

	// ReferenceDB is an optional SQLite catalogue. Empty means the embedded
	// catalogue.
	ReferenceDB string

	Device       recorder.Device
	DrainTimeout time.Duration

	Logger     Logger
	Classifier classifier.Classifier
	Store      reference.Store
}

type Option func(*Config)

func WithEndpoint(url string) Option {
	return func(c *Config) { c.Endpoint = url }
}

func WithWireShape(s classifier.Shape) Option {
	return func(c *Config) { c.WireShape = s }
}

func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Config) { c.HTTPTimeout = d }
}

func WithFallback(enabled bool) Option {
	return func(c *Config) { c.Fallback.Enabled = enabled }
}

func WithFallbackDelay(d time.Duration) Option {
	return func(c *Config) { c.Fallback.Delay = d }
}

func WithFallbackResponse(resp *model.Response) Option {
	return func(c *Config) { c.Fallback.Response = resp }
}

func WithLocation(lat, lon float64) Option {
	return func(c *Config) { c.Location = &classifier.Location{Lat: lat, Lon: lon} }
}

func WithReferenceDB(path string) Option {
	return func(c *Config) { c.ReferenceDB = path }
}

func WithDevice(d recorder.Device) Option {
	return func(c *Config) { c.Device = d }
}

func WithDrainTimeout(d time.Duration) Option {
	return func(c *Config) { c.DrainTimeout = d }
}

func WithLogger(log Logger) Option {
	return func(c *Config) { c.Logger = log }
}

// WithClassifier replaces the HTTP client. The fallback policy still applies.
func WithClassifier(cl classifier.Classifier) Option {
	return func(c *Config) { c.Classifier = cl }
}

// WithStore replaces the reference catalogue.
func WithStore(s reference.Store) Option {
	return func(c *Config) { c.Store = s }
}

func defaultConfig() *Config {
	return &Config{
		Endpoint:     DefaultEndpoint,
		WireShape:    classifier.ShapeNumeric,
		HTTPTimeout:  classifier.DefaultTimeout,
		Fallback:     classifier.DefaultPolicy(),
		DrainTimeout: recorder.DefaultDrainTimeout,
	}
}

// FromEnv turns the HEARBIRD_* environment variables into options. Unset
// variables keep the defaults.
func FromEnv() ([]Option, error) {
	var opts []Option

	if v := strings.TrimSpace(os.Getenv(EnvEndpoint)); v != "" {
		opts = append(opts, WithEndpoint(v))
	}
	if v := strings.TrimSpace(os.Getenv(EnvFallback)); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvFallback, err)
		}
		opts = append(opts, WithFallback(enabled))
	}
	if v := strings.TrimSpace(os.Getenv(EnvFallbackDelay)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%s: invalid duration %q", EnvFallbackDelay, v)
		}
		opts = append(opts, WithFallbackDelay(d))
	}
	if v := os.Getenv(EnvWireShape); v != "" {
		shape, err := classifier.ParseShape(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvWireShape, err)
		}
		opts = append(opts, WithWireShape(shape))
	}
	if v := strings.TrimSpace(os.Getenv(EnvReferenceDB)); v != "" {
		opts = append(opts, WithReferenceDB(v))
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s: invalid duration %q", EnvHTTPTimeout, v)
		}
		opts = append(opts, WithHTTPTimeout(d))
	}
	return opts, nil
}
