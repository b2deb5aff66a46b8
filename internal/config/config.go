// Package config loads the configuration of the amf3 command.
//
// Configuration is read from a single YAML file named by:
//   - the --config flag, or
//   - the DMA_GOAMF_CONFIG environment variable
//
// Values missing from the file keep their Default. ${HOME} and
// ${VAR:-default} patterns in paths are expanded after loading.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "DMA_GOAMF_CONFIG"

// Config is the complete configuration.
type Config struct {
	// Gateway configures the remoting endpoint used by `amf3 call`.
	Gateway GatewayConfig `yaml:"gateway"`

	// Capture configures where request and response bodies are kept.
	Capture CaptureConfig `yaml:"capture"`

	// Log configures the command logger.
	Log LogConfig `yaml:"log"`
}

// GatewayConfig describes an AMF remoting endpoint.
type GatewayConfig struct {
	// Endpoint is the URL request bodies are posted to.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds a whole request, as a Go duration string.
	// Default: 30s
	Timeout string `yaml:"timeout"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`

	// Cookies seeds the session cookie jar, keyed by cookie name.
	Cookies map[string]string `yaml:"cookies"`

	// RequestPreambleHex is written before the AMF3 values of every
	// request body, hex encoded.
	RequestPreambleHex string `yaml:"request_preamble_hex"`

	// ResponseOffset is where the first AMF3 value starts in a
	// response body.
	ResponseOffset int `yaml:"response_offset"`

	// MaxResponseSize bounds decoded response bodies in bytes. Zero
	// uses the client default.
	MaxResponseSize int64 `yaml:"max_response_size"`
}

// CaptureConfig configures the capture store.
type CaptureConfig struct {
	// Dir is the store root. Empty disables capturing.
	Dir string `yaml:"dir"`

	// Compression is one of none, lz4, zstd or auto.
	// Default: auto
	Compression string `yaml:"compression"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is auto, text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration used before a file is applied.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Timeout:   "30s",
			UserAgent: "dma-goamf/1.0",
		},
		Capture: CaptureConfig{
			Compression: "auto",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file named by DMA_GOAMF_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Capture.Dir = expandVars(c.Capture.Dir, vars)
	if c.Capture.Dir != "" {
		c.Capture.Dir = filepath.Clean(c.Capture.Dir)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// TimeoutDuration parses Timeout.
func (g GatewayConfig) TimeoutDuration() (time.Duration, error) {
	if g.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(g.Timeout)
}

// Preamble decodes RequestPreambleHex. Whitespace is ignored so long
// preambles can be wrapped in the file.
func (g GatewayConfig) Preamble() ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(g.RequestPreambleHex), ""))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Gateway.Endpoint != "" {
		u, err := url.Parse(c.Gateway.Endpoint)
		if err != nil {
			errs = append(errs, fmt.Errorf("gateway.endpoint: %w", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("gateway.endpoint must be an http or https URL, got %q", c.Gateway.Endpoint))
		}
	}
	if timeout, err := c.Gateway.TimeoutDuration(); err != nil {
		errs = append(errs, fmt.Errorf("gateway.timeout: %w", err))
	} else if timeout < 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout must not be negative"))
	}
	if _, err := c.Gateway.Preamble(); err != nil {
		errs = append(errs, fmt.Errorf("gateway.request_preamble_hex: %w", err))
	}
	if c.Gateway.ResponseOffset < 0 {
		errs = append(errs, fmt.Errorf("gateway.response_offset must not be negative"))
	}
	if c.Gateway.MaxResponseSize < 0 {
		errs = append(errs, fmt.Errorf("gateway.max_response_size must not be negative"))
	}

	switch c.Capture.Compression {
	case "", "auto", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("invalid capture.compression: %s", c.Capture.Compression))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level: %s", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format: %s", c.Log.Format))
	}

	return errors.Join(errs...)
}
