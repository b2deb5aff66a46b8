package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amf3.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Gateway.Timeout != "30s" {
		t.Errorf("expected timeout=30s, got %s", cfg.Gateway.Timeout)
	}
	if cfg.Capture.Compression != "auto" {
		t.Errorf("expected compression=auto, got %s", cfg.Capture.Compression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad_RequiresEnvVar(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DMA_GOAMF_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), EnvVar+" environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithEnvVar(t *testing.T) {
	path := writeConfig(t, `
gateway:
  endpoint: https://example.test/gateway/amf
  timeout: 5s
  cookies:
    JSESSIONID: abc123
  request_preamble_hex: |
    00 03 00 00
    00 01
  response_offset: 25
capture:
  dir: ${HOME}/captures
  compression: zstd
log:
  level: debug
  format: json
`)
	t.Setenv(EnvVar, path)
	t.Setenv("HOME", "/home/tester")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Gateway.Endpoint != "https://example.test/gateway/amf" {
		t.Errorf("endpoint = %s", cfg.Gateway.Endpoint)
	}
	if timeout, _ := cfg.Gateway.TimeoutDuration(); timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", timeout)
	}
	if cfg.Gateway.Cookies["JSESSIONID"] != "abc123" {
		t.Errorf("cookies = %v", cfg.Gateway.Cookies)
	}
	preamble, err := cfg.Gateway.Preamble()
	if err != nil {
		t.Fatalf("Preamble: %v", err)
	}
	if !bytes.Equal(preamble, []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x01}) {
		t.Errorf("preamble = % X", preamble)
	}
	if cfg.Gateway.ResponseOffset != 25 {
		t.Errorf("response_offset = %d", cfg.Gateway.ResponseOffset)
	}
	if cfg.Capture.Dir != "/home/tester/captures" {
		t.Errorf("capture.dir = %s", cfg.Capture.Dir)
	}
	// Unset values keep their defaults.
	if cfg.Gateway.UserAgent != "dma-goamf/1.0" {
		t.Errorf("user_agent = %s", cfg.Gateway.UserAgent)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "gateway: [unterminated")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("AMF_TEST_UNSET", "")
	vars := map[string]string{"HOME": "/h"}

	tests := []struct {
		input string
		want  string
	}{
		{"${HOME}/x", "/h/x"},
		{"${AMF_TEST_UNSET:-/tmp}/x", "/tmp/x"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := expandVars(tt.input, vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"endpoint scheme", func(c *Config) { c.Gateway.Endpoint = "ftp://host/x" }, "gateway.endpoint"},
		{"timeout", func(c *Config) { c.Gateway.Timeout = "soon" }, "gateway.timeout"},
		{"negative timeout", func(c *Config) { c.Gateway.Timeout = "-1s" }, "gateway.timeout"},
		{"preamble", func(c *Config) { c.Gateway.RequestPreambleHex = "zz" }, "request_preamble_hex"},
		{"offset", func(c *Config) { c.Gateway.ResponseOffset = -1 }, "response_offset"},
		{"response size", func(c *Config) { c.Gateway.MaxResponseSize = -1 }, "max_response_size"},
		{"compression", func(c *Config) { c.Capture.Compression = "brotli" }, "capture.compression"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
