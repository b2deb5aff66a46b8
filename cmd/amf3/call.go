package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
	"github.com/DMA-Software/dma-goamf/internal/capture"
	"github.com/DMA-Software/dma-goamf/internal/config"
	"github.com/DMA-Software/dma-goamf/internal/logging"
	"github.com/DMA-Software/dma-goamf/internal/report"
	"github.com/DMA-Software/dma-goamf/pkg/gateway"
)

func runCall(env *environment, args []string) error {
	var (
		configPath string
		bodyPath   string
		options    string
		compact    bool
	)
	flags := newFlagSet(env, "call")
	flags.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvVar+")")
	flags.StringVar(&bodyPath, "body", "", "JSONC array of request values (default: stdin)")
	flags.StringVar(&options, "options", "", "print the reply as {value, label} options read from fields VALUE:LABEL")
	flags.BoolVarP(&compact, "compact", "c", false, "single-line JSON output")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := noArgs(flags); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Gateway.Endpoint == "" {
		return fmt.Errorf("gateway.endpoint is not configured")
	}
	logger, err := logging.NewWriter(env.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logger = logger.With("command", "call")

	client, err := newGatewayClient(cfg, logger)
	if err != nil {
		return err
	}

	var input io.Reader = env.stdin
	if bodyPath != "" {
		f, err := os.Open(bodyPath)
		if err != nil {
			return fmt.Errorf("opening body: %w", err)
		}
		defer f.Close()
		input = f
	}
	request, err := readJSONValues(input, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reply, err := client.Call(ctx, request...)
	if err != nil {
		return err
	}
	return printReply(env.stdout, reply, options, compact)
}

// loadConfig loads path, or the file named by the environment when path
// is empty, and validates it.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newGatewayClient builds a client from the gateway section, recording
// into the capture store when one is configured.
func newGatewayClient(cfg *config.Config, logger *slog.Logger) (*gateway.Client, error) {
	timeout, err := cfg.Gateway.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	preamble, err := cfg.Gateway.Preamble()
	if err != nil {
		return nil, err
	}

	opts := []gateway.Option{gateway.WithLogger(logger)}
	if cfg.Capture.Dir != "" {
		store, err := capture.Open(cfg.Capture.Dir, cfg.Capture.Compression, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gateway.WithRecorder(store))
	}

	return gateway.NewClient(gateway.Config{
		Endpoint:        cfg.Gateway.Endpoint,
		Timeout:         timeout,
		UserAgent:       cfg.Gateway.UserAgent,
		Cookies:         cfg.Gateway.Cookies,
		Preamble:        preamble,
		ResponseOffset:  cfg.Gateway.ResponseOffset,
		MaxResponseSize: cfg.Gateway.MaxResponseSize,
	}, opts...)
}

// printReply writes the reply values as JSON, or as option lists when
// fields is VALUE:LABEL.
func printReply(w io.Writer, reply []amf3.Value, fields string, compact bool) error {
	if fields == "" {
		native := make([]any, len(reply))
		for i, v := range reply {
			converted, err := amf3.ToNative(v)
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
		native[i] = converted
		}
		return writeJSON(w, native, compact)
	}

	valueField, labelField, ok := strings.Cut(fields, ":")
	if !ok || valueField == "" || labelField == "" {
		return fmt.Errorf("--options wants VALUE:LABEL, got %q", fields)
	}
	lists := make([][]report.Option, 0, len(reply))
	for i, v := range reply {
		opts, err := report.Options(v, valueField, labelField)
		if err != nil {
			return fmt.Errorf("reply value %d: %w", i, err)
		}
		lists = append(lists, opts)
	}
	return writeJSON(w, lists, compact)
}
