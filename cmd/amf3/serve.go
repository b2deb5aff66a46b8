package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
	"github.com/DMA-Software/dma-goamf/internal/logging"
	"github.com/DMA-Software/dma-goamf/pkg/gateway"
)

func runServe(env *environment, args []string) error {
	var (
		addr        string
		preambleLen int
		logLevel    string
		logFormat   string
	)
	flags := newFlagSet(env, "serve")
	flags.StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	flags.IntVar(&preambleLen, "preamble-len", 0, "opaque request bytes before the first value")
	flags.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "auto", "auto, text or json")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := noArgs(flags); err != nil {
		return err
	}
	if preambleLen < 0 {
		return fmt.Errorf("--preamble-len must not be negative")
	}

	logger, err := logging.NewWriter(env.stderr, logLevel, logFormat)
	if err != nil {
		return err
	}
	logger = logger.With("command", "serve")

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serveEcho(ctx, listener, preambleLen, logger)
}

// callStats counts requests per remote host.
type callStats struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *callStats) add(remote string) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[host]++
}

func (s *callStats) snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for host, n := range s.counts {
		out[host] = n
	}
	return out
}

// serveEcho answers every request with the values it carried until ctx
// is cancelled, then drains in-flight requests.
func serveEcho(ctx context.Context, listener net.Listener, preambleLen int, logger *slog.Logger) error {
	stats := &callStats{counts: make(map[string]int)}
	handler := &gateway.Handler{
		PreambleLen: preambleLen,
		Logger:      logger,
		Serve: func(_ context.Context, values []amf3.Value) ([]amf3.Value, error) {
			return values, nil
		},
	}

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stats.add(r.RemoteAddr)
			handler.ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	logger.Info("serving", "addr", listener.Addr().String(), "preamble_len", preambleLen)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			logger.Info("status", "requests", stats.snapshot())
		case <-ctx.Done():
			logger.Info("received shutdown signal, stopping server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down: %w", err)
			}
			return nil
		}
	}
}
