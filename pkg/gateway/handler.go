package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
	"github.com/DMA-Software/dma-goamf/internal/logging"
)

// ServeFunc answers one decoded request with the values to send back.
type ServeFunc func(ctx context.Context, values []amf3.Value) ([]amf3.Value, error)

// DefaultMaxBodySize limits request bodies when Handler.MaxBodySize is
// zero.
const DefaultMaxBodySize = 8 << 20

// Handler serves AMF remoting requests over HTTP.
type Handler struct {
	// Serve is called with the values decoded after the request
	// preamble.
	Serve ServeFunc

	// PreambleLen is the number of opaque bytes before the first value
	// of a request body.
	PreambleLen int

	// ResponsePreamble is written before the encoded reply values.
	ResponsePreamble []byte

	// MaxBodySize bounds request bodies.
	MaxBodySize int64

	// Logger receives one record per request. Nil discards.
	Logger *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := h.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, fmt.Sprintf("reading body: %v", err), status)
		return
	}
	if len(body) < h.PreambleLen {
		http.Error(w, fmt.Sprintf("body is %d bytes, shorter than the %d-byte preamble", len(body), h.PreambleLen), http.StatusBadRequest)
		return
	}

	values, err := amf3.Deserialize(body[h.PreambleLen:])
	if err != nil {
		logger.Warn("rejecting request", "remote", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := h.Serve(r.Context(), values)
	if err != nil {
		logger.Error("serve failed", "remote", r.RemoteAddr, "values", len(values), "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	encoded, err := amf3.Serialize(reply...)
	if err != nil {
		logger.Error("encoding reply failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Info("served", "remote", r.RemoteAddr, "request_values", len(values), "reply_values", len(reply))

	w.Header().Set("Content-Type", ContentType)
	var out io.Writer = w
	if acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		out = gz
	}
	if _, err := out.Write(h.ResponsePreamble); err != nil {
		logger.Warn("writing reply failed", "error", err)
		return
	}
	if _, err := out.Write(encoded); err != nil {
		logger.Warn("writing reply failed", "error", err)
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.EqualFold(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]), "gzip") {
			return true
		}
	}
	return false
}
