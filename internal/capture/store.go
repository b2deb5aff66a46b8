// Package capture keeps gateway request and response bodies on disk.
//
// Bodies are content addressed by a keyed BLAKE3 hash of their
// uncompressed bytes and stored once under blobs/, compressed with LZ4
// or zstd when that makes them smaller. Every exchange appends one CBOR
// record to index.cbor naming the two bodies.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DMA-Software/dma-goamf/internal/codec"
	"github.com/DMA-Software/dma-goamf/internal/logging"
	"github.com/DMA-Software/dma-goamf/pkg/gateway"
)

const (
	blobDir   = "blobs"
	indexFile = "index.cbor"

	// blob header: compression tag, then uncompressed size.
	headerSize = 1 + 4

	// MaxBodySize is the largest body the 4-byte size header can record.
	MaxBodySize = math.MaxUint32
)

// Entry is one recorded exchange.
type Entry struct {
	Time         time.Time `cbor:"time"`
	Endpoint     string    `cbor:"endpoint"`
	Status       int       `cbor:"status"`
	Request      string    `cbor:"request"`
	RequestSize  int       `cbor:"request_size"`
	Response     string    `cbor:"response"`
	ResponseSize int       `cbor:"response_size"`
}

// Store is a capture directory. It is safe for concurrent use.
type Store struct {
	root        string
	compression string
	logger      *slog.Logger

	indexMu sync.Mutex
}

var _ gateway.Recorder = (*Store)(nil)

// Open opens or creates the store rooted at dir. compression is none,
// lz4, zstd or auto.
func Open(dir, compression string, logger *slog.Logger) (*Store, error) {
	switch compression {
	case "", PolicyAuto, "none", "lz4", "zstd":
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if err := os.MkdirAll(filepath.Join(dir, blobDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating capture store: %w", err)
	}
	return &Store{root: dir, compression: compression, logger: logger}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) blobPath(hash Hash) string {
	name := hash.String()
	return filepath.Join(s.root, blobDir, name[:2], name)
}

// Put stores data and returns its hash. Storing a body that is already
// present is a no-op.
func (s *Store) Put(data []byte) (Hash, error) {
	if err := checkBodySize(len(data)); err != nil {
		return Hash{}, err
	}
	hash := HashBody(data)
	path := s.blobPath(hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	tag, payload, err := compress(data, s.compression)
	if err != nil {
		return hash, err
	}
	blob := make([]byte, headerSize, headerSize+len(payload))
	blob[0] = byte(tag)
	binary.BigEndian.PutUint32(blob[1:], uint32(len(data)))
	blob = append(blob, payload...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return hash, fmt.Errorf("creating blob directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return hash, fmt.Errorf("creating blob: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return hash, fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return hash, fmt.Errorf("writing blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return hash, fmt.Errorf("storing blob: %w", err)
	}

	s.logger.Debug("stored body", "hash", hash.String(), "size", len(data), "compression", tag.String(), "stored", len(blob))
	return hash, nil
}

func checkBodySize(n int) error {
	if uint64(n) > MaxBodySize {
		return fmt.Errorf("body is %d bytes, larger than the %d-byte capture limit", n, uint64(MaxBodySize))
	}
	return nil
}

// Get returns the uncompressed body named by hash.
func (s *Store) Get(hash Hash) ([]byte, error) {
	blob, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("body %s not in store: %w", hash, err)
		}
		return nil, err
	}
	if len(blob) < headerSize {
		return nil, fmt.Errorf("blob %s is truncated", hash)
	}
	size := int(binary.BigEndian.Uint32(blob[1:headerSize]))
	data, err := decompress(CompressionTag(blob[0]), blob[headerSize:], size)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	if HashBody(data) != hash {
		return nil, fmt.Errorf("blob %s is corrupt", hash)
	}
	return data, nil
}

// Record stores both bodies of an exchange and appends it to the index.
func (s *Store) Record(ctx context.Context, exchange gateway.Exchange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	request, err := s.Put(exchange.Request)
	if err != nil {
		return fmt.Errorf("storing request: %w", err)
	}
	response, err := s.Put(exchange.Response)
	if err != nil {
		return fmt.Errorf("storing response: %w", err)
	}

	entry := Entry{
		Time:         exchange.Time.UTC(),
		Endpoint:     exchange.Endpoint,
		Status:       exchange.Status,
		Request:      request.String(),
		RequestSize:  len(exchange.Request),
		Response:     response.String(),
		ResponseSize: len(exchange.Response),
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.root, indexFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	if err := codec.NewEncoder(f).Encode(entry); err != nil {
		f.Close()
		return fmt.Errorf("appending to index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("appending to index: %w", err)
	}

	s.logger.Info("captured exchange", "endpoint", entry.Endpoint, "status", entry.Status,
		"request", entry.Request[:12], "response", entry.Response[:12])
	return nil
}

// List returns every recorded exchange in recording order.
func (s *Store) List() ([]Entry, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	f, err := os.Open(filepath.Join(s.root, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	defer f.Close()

	var entries []Entry
	dec := codec.NewDecoder(f)
	for {
		var entry Entry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading index entry %d: %w", len(entries), err)
		}
		entries = append(entries, entry)
	}
}
