package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
	"github.com/DMA-Software/dma-goamf/internal/codec"
)

func runDecode(env *environment, args []string) error {
	var (
		offset  int
		format  string
		compact bool
	)
	flags := newFlagSet(env, "decode")
	flags.IntVar(&offset, "offset", 0, "skip this many bytes before the first value")
	flags.StringVarP(&format, "format", "f", "json", "output format: json or cbor")
	flags.BoolVarP(&compact, "compact", "c", false, "single-line JSON output")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := noArgs(flags); err != nil {
		return err
	}
	return decodeAMF(env.stdin, env.stdout, offset, format, compact)
}

// decodeAMF reads AMF3 values from r and writes them to w as a JSON
// array or a CBOR array.
func decodeAMF(r io.Reader, w io.Writer, offset int, format string, compact bool) error {
	values, err := readValues(r, offset)
	if err != nil {
		return err
	}

	native := make([]any, len(values))
	for i, v := range values {
		converted, err := amf3.ToNative(v)
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
		native[i] = converted
	}

	switch format {
	case "json":
		return writeJSON(w, native, compact)
	case "cbor":
		data, err := codec.Marshal(native)
		if err != nil {
			return fmt.Errorf("encode CBOR: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q (want json or cbor)", format)
	}
}

// readValues reads all of r and decodes the values after offset.
func readValues(r io.Reader, offset int) ([]amf3.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if offset < 0 || offset > len(data) {
		return nil, fmt.Errorf("offset %d outside %d-byte input", offset, len(data))
	}
	if len(data) == offset {
		return nil, fmt.Errorf("empty input: expected AMF3 data on stdin")
	}
	values, err := amf3.Deserialize(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode AMF3: %w", err)
	}
	return values, nil
}

func writeJSON(w io.Writer, value any, compact bool) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(value)
}
