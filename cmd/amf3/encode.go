package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
)

func runEncode(env *environment, args []string) error {
	var sequence bool
	flags := newFlagSet(env, "encode")
	flags.BoolVarP(&sequence, "sequence", "s", false, "encode each element of a top-level JSON array as its own value")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := noArgs(flags); err != nil {
		return err
	}
	return encodeAMF(env.stdin, env.stdout, sequence)
}

// encodeAMF reads JSON with comments from r and writes AMF3 to w.
func encodeAMF(r io.Reader, w io.Writer, sequence bool) error {
	values, err := readJSONValues(r, sequence)
	if err != nil {
		return err
	}
	data, err := amf3.Serialize(values...)
	if err != nil {
		return fmt.Errorf("encode AMF3: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// readJSONValues parses JSONC from r into AMF3 values. Numbers keep
// their integer form so small integers encode as Integer.
func readJSONValues(r io.Reader, sequence bool) ([]amf3.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty input: expected JSON on stdin")
	}

	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()
	var document any
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}

	if !sequence {
		value, err := amf3.FromNative(document)
		if err != nil {
			return nil, err
		}
		return []amf3.Value{value}, nil
	}

	items, ok := document.([]any)
	if !ok {
		return nil, fmt.Errorf("--sequence needs a top-level JSON array, got %T", document)
	}
	values := make([]amf3.Value, 0, len(items))
	for i, item := range items {
		value, err := amf3.FromNative(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		values = append(values, value)
	}
	return values, nil
}
