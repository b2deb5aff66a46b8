package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
)

func runDiag(env *environment, args []string) error {
	var offset int
	flags := newFlagSet(env, "diag")
	flags.IntVar(&offset, "offset", 0, "skip this many bytes before the first value")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := noArgs(flags); err != nil {
		return err
	}
	return diagAMF(env.stdin, env.stdout, offset)
}

// diagAMF writes one line per top-level value: its byte offset, its
// marker name and a typed rendering that keeps integer, double, byte
// array and class distinctions JSON loses.
func diagAMF(r io.Reader, w io.Writer, offset int) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if offset < 0 || offset > len(data) {
		return fmt.Errorf("offset %d outside %d-byte input", offset, len(data))
	}

	decoder := amf3.NewDecoder(data[offset:])
	for decoder.More() {
		at := offset + decoder.Offset()
		value, err := decoder.Decode()
		if err != nil {
			return fmt.Errorf("diagnose AMF3 at byte %d: %w", at, err)
		}
		text, err := diagnose(value)
		if err != nil {
			return fmt.Errorf("diagnose AMF3 at byte %d: %w", at, err)
		}
		if _, err := fmt.Fprintf(w, "%6d  %-14s %s\n", at, amf3.MarkerName(value.Type()), text); err != nil {
			return err
		}
	}
	return nil
}

// maxDiagBytes bounds one rendered value. Shared values are rendered at
// every use.
const maxDiagBytes = 64 << 20

func diagnose(v amf3.Value) (string, error) {
	d := &diagWriter{active: make(map[amf3.Value]bool)}
	if err := d.write(v); err != nil {
		return "", err
	}
	return d.b.String(), nil
}

type diagWriter struct {
	b      strings.Builder
	active map[amf3.Value]bool
	depth  int
}

func (d *diagWriter) write(v amf3.Value) error {
	if d.b.Len() > maxDiagBytes {
		return fmt.Errorf("rendering exceeds %d bytes", maxDiagBytes)
	}
	b := &d.b

	switch x := v.(type) {
	case nil, amf3.Null:
		b.WriteString("null")
		return nil
	case amf3.Undefined:
		b.WriteString("undefined")
		return nil
	case amf3.Boolean:
		b.WriteString(strconv.FormatBool(bool(x)))
		return nil
	case amf3.Integer:
		b.WriteString(strconv.FormatInt(int64(x), 10))
		return nil
	case amf3.Double:
		s := strconv.FormatFloat(float64(x), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		b.WriteString(s)
		return nil
	case amf3.String:
		b.WriteString(strconv.Quote(string(x)))
		return nil
	case amf3.Date:
		fmt.Fprintf(b, "date(%s)", x.Time().Format(time.RFC3339Nano))
		return nil
	case *amf3.ByteArray:
		fmt.Fprintf(b, "h'%s'", hex.EncodeToString(x.Data))
		return nil
	case *amf3.IntVector:
		writeVector(b, "int", x.Fixed, len(x.Items), func(i int) string { return strconv.FormatInt(int64(x.Items[i]), 10) })
		return nil
	case *amf3.UintVector:
		writeVector(b, "uint", x.Fixed, len(x.Items), func(i int) string { return strconv.FormatUint(uint64(x.Items[i]), 10) })
		return nil
	case *amf3.DoubleVector:
		writeVector(b, "double", x.Fixed, len(x.Items), func(i int) string { return strconv.FormatFloat(x.Items[i], 'g', -1, 64) })
		return nil
	}

	if d.active[v] {
		b.WriteString(amf3.Circular)
		return nil
	}
	if d.depth >= amf3.DefaultMaxDepth {
		return &amf3.NestingTooDeepError{Limit: amf3.DefaultMaxDepth}
	}
	d.active[v] = true
	d.depth++
	defer func() {
		delete(d.active, v)
		d.depth--
	}()

	switch x := v.(type) {
	case *amf3.Array:
		b.WriteByte('[')
		for i, item := range x.Dense {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := d.write(item); err != nil {
				return err
			}
		}
		if len(x.Associative) > 0 {
			b.WriteString("; ")
			if err := d.writeMembers(x.Associative); err != nil {
				return err
			}
		}
		b.WriteByte(']')

	case *amf3.ObjectVector:
		fmt.Fprintf(b, "vector<%s>", x.TypeName)
		if x.Fixed {
			b.WriteString(" fixed")
		}
		b.WriteByte('(')
		for i, item := range x.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := d.write(item); err != nil {
				return err
			}
		}
		b.WriteByte(')')

	case *amf3.Object:
		if x.Trait == nil {
			b.WriteString("{}")
			return nil
		}
		b.WriteString(x.Trait.ClassName)
		if x.Trait.Externalizable {
			b.WriteByte('<')
			if err := d.write(x.Data); err != nil {
				return err
			}
			b.WriteByte('>')
			return nil
		}
		b.WriteByte('{')
		for i, name := range x.Trait.Members {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s: ", name)
			if i < len(x.Sealed) {
				if err := d.write(x.Sealed[i]); err != nil {
					return err
				}
			}
		}
		if len(x.Dynamic) > 0 {
			if len(x.Trait.Members) > 0 {
				b.WriteString("; ")
			}
			if err := d.writeMembers(x.Dynamic); err != nil {
				return err
			}
		}
		b.WriteByte('}')

	default:
		fmt.Fprintf(b, "<%s>", amf3.MarkerName(v.Type()))
	}
	return nil
}

func (d *diagWriter) writeMembers(members []amf3.Member) error {
	for i, m := range members {
		if i > 0 {
			d.b.WriteString(", ")
		}
		fmt.Fprintf(&d.b, "%s: ", strconv.Quote(m.Key))
		if err := d.write(m.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeVector(b *strings.Builder, kind string, fixed bool, n int, item func(int) string) {
	b.WriteString(kind)
	if fixed {
		b.WriteString(" fixed")
	}
	b.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(item(i))
	}
	b.WriteByte(')')
}
