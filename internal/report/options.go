// Package report projects decoded AMF3 result sets into the
// {value, label} option lists used to fill selection widgets.
//
// Only reconstructed values are inspected; nothing here depends on how
// the codec resolved references.
package report

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
)

// Option is one selectable entry.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ErrNotCollection is returned when a value holds no list of rows.
var ErrNotCollection = errors.New("report: value is not a collection")

// sourceField is the member a non-externalized ArrayCollection keeps
// its rows in.
const sourceField = "source"

// Options reads valueField and labelField from every row of v. v may be
// a dense array, an object vector, or a collection object whose payload
// or source member is one of those.
func Options(v amf3.Value, valueField, labelField string) ([]Option, error) {
	rows, err := Rows(v)
	if err != nil {
		return nil, err
	}

	options := make([]Option, 0, len(rows))
	for i, row := range rows {
		value, err := fieldString(row, valueField)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		label, err := fieldString(row, labelField)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		options = append(options, Option{Value: value, Label: label})
	}
	return options, nil
}

// Rows unwraps v to its list of rows.
func Rows(v amf3.Value) ([]amf3.Value, error) {
	visited := make(map[amf3.Value]bool)
	for {
		switch x := v.(type) {
		case *amf3.Array:
			if x != nil {
				return x.Dense, nil
			}
		case *amf3.ObjectVector:
			if x != nil {
				return x.Items, nil
			}
		case *amf3.Object:
			if x == nil {
				break
			}
			if visited[x] {
				return nil, fmt.Errorf("%w: object wraps itself", ErrNotCollection)
			}
			visited[x] = true
			if x.Trait != nil && x.Trait.Externalizable {
				if x.Data == nil {
					return nil, fmt.Errorf("%w: %s has no payload", ErrNotCollection, x.Trait.ClassName)
				}
				v = x.Data
				continue
			}
			if source, ok := x.Get(sourceField); ok {
				v = source
				continue
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotCollection, amf3.MarkerName(typeOf(v)))
	}
}

// Field returns the named member of an object or the named associative
// entry of an array.
func Field(row amf3.Value, name string) (amf3.Value, bool) {
	switch x := row.(type) {
	case *amf3.Object:
		return x.Get(name)
	case *amf3.Array:
		return x.Get(name)
	}
	return nil, false
}

func fieldString(row amf3.Value, name string) (string, error) {
	v, ok := Field(row, name)
	if !ok {
		return "", fmt.Errorf("field %q not found", name)
	}
	s, err := Render(v)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", name, err)
	}
	return s, nil
}

// Render formats a scalar as display text. Null and undefined render
// empty; integral doubles render without a fraction.
func Render(v amf3.Value) (string, error) {
	switch x := v.(type) {
	case nil, amf3.Undefined, amf3.Null:
		return "", nil
	case amf3.Boolean:
		return strconv.FormatBool(bool(x)), nil
	case amf3.Integer:
		return strconv.FormatInt(int64(x), 10), nil
	case amf3.Double:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case amf3.String:
		return string(x), nil
	case amf3.Date:
		return x.Time().Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("cannot render %s as text", amf3.MarkerName(v.Type()))
	}
}

func typeOf(v amf3.Value) byte {
	if v == nil {
		return amf3.MarkerNull
	}
	return v.Type()
}
