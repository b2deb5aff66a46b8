package amf3

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Keys used when objects are flattened into maps.
const (
	ClassKey = "$class"
	DataKey  = "$data"
)

// Circular replaces a value that refers back to one of its ancestors in
// ToNative output.
const Circular = "[Circular]"

// MaxNativeValues bounds the number of values ToNative produces. Shared
// references are expanded at every use, so a small graph can describe
// an enormous tree.
const MaxNativeValues = 1 << 24

// ToNative converts a decoded value into plain Go values suitable for
// encoding/json or CBOR: nil, bool, int64, float64, string, time.Time,
// []byte, []any and map[string]any.
//
// Arrays with associative entries become maps with the dense part under
// decimal keys. Named objects carry their class under ClassKey and
// externalizable objects their payload under DataKey. Graphs nested
// deeper than DefaultMaxDepth fail with *NestingTooDeepError and
// expansions past MaxNativeValues with ErrTooLarge.
func ToNative(v Value) (any, error) {
	c := &nativeConverter{active: make(map[Value]bool)}
	return c.convert(v)
}

type nativeConverter struct {
	active map[Value]bool
	depth  int
	count  int
}

// take accounts for n more output values.
func (c *nativeConverter) take(n int) error {
	c.count += n
	if c.count > MaxNativeValues {
		return ErrTooLarge
	}
	return nil
}

func (c *nativeConverter) convert(v Value) (any, error) {
	if err := c.take(1); err != nil {
		return nil, err
	}

	switch x := v.(type) {
	case nil, Undefined, Null:
		return nil, nil
	case Boolean:
		return bool(x), nil
	case Integer:
		return int64(x), nil
	case Double:
		return float64(x), nil
	case String:
		return string(x), nil
	case Date:
		return x.Time(), nil
	case *ByteArray:
		return x.Data, nil
	case *IntVector:
		if err := c.take(len(x.Items)); err != nil {
			return nil, err
		}
		out := make([]any, len(x.Items))
		for i, item := range x.Items {
			out[i] = int64(item)
		}
		return out, nil
	case *UintVector:
		if err := c.take(len(x.Items)); err != nil {
			return nil, err
		}
		out := make([]any, len(x.Items))
		for i, item := range x.Items {
			out[i] = int64(item)
		}
		return out, nil
	case *DoubleVector:
		if err := c.take(len(x.Items)); err != nil {
			return nil, err
		}
		out := make([]any, len(x.Items))
		for i, item := range x.Items {
			out[i] = item
		}
		return out, nil
	case XML:
		return string(x), nil
	case XMLDocument:
		return string(x), nil
	}

	if c.active[v] {
		return Circular, nil
	}
	if c.depth >= DefaultMaxDepth {
		return nil, &NestingTooDeepError{Limit: DefaultMaxDepth}
	}
	c.active[v] = true
	c.depth++
	defer func() {
		delete(c.active, v)
		c.depth--
	}()

	switch x := v.(type) {
	case *Array:
		if len(x.Associative) == 0 {
			return c.convertList(x.Dense)
		}
		out := make(map[string]any, len(x.Dense)+len(x.Associative))
		if err := c.convertMembers(out, x.Associative); err != nil {
			return nil, err
		}
		for i, item := range x.Dense {
			converted, err := c.convert(item)
			if err != nil {
				return nil, err
			}
			out[strconv.Itoa(i)] = converted
		}
		return out, nil

	case *ObjectVector:
		return c.convertList(x.Items)

	case *Object:
		out := make(map[string]any)
		if x.Trait != nil {
			if !x.Trait.Anonymous() {
				out[ClassKey] = x.Trait.ClassName
			}
			if x.Trait.Externalizable {
				data, err := c.convert(x.Data)
				if err != nil {
					return nil, err
				}
				out[DataKey] = data
				return out, nil
			}
			for i, name := range x.Trait.Members {
				if i < len(x.Sealed) {
					converted, err := c.convert(x.Sealed[i])
					if err != nil {
						return nil, err
					}
					out[name] = converted
				}
			}
		}
		if err := c.convertMembers(out, x.Dynamic); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return nil, nil
	}
}

func (c *nativeConverter) convertList(items []Value) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		converted, err := c.convert(item)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

func (c *nativeConverter) convertMembers(out map[string]any, members []Member) error {
	for _, m := range members {
		converted, err := c.convert(m.Value)
		if err != nil {
			return err
		}
		out[m.Key] = converted
	}
	return nil
}

// FromNative converts plain Go values into a Value. It accepts the
// output shapes of ToNative and of encoding/json, including json.Number.
//
// Maps become anonymous dynamic objects with keys in sorted order. A map
// with a string ClassKey becomes a typed object whose sealed members are
// the remaining keys in sorted order; if it also has DataKey it becomes
// an externalizable object instead.
func FromNative(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case bool:
		return Boolean(x), nil
	case int:
		return fromInt(int64(x)), nil
	case int8:
		return Integer(x), nil
	case int16:
		return Integer(x), nil
	case int32:
		return fromInt(int64(x)), nil
	case int64:
		return fromInt(x), nil
	case uint:
		return fromUint(uint64(x)), nil
	case uint8:
		return Integer(x), nil
	case uint16:
		return Integer(x), nil
	case uint32:
		return fromUint(uint64(x)), nil
	case uint64:
		return fromUint(x), nil
	case float32:
		return Double(x), nil
	case float64:
		return Double(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return fromInt(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("amf3: invalid number %q: %w", x, err)
		}
		return Double(f), nil
	case string:
		return String(x), nil
	case time.Time:
		return DateFromTime(x), nil
	case []byte:
		return &ByteArray{Data: x}, nil
	case []any:
		array := &Array{}
		if len(x) > 0 {
			array.Dense = make([]Value, 0, len(x))
		}
		for i, item := range x {
			converted, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			array.Dense = append(array.Dense, converted)
		}
		return array, nil
	case map[string]any:
		return fromMap(x)
	default:
		return nil, fmt.Errorf("amf3: cannot convert %T", v)
	}
}

func fromInt(n int64) Value {
	if inInt29Range(n) {
		return Integer(n)
	}
	return Double(n)
}

func fromUint(n uint64) Value {
	if n <= MaxInt29 {
		return Integer(n)
	}
	return Double(n)
}

func fromMap(m map[string]any) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != ClassKey && k != DataKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	className, typed := m[ClassKey].(string)
	if typed {
		if data, ok := m[DataKey]; ok {
			converted, err := FromNative(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", DataKey, err)
			}
			return &Object{
				Trait: &Trait{ClassName: className, Externalizable: true},
				Data:  converted,
			}, nil
		}
		obj := NewObject(&Trait{ClassName: className, Members: keys})
		if len(keys) > 0 {
			obj.Sealed = make([]Value, len(keys))
		}
		for i, k := range keys {
			converted, err := FromNative(m[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj.Sealed[i] = converted
		}
		return obj, nil
	}

	obj := NewAnonymousObject()
	for _, k := range keys {
		converted, err := FromNative(m[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		obj.Dynamic = append(obj.Dynamic, Member{Key: k, Value: converted})
	}
	return obj, nil
}
