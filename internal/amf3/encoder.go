package amf3

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encoder appends AMF3 values to an in-memory buffer. All values
// encoded by one Encoder share its reference tables, so a buffer built
// by one Encoder must be read back by one Decoder. An Encoder is not
// safe for concurrent use.
type Encoder struct {
	buf      []byte
	refs     encodeRefs
	depth    int
	maxDepth int
}

// NewEncoder creates an encoder with empty reference tables.
func NewEncoder() *Encoder {
	return &Encoder{maxDepth: DefaultMaxDepth}
}

// SetMaxDepth sets the nesting limit. Values below one restore
// DefaultMaxDepth.
func (e *Encoder) SetMaxDepth(n int) {
	if n < 1 {
		n = DefaultMaxDepth
	}
	e.maxDepth = n
}

// Serialize encodes values back to back with one set of reference
// tables and returns the bytes. On error no bytes are returned.
func Serialize(values ...Value) ([]byte, error) {
	e := NewEncoder()
	for i, v := range values {
		if err := e.Encode(v); err != nil {
			if len(values) > 1 {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// Encode appends one value.
func (e *Encoder) Encode(value Value) error {
	return e.encodeValue(value)
}

// Bytes returns the encoded bytes so far. The slice aliases the
// encoder's buffer until the next Encode.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteTo writes the encoded bytes to w.
func (e *Encoder) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(e.buf)
	return int64(n), err
}

func (e *Encoder) encodeValue(value Value) error {
	switch v := value.(type) {
	case nil:
		return e.writeMarker(MarkerNull)
	case Undefined:
		return e.writeMarker(MarkerUndefined)
	case Null:
		return e.writeMarker(MarkerNull)
	case Boolean:
		return e.writeMarker(v.Type())
	case Integer:
		return e.encodeInteger(int64(v))
	case Double:
		return e.encodeDouble(float64(v))
	case String:
		if err := e.writeMarker(MarkerString); err != nil {
			return err
		}
		return e.writeString(string(v))
	case Date:
		return e.encodeDate(v)
	case *Array:
		if v == nil {
			return e.writeMarker(MarkerNull)
		}
		if err := e.enter(); err != nil {
			return err
		}
		defer e.leave()
		return e.encodeArray(v)
	case *ByteArray:
		if v == nil {
			return e.writeMarker(MarkerNull)
		}
		return e.encodeByteArray(v)
	case *IntVector:
		if v == nil {
			return e.writeMarker(MarkerNull)
		}
		return e.encodeIntVector(v)
	case *UintVector:
		if v == nil {
			return e.writeMarker(MarkerNull)
		}
		return e.encodeUintVector(v)
	case *DoubleVector:
		if v == nil {
			return e.writeMarker(MarkerNull)
		}
		return e.encodeDoubleVector(v)
	case *ObjectVector:
		if v == nil {
			return e.writeMarker(MarkerNull)
		}
		if err := e.enter(); err != nil {
			return err
		}
		defer e.leave()
		return e.encodeObjectVector(v)
	case *Object:
		if v == nil {
			return e.writeMarker(MarkerNull)
		}
		if err := e.enter(); err != nil {
			return err
		}
		defer e.leave()
		return e.encodeObject(v)
	case XML, XMLDocument, *Dictionary:
		return &UnsupportedTypeError{Value: value}
	default:
		return &UnsupportedTypeError{Value: value}
	}
}

// enter records one more level of container nesting.
func (e *Encoder) enter() error {
	limit := e.maxDepth
	if limit < 1 {
		limit = DefaultMaxDepth
	}
	if e.depth >= limit {
		return &NestingTooDeepError{Limit: limit, Offset: len(e.buf)}
	}
	e.depth++
	return nil
}

func (e *Encoder) leave() {
	e.depth--
}

// encodeInteger writes n as an integer when it fits 29 signed bits and
// as a double otherwise.
func (e *Encoder) encodeInteger(n int64) error {
	if !inInt29Range(n) {
		return e.encodeDouble(float64(n))
	}
	if err := e.writeMarker(MarkerInteger); err != nil {
		return err
	}
	return e.writeU29(foldInt29(n))
}

func (e *Encoder) encodeDouble(f float64) error {
	e.buf = append(e.buf, MarkerDouble)
	e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(f))
	return nil
}

func (e *Encoder) encodeDate(d Date) error {
	e.buf = append(e.buf, MarkerDate)
	key := math.Float64bits(d.Millis)
	if i, ok := e.refs.dates.lookup(key); ok {
		return e.writeRef(i)
	}
	e.refs.dates.add(key)
	if err := e.writeInline(0); err != nil {
		return err
	}
	e.buf = binary.BigEndian.AppendUint64(e.buf, key)
	return nil
}

func (e *Encoder) encodeArray(a *Array) error {
	for _, m := range a.Associative {
		if m.Key == "" {
			return ErrEmptyKey
		}
	}
	e.buf = append(e.buf, MarkerArray)
	if i, ok := e.refs.arrays.lookup(a); ok {
		return e.writeRef(i)
	}
	e.refs.arrays.add(a)
	if err := e.writeInline(len(a.Dense)); err != nil {
		return err
	}
	if err := e.writeMembers(a.Associative); err != nil {
		return err
	}
	for i, v := range a.Dense {
		if err := e.encodeValue(v); err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
	}
	return nil
}

func (e *Encoder) encodeByteArray(b *ByteArray) error {
	e.buf = append(e.buf, MarkerByteArray)
	if i, ok := e.refs.objects.lookup(b); ok {
		return e.writeRef(i)
	}
	e.refs.objects.add(b)
	if err := e.writeInline(len(b.Data)); err != nil {
		return err
	}
	e.buf = append(e.buf, b.Data...)
	return nil
}

// beginVector writes the marker and either a reference (done is true)
// or the inline header and fixed-length flag.
func (e *Encoder) beginVector(v Value, count int, fixed bool) (done bool, err error) {
	e.buf = append(e.buf, v.Type())
	if i, ok := e.refs.objects.lookup(v); ok {
		return true, e.writeRef(i)
	}
	e.refs.objects.add(v)
	if err := e.writeInline(count); err != nil {
		return false, err
	}
	if fixed {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return false, nil
}

func (e *Encoder) encodeIntVector(v *IntVector) error {
	done, err := e.beginVector(v, len(v.Items), v.Fixed)
	if done || err != nil {
		return err
	}
	for _, item := range v.Items {
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(item))
	}
	return nil
}

func (e *Encoder) encodeUintVector(v *UintVector) error {
	done, err := e.beginVector(v, len(v.Items), v.Fixed)
	if done || err != nil {
		return err
	}
	for _, item := range v.Items {
		e.buf = binary.BigEndian.AppendUint32(e.buf, item)
	}
	return nil
}

func (e *Encoder) encodeDoubleVector(v *DoubleVector) error {
	done, err := e.beginVector(v, len(v.Items), v.Fixed)
	if done || err != nil {
		return err
	}
	for _, item := range v.Items {
		e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(item))
	}
	return nil
}

func (e *Encoder) encodeObjectVector(v *ObjectVector) error {
	done, err := e.beginVector(v, len(v.Items), v.Fixed)
	if done || err != nil {
		return err
	}
	if err := e.writeString(v.TypeName); err != nil {
		return err
	}
	for i, item := range v.Items {
		if err := e.encodeValue(item); err != nil {
			return fmt.Errorf("vector index %d: %w", i, err)
		}
	}
	return nil
}

func (e *Encoder) encodeObject(o *Object) error {
	t := o.Trait
	if t == nil {
		return ErrNilTrait
	}
	if !t.Externalizable && len(o.Sealed) != len(t.Members) {
		return fmt.Errorf("%w: class %q declares %d members, object has %d values",
			ErrSealedMismatch, t.ClassName, len(t.Members), len(o.Sealed))
	}
	if t.Dynamic {
		for _, m := range o.Dynamic {
			if m.Key == "" {
				return ErrEmptyKey
			}
		}
	}

	e.buf = append(e.buf, MarkerObject)
	if i, ok := e.refs.objects.lookup(o); ok {
		return e.writeRef(i)
	}
	e.refs.objects.add(o)
	if err := e.writeTrait(t); err != nil {
		return err
	}

	if t.Externalizable {
		if err := e.encodeValue(o.Data); err != nil {
			return fmt.Errorf("externalized %q: %w", t.ClassName, err)
		}
		return nil
	}
	for i, v := range o.Sealed {
		if err := e.encodeValue(v); err != nil {
			return fmt.Errorf("member %q: %w", t.Members[i], err)
		}
	}
	if t.Dynamic {
		return e.writeMembers(o.Dynamic)
	}
	return nil
}

// writeTrait writes a trait reference when the trait (or an equal one)
// was already written, and the inline definition otherwise.
func (e *Encoder) writeTrait(t *Trait) error {
	if i, ok := e.refs.traitIndex(t); ok {
		if i > MaxU29>>2 {
			return &IntegerOutOfRangeError{Value: int64(i)}
		}
		return e.writeU29(uint32(i)<<2 | 0x01)
	}
	if len(t.Members) > MaxU29>>traitMemberShift {
		return &IntegerOutOfRangeError{Value: int64(len(t.Members))}
	}
	header := uint32(len(t.Members))<<traitMemberShift | traitInline | 0x01
	if t.Externalizable {
		header |= traitExternalizable
	}
	if t.Dynamic {
		header |= traitDynamic
	}
	e.refs.traits = append(e.refs.traits, t)
	if err := e.writeU29(header); err != nil {
		return err
	}
	if err := e.writeString(t.ClassName); err != nil {
		return err
	}
	for _, name := range t.Members {
		if err := e.writeString(name); err != nil {
			return err
		}
	}
	return nil
}

// writeMembers writes key/value pairs followed by the empty-string
// terminator.
func (e *Encoder) writeMembers(members []Member) error {
	for _, m := range members {
		if err := e.writeString(m.Key); err != nil {
			return err
		}
		if err := e.encodeValue(m.Value); err != nil {
			return fmt.Errorf("key %q: %w", m.Key, err)
		}
	}
	e.buf = append(e.buf, emptyString)
	return nil
}

// writeString writes a string without a marker, as used for values,
// keys, class names and member names.
func (e *Encoder) writeString(s string) error {
	if s == "" {
		e.buf = append(e.buf, emptyString)
		return nil
	}
	if i, ok := e.refs.strings.lookup(s); ok {
		return e.writeRef(i)
	}
	if err := e.writeInline(len(s)); err != nil {
		return err
	}
	e.refs.strings.add(s)
	e.buf = append(e.buf, s...)
	return nil
}

func (e *Encoder) writeMarker(marker byte) error {
	e.buf = append(e.buf, marker)
	return nil
}

func (e *Encoder) writeU29(value uint32) error {
	buf, err := AppendU29(e.buf, value)
	if err != nil {
		return err
	}
	e.buf = buf
	return nil
}

// writeInline writes (n << 1) | 1.
func (e *Encoder) writeInline(n int) error {
	if n < 0 || n > MaxU29>>1 {
		return &IntegerOutOfRangeError{Value: int64(n)}
	}
	return e.writeU29(uint32(n)<<1 | 1)
}

// writeRef writes index << 1.
func (e *Encoder) writeRef(index int) error {
	if index > MaxU29>>1 {
		return &IntegerOutOfRangeError{Value: int64(index)}
	}
	return e.writeU29(uint32(index) << 1)
}
