package amf3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// DefaultMaxDepth bounds how deeply arrays, objects and object vectors
// may nest, both on the wire and in graphs walked by Equal and ToNative.
const DefaultMaxDepth = 1000

// Decoder reads AMF3 values from a complete in-memory buffer. All values
// read by one Decoder share its reference tables. A Decoder is not safe
// for concurrent use.
//
// The dynamic member tail of an object is read only when its trait has
// the Dynamic flag. Anonymous traits without that flag are sealed and
// have no tail.
type Decoder struct {
	data     []byte
	pos      int
	refs     decodeRefs
	depth    int
	maxDepth int
}

// NewDecoder creates a decoder over data with empty reference tables.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data, maxDepth: DefaultMaxDepth}
}

// SetMaxDepth sets the nesting limit. Values below one restore
// DefaultMaxDepth.
func (d *Decoder) SetMaxDepth(n int) {
	if n < 1 {
		n = DefaultMaxDepth
	}
	d.maxDepth = n
}

// Deserialize decodes every value in data, in order, until the buffer
// is exhausted. A truncated or malformed trailing value is an error and
// no values are returned.
func Deserialize(data []byte) ([]Value, error) {
	d := NewDecoder(data)
	var values []Value
	for d.More() {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// More reports whether unread bytes remain.
func (d *Decoder) More() bool {
	return d.pos < len(d.data)
}

// Offset returns the position of the next unread byte.
func (d *Decoder) Offset() int {
	return d.pos
}

func (d *Decoder) limit() int {
	if d.maxDepth < 1 {
		return DefaultMaxDepth
	}
	return d.maxDepth
}

// Decode reads one complete value.
func (d *Decoder) Decode() (Value, error) {
	return d.decodeValue()
}

func (d *Decoder) decodeValue() (Value, error) {
	start := d.pos
	marker, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch marker {
	case MarkerUndefined:
		return Undefined{}, nil
	case MarkerNull:
		return Null{}, nil
	case MarkerFalse:
		return Boolean(false), nil
	case MarkerTrue:
		return Boolean(true), nil
	case MarkerInteger:
		u, err := d.readU29()
		if err != nil {
			return nil, err
		}
		return Integer(unfoldInt29(u)), nil
	case MarkerDouble:
		f, err := d.readFloat64()
		if err != nil {
			return nil, err
		}
		return Double(f), nil
	case MarkerString:
		s, err := d.readString()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case MarkerDate:
		return d.decodeDate()
	case MarkerArray, MarkerObject, MarkerObjectVector:
		if limit := d.limit(); d.depth >= limit {
			d.pos = start
			return nil, &NestingTooDeepError{Limit: limit, Offset: start}
		}
		d.depth++
		defer func() { d.depth-- }()
		switch marker {
		case MarkerArray:
			return d.decodeArray()
		case MarkerObject:
			return d.decodeObject()
		}
		return d.decodeVector(marker)
	case MarkerByteArray:
		return d.decodeByteArray()
	case MarkerIntVector, MarkerUintVector, MarkerDoubleVector:
		return d.decodeVector(marker)
	case MarkerXMLDocument, MarkerXML:
		d.pos = start
		return nil, &LegacyTypeNotSupportedError{Marker: marker, Offset: start}
	case MarkerDictionary:
		d.pos = start
		return nil, &NotImplementedError{Marker: marker, Offset: start}
	default:
		d.pos = start
		return nil, &UnknownMarkerError{Marker: marker, Offset: start}
	}
}

// readHeader reads a U29 following the reference-bit convention. When
// inline is false, n is a table index; otherwise n is a length.
func (d *Decoder) readHeader() (n int, inline bool, err error) {
	u, err := d.readU29()
	if err != nil {
		return 0, false, err
	}
	return int(u >> 1), u&1 == 1, nil
}

func (d *Decoder) decodeDate() (Value, error) {
	start := d.pos
	n, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		if n >= len(d.refs.dates) {
			return nil, &InvalidReferenceError{Table: "date", Index: n, Offset: start}
		}
		return d.refs.dates[n], nil
	}
	millis, err := d.readFloat64()
	if err != nil {
		return nil, err
	}
	date := Date{Millis: millis}
	d.refs.dates = append(d.refs.dates, date)
	return date, nil
}

func (d *Decoder) decodeArray() (Value, error) {
	start := d.pos
	n, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		if n >= len(d.refs.arrays) {
			return nil, &InvalidReferenceError{Table: "array", Index: n, Offset: start}
		}
		return d.refs.arrays[n], nil
	}

	// Every element takes at least one byte, plus the terminator.
	if err := d.need(n + 1); err != nil {
		return nil, err
	}
	array := &Array{}
	d.refs.arrays = append(d.refs.arrays, array)

	members, err := d.readMembers()
	if err != nil {
		return nil, err
	}
	array.Associative = members

	if n > 0 {
		array.Dense = make([]Value, 0, n)
	}
	for i := 0; i < n; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, fmt.Errorf("array index %d: %w", i, err)
		}
		array.Dense = append(array.Dense, v)
	}
	return array, nil
}

func (d *Decoder) decodeByteArray() (Value, error) {
	start := d.pos
	n, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, start)
	}
	raw, err := d.readBytes(n)
	if err != nil {
		return nil, err
	}
	b := &ByteArray{Data: append([]byte(nil), raw...)}
	d.refs.objects = append(d.refs.objects, b)
	return b, nil
}

func (d *Decoder) decodeVector(marker byte) (Value, error) {
	start := d.pos
	n, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, start)
	}
	flag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	fixed := flag != 0

	switch marker {
	case MarkerIntVector:
		raw, err := d.readBytes(4 * n)
		if err != nil {
			return nil, err
		}
		v := &IntVector{Fixed: fixed}
		if n > 0 {
			v.Items = make([]int32, n)
		}
		for i := range v.Items {
			v.Items[i] = int32(binary.BigEndian.Uint32(raw[4*i:]))
		}
		d.refs.objects = append(d.refs.objects, v)
		return v, nil

	case MarkerUintVector:
		raw, err := d.readBytes(4 * n)
		if err != nil {
			return nil, err
		}
		v := &UintVector{Fixed: fixed}
		if n > 0 {
			v.Items = make([]uint32, n)
		}
		for i := range v.Items {
			v.Items[i] = binary.BigEndian.Uint32(raw[4*i:])
		}
		d.refs.objects = append(d.refs.objects, v)
		return v, nil

	case MarkerDoubleVector:
		raw, err := d.readBytes(8 * n)
		if err != nil {
			return nil, err
		}
		v := &DoubleVector{Fixed: fixed}
		if n > 0 {
			v.Items = make([]float64, n)
		}
		for i := range v.Items {
			v.Items[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[8*i:]))
		}
		d.refs.objects = append(d.refs.objects, v)
		return v, nil

	default:
		v := &ObjectVector{Fixed: fixed}
		d.refs.objects = append(d.refs.objects, v)
		typeName, err := d.readString()
		if err != nil {
			return nil, err
		}
		v.TypeName = typeName
		if err := d.need(n); err != nil {
			return nil, err
		}
		if n > 0 {
			v.Items = make([]Value, 0, n)
		}
		for i := 0; i < n; i++ {
			item, err := d.decodeValue()
			if err != nil {
				return nil, fmt.Errorf("vector index %d: %w", i, err)
			}
			v.Items = append(v.Items, item)
		}
		return v, nil
	}
}

func (d *Decoder) decodeObject() (Value, error) {
	start := d.pos
	u, err := d.readU29()
	if err != nil {
		return nil, err
	}
	if u&1 == 0 {
		return d.objectRef(int(u>>1), start)
	}

	trait, err := d.readTrait(u>>1, start)
	if err != nil {
		return nil, err
	}
	obj := &Object{Trait: trait}
	d.refs.objects = append(d.refs.objects, obj)

	if trait.Externalizable {
		data, err := d.decodeValue()
		if err != nil {
			return nil, fmt.Errorf("externalized %q: %w", trait.ClassName, err)
		}
		obj.Data = data
		return obj, nil
	}

	if len(trait.Members) > 0 {
		obj.Sealed = make([]Value, 0, len(trait.Members))
	}
	for _, name := range trait.Members {
		v, err := d.decodeValue()
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", name, err)
		}
		obj.Sealed = append(obj.Sealed, v)
	}
	if trait.Dynamic {
		members, err := d.readMembers()
		if err != nil {
			return nil, err
		}
		obj.Dynamic = members
	}
	return obj, nil
}

// readTrait resolves the trait part of an inline object header. info is
// the object U29 with the instance bit already shifted out.
func (d *Decoder) readTrait(info uint32, start int) (*Trait, error) {
	if info&1 == 0 {
		i := int(info >> 1)
		if i >= len(d.refs.traits) {
			return nil, &InvalidReferenceError{Table: "trait", Index: i, Offset: start}
		}
		return d.refs.traits[i], nil
	}

	count := int(info >> 3)
	trait := &Trait{
		Externalizable: info&(traitExternalizable>>1) != 0,
		Dynamic:        info&(traitDynamic>>1) != 0,
	}
	className, err := d.readString()
	if err != nil {
		return nil, err
	}
	trait.ClassName = className
	if err := d.need(count); err != nil {
		return nil, err
	}
	if count > 0 {
		trait.Members = make([]string, 0, count)
	}
	for i := 0; i < count; i++ {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		trait.Members = append(trait.Members, name)
	}
	d.refs.traits = append(d.refs.traits, trait)
	return trait, nil
}

func (d *Decoder) objectRef(i, start int) (Value, error) {
	if i >= len(d.refs.objects) {
		return nil, &InvalidReferenceError{Table: "object", Index: i, Offset: start}
	}
	return d.refs.objects[i], nil
}

// readMembers reads key/value pairs up to the empty-string key.
func (d *Decoder) readMembers() ([]Member, error) {
	var members []Member
	for {
		key, err := d.readString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			return members, nil
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		members = append(members, Member{Key: key, Value: v})
	}
}

// readString reads a string without a marker.
func (d *Decoder) readString() (string, error) {
	start := d.pos
	n, inline, err := d.readHeader()
	if err != nil {
		return "", err
	}
	if !inline {
		if n >= len(d.refs.strings) {
			return "", &InvalidReferenceError{Table: "string", Index: n, Offset: start}
		}
		return d.refs.strings[n], nil
	}
	if n == 0 {
		return "", nil
	}
	raw, err := d.readBytes(n)
	if err != nil {
		return "", err
	}
	s := string(raw)
	d.refs.strings = append(d.refs.strings, s)
	return s, nil
}

func (d *Decoder) readU29() (uint32, error) {
	u, n, err := ReadU29(d.data[d.pos:])
	if err != nil {
		var eob *UnexpectedEndOfBufferError
		if errors.As(err, &eob) {
			return 0, &UnexpectedEndOfBufferError{Offset: d.pos, Need: n + 1}
		}
		return 0, err
	}
	d.pos += n
	return u, nil
}

func (d *Decoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readFloat64() (float64, error) {
	raw, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
}

// readBytes returns the next n bytes without copying.
func (d *Decoder) readBytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	raw := d.data[d.pos : d.pos+n]
	d.pos += n
	return raw, nil
}

// need fails unless n more bytes are available.
func (d *Decoder) need(n int) error {
	if n < 0 || n > len(d.data)-d.pos {
		return &UnexpectedEndOfBufferError{Offset: d.pos, Need: n}
	}
	return nil
}
