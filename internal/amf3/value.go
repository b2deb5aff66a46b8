package amf3

import (
	"math"
	"time"
)

// Value is any AMF3 value. Type returns the marker the value is written
// with. The set of implementations is closed: the encoder rejects types
// declared outside this package with *UnsupportedTypeError.
type Value interface {
	Type() byte
}

// Undefined is the AMF3 undefined value.
type Undefined struct{}

func (Undefined) Type() byte { return MarkerUndefined }

// Null is the AMF3 null value. A nil Value encodes as Null.
type Null struct{}

func (Null) Type() byte { return MarkerNull }

// Boolean is encoded as the True or False marker with no payload.
type Boolean bool

func (b Boolean) Type() byte {
	if b {
		return MarkerTrue
	}
	return MarkerFalse
}

// Integer is a signed integer. Values outside [MinInt29, MaxInt29] are
// written as doubles.
type Integer int32

func (Integer) Type() byte { return MarkerInteger }

// Double is an IEEE-754 double.
type Double float64

func (Double) Type() byte { return MarkerDouble }

// String is a UTF-8 string. Repeated strings are written once per call
// and referenced afterwards.
type String string

func (String) Type() byte { return MarkerString }

// Date is a point in time in milliseconds since the Unix epoch.
type Date struct {
	Millis float64
}

func (Date) Type() byte { return MarkerDate }

// DateFromTime converts t to a Date with millisecond precision.
func DateFromTime(t time.Time) Date {
	return Date{Millis: float64(t.UnixMilli())}
}

// Time returns the date as a UTC time.Time.
func (d Date) Time() time.Time {
	sec, frac := math.Modf(d.Millis / 1000)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// Member is a key/value pair of an associative array or of a dynamic
// object's tail.
type Member struct {
	Key   string
	Value Value
}

// Array is an AMF3 array: a dense part indexed from zero and an
// ordered associative part with string keys.
type Array struct {
	Dense       []Value
	Associative []Member
}

func (*Array) Type() byte { return MarkerArray }

// NewArray returns a dense array holding values.
func NewArray(values ...Value) *Array {
	return &Array{Dense: values}
}

// Get returns the associative entry for key.
func (a *Array) Get(key string) (Value, bool) {
	return lookupMember(a.Associative, key)
}

// Set replaces the associative entry for key, or appends it.
func (a *Array) Set(key string, value Value) {
	a.Associative = setMember(a.Associative, key, value)
}

// ByteArray is a raw byte buffer.
type ByteArray struct {
	Data []byte
}

func (*ByteArray) Type() byte { return MarkerByteArray }

// IntVector is a Vector.<int>.
type IntVector struct {
	Fixed bool
	Items []int32
}

func (*IntVector) Type() byte { return MarkerIntVector }

// UintVector is a Vector.<uint>.
type UintVector struct {
	Fixed bool
	Items []uint32
}

func (*UintVector) Type() byte { return MarkerUintVector }

// DoubleVector is a Vector.<Number>.
type DoubleVector struct {
	Fixed bool
	Items []float64
}

func (*DoubleVector) Type() byte { return MarkerDoubleVector }

// ObjectVector is a Vector.<T> of arbitrary values. TypeName is the
// element class name, empty for Vector.<*>.
type ObjectVector struct {
	Fixed    bool
	TypeName string
	Items    []Value
}

func (*ObjectVector) Type() byte { return MarkerObjectVector }

// Trait describes the shape of an Object. Traits are deduplicated per
// call: by pointer first, then by equal contents.
type Trait struct {
	ClassName      string
	Dynamic        bool
	Externalizable bool
	Members        []string
}

// Anonymous reports whether the trait has no class name.
func (t *Trait) Anonymous() bool {
	return t.ClassName == ""
}

func (t *Trait) equal(other *Trait) bool {
	if t.ClassName != other.ClassName ||
		t.Dynamic != other.Dynamic ||
		t.Externalizable != other.Externalizable ||
		len(t.Members) != len(other.Members) {
		return false
	}
	for i, name := range t.Members {
		if other.Members[i] != name {
			return false
		}
	}
	return true
}

// Object is a class-tagged object. Sealed holds one value per
// Trait.Members entry in order. Dynamic holds the extra members of a
// dynamic object. Data holds the single payload of an externalizable
// object.
type Object struct {
	Trait   *Trait
	Sealed  []Value
	Dynamic []Member
	Data    Value
}

func (*Object) Type() byte { return MarkerObject }

// NewObject returns an object of the given trait with sealed values.
func NewObject(trait *Trait, sealed ...Value) *Object {
	return &Object{Trait: trait, Sealed: sealed}
}

// NewAnonymousObject returns an untyped dynamic object, the AMF3 form
// of an ActionScript Object literal.
func NewAnonymousObject(members ...Member) *Object {
	return &Object{
		Trait:   &Trait{Dynamic: true},
		Dynamic: members,
	}
}

// Get returns a member by name, looking at sealed members first.
func (o *Object) Get(name string) (Value, bool) {
	if o.Trait != nil {
		for i, member := range o.Trait.Members {
			if member == name && i < len(o.Sealed) {
				return o.Sealed[i], true
			}
		}
	}
	return lookupMember(o.Dynamic, name)
}

// Set assigns a sealed member if the trait declares name, otherwise a
// dynamic member.
func (o *Object) Set(name string, value Value) {
	if o.Trait != nil {
		for i, member := range o.Trait.Members {
			if member == name && i < len(o.Sealed) {
				o.Sealed[i] = value
				return
			}
		}
	}
	o.Dynamic = setMember(o.Dynamic, name, value)
}

// XMLDocument is the legacy XML document type. It cannot be encoded.
type XMLDocument string

func (XMLDocument) Type() byte { return MarkerXMLDocument }

// XML is the E4X XML type. It cannot be encoded.
type XML string

func (XML) Type() byte { return MarkerXML }

// Dictionary is the AMF3 dictionary type. It cannot be encoded.
type Dictionary struct {
	WeakKeys bool
	Entries  [][2]Value
}

func (*Dictionary) Type() byte { return MarkerDictionary }

func lookupMember(members []Member, key string) (Value, bool) {
	for _, m := range members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

func setMember(members []Member, key string, value Value) []Member {
	for i := range members {
		if members[i].Key == key {
			members[i].Value = value
			return members
		}
	}
	return append(members, Member{Key: key, Value: value})
}
