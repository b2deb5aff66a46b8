package amf3

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Value
	}{
		{"undefined", []byte{0x00}, Undefined{}},
		{"null", []byte{0x01}, Null{}},
		{"false", []byte{0x02}, Boolean(false)},
		{"true", []byte{0x03}, Boolean(true)},
		{"integer", []byte{0x04, 0x81, 0x00}, Integer(128)},
		{"negative integer", []byte{0x04, 0xFF, 0xFF, 0xFF, 0xFF}, Integer(-1)},
		{"min integer", []byte{0x04, 0xC0, 0x80, 0x80, 0x00}, Integer(MinInt29)},
		{"double", []byte{0x05, 0x3F, 0xF8, 0, 0, 0, 0, 0, 0}, Double(1.5)},
		{"empty string", []byte{0x06, 0x01}, String("")},
		{"string", []byte{0x06, 0x07, 'a', 'b', 'c'}, String("abc")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := Deserialize(tt.data)
			if err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			if len(values) != 1 {
				t.Fatalf("Deserialize returned %d values, want 1", len(values))
			}
			if values[0] != tt.want {
				t.Errorf("Deserialize = %#v, want %#v", values[0], tt.want)
			}
		})
	}
}

func TestDecodeBackToBack(t *testing.T) {
	values, err := Deserialize([]byte{0x01, 0x03, 0x06, 0x03, 'a'})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	want := []Value{Null{}, Boolean(true), String("a")}
	if len(values) != len(want) {
		t.Fatalf("Deserialize returned %d values, want %d", len(values), len(want))
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("value %d = %#v, want %#v", i, values[i], want[i])
		}
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	values, err := Deserialize(nil)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("Deserialize(nil) returned %d values", len(values))
	}
}

func TestDecodeTruncated(t *testing.T) {
	inputs := map[string][]byte{
		"integer":         {0x04, 0x81},
		"double":          {0x05, 0x00, 0x00},
		"string payload":  {0x06, 0x07, 'a'},
		"date":            {0x08, 0x01, 0x00},
		"array elements":  {0x09, 0x05, 0x01, 0x04, 0x01},
		"array header":    {0x09},
		"object trait":    {0x0A, 0x23, 0x09, 'I'},
		"object members":  {0x0A, 0x0B, 0x01, 0x03, 'k'},
		"byte array":      {0x0C, 0x09, 'a'},
		"int vector":      {0x0D, 0x05, 0x00, 0x00, 0x00, 0x00, 0x01},
		"vector flag":     {0x0E, 0x03},
		"double vector":   {0x0F, 0x03, 0x00, 0x00},
		"object vector":   {0x10, 0x03, 0x00, 0x01},
		"second of two":   {0x01, 0x06, 0x05},
		"externalizable":  {0x0A, 0x07, 0x03, 'e'},
		"dynamic tail":    {0x0A, 0x0B, 0x01},
		"sealed value":    {0x0A, 0x13, 0x01, 0x03, 'a'},
		"string key":      {0x09, 0x01, 0x07, 'a'},
		"object instance": {0x0A},
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			values, err := Deserialize(input)
			var eob *UnexpectedEndOfBufferError
			if !errors.As(err, &eob) {
				t.Fatalf("Deserialize(% X) error = %v, want UnexpectedEndOfBufferError", input, err)
			}
			if values != nil {
				t.Errorf("Deserialize returned partial values %#v", values)
			}
		})
	}
}

func TestDecodeUnsupportedMarkers(t *testing.T) {
	t.Run("xml document", func(t *testing.T) {
		_, err := Deserialize([]byte{0x07, 0x01})
		var legacy *LegacyTypeNotSupportedError
		if !errors.As(err, &legacy) {
			t.Fatalf("error = %v, want LegacyTypeNotSupportedError", err)
		}
		if legacy.Marker != MarkerXMLDocument || legacy.Offset != 0 {
			t.Errorf("error = %+v", legacy)
		}
	})
	t.Run("xml", func(t *testing.T) {
		_, err := Deserialize([]byte{0x0B, 0x01})
		var legacy *LegacyTypeNotSupportedError
		if !errors.As(err, &legacy) {
			t.Fatalf("error = %v, want LegacyTypeNotSupportedError", err)
		}
		if legacy.Marker != MarkerXML {
			t.Errorf("marker = 0x%02X, want 0x0B", legacy.Marker)
		}
	})
	t.Run("dictionary", func(t *testing.T) {
		_, err := Deserialize([]byte{0x11, 0x01})
		var notImplemented *NotImplementedError
		if !errors.As(err, &notImplemented) {
			t.Fatalf("error = %v, want NotImplementedError", err)
		}
	})
	t.Run("unknown", func(t *testing.T) {
		_, err := Deserialize([]byte{0x01, 0x42})
		var unknown *UnknownMarkerError
		if !errors.As(err, &unknown) {
			t.Fatalf("error = %v, want UnknownMarkerError", err)
		}
		if unknown.Marker != 0x42 || unknown.Offset != 1 {
			t.Errorf("error = %+v, want marker 0x42 at offset 1", unknown)
		}
	})
}

func TestDecoderStaysAtUnsupportedMarker(t *testing.T) {
	for _, marker := range []byte{MarkerXMLDocument, MarkerXML, MarkerDictionary, 0x20} {
		d := NewDecoder([]byte{0x01, marker, 0x01})
		if _, err := d.Decode(); err != nil {
			t.Fatalf("Decode first value: %v", err)
		}
		if _, err := d.Decode(); err == nil {
			t.Fatalf("Decode(0x%02X) succeeded, want error", marker)
		}
		if d.Offset() != 1 {
			t.Errorf("after 0x%02X error, Offset() = %d, want 1", marker, d.Offset())
		}
		if !d.More() {
			t.Errorf("after 0x%02X error, More() = false", marker)
		}
	}
}

func TestDecodeInvalidReferences(t *testing.T) {
	inputs := map[string][]byte{
		"string": {0x06, 0x00},
		"date":   {0x08, 0x02},
		"array":  {0x09, 0x00},
		"object": {0x0A, 0x00},
		"trait":  {0x0A, 0x01},
		"bytes":  {0x0C, 0x04},
		"vector": {0x0D, 0x00},
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Deserialize(input)
			var invalid *InvalidReferenceError
			if !errors.As(err, &invalid) {
				t.Fatalf("Deserialize(% X) error = %v, want InvalidReferenceError", input, err)
			}
		})
	}
}

func TestDecodeStringReference(t *testing.T) {
	values, err := Deserialize([]byte{0x09, 0x05, 0x01, 0x06, 0x0D, 'R', 'E', 'S', 'U', 'M', 'O', 0x06, 0x00})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	array := values[0].(*Array)
	if len(array.Dense) != 2 || array.Dense[0] != String("RESUMO") || array.Dense[1] != String("RESUMO") {
		t.Errorf("Dense = %#v", array.Dense)
	}
}

func TestDecodeSharedTraitAndDistinctInstances(t *testing.T) {
	data := []byte{
		0x0A, 0x23, 0x09, 'I', 't', 'e', 'm', 0x05, 'i', 'd', 0x0B, 'l', 'a', 'b', 'e', 'l',
		0x04, 0x01, 0x06, 0x03, 'x',
		0x0A, 0x01, 0x04, 0x02, 0x06, 0x03, 'y',
	}
	values, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	first, second := values[0].(*Object), values[1].(*Object)
	if first == second {
		t.Fatal("instances decoded to the same object")
	}
	if first.Trait != second.Trait {
		t.Error("instances do not share their trait")
	}
	if first.Trait.ClassName != "Item" || len(first.Trait.Members) != 2 {
		t.Errorf("trait = %+v", first.Trait)
	}
	if v, _ := second.Get("label"); v != String("y") {
		t.Errorf("second.label = %#v, want y", v)
	}
	if first.Trait.Dynamic || first.Trait.Externalizable {
		t.Errorf("trait flags = %+v, want sealed", first.Trait)
	}
}

func TestDecodeSelfReferences(t *testing.T) {
	values, err := Deserialize([]byte{0x09, 0x03, 0x01, 0x09, 0x00})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	array := values[0].(*Array)
	if array.Dense[0] != Value(array) {
		t.Error("array does not contain itself")
	}

	values, err = Deserialize([]byte{0x0A, 0x0B, 0x01, 0x09, 's', 'e', 'l', 'f', 0x0A, 0x00, 0x01})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	obj := values[0].(*Object)
	if self, _ := obj.Get("self"); self != Value(obj) {
		t.Error("object does not contain itself")
	}
}

func TestDecodeFullWidthVectors(t *testing.T) {
	values, err := Deserialize([]byte{
		0x0D, 0x05, 0x01, 0x00, 0x00, 0x01, 0x00, 0xFF, 0xFF, 0xFF, 0xFE,
		0x0E, 0x03, 0x00, 0xFF, 0xFF, 0xFF, 0xFF,
	})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	ints := values[0].(*IntVector)
	if !ints.Fixed || len(ints.Items) != 2 || ints.Items[0] != 256 || ints.Items[1] != -2 {
		t.Errorf("IntVector = %+v", ints)
	}
	uints := values[1].(*UintVector)
	if uints.Fixed || len(uints.Items) != 1 || uints.Items[0] != 0xFFFFFFFF {
		t.Errorf("UintVector = %+v", uints)
	}
}

func TestDecodeOversizedLengthFailsBeforeAllocating(t *testing.T) {
	// Array claiming 0x0FFFFFFF dense elements in a 5-byte buffer.
	_, err := Deserialize([]byte{0x09, 0xFF, 0xFF, 0xFF, 0xFF})
	var eob *UnexpectedEndOfBufferError
	if !errors.As(err, &eob) {
		t.Fatalf("error = %v, want UnexpectedEndOfBufferError", err)
	}
}

func TestDecodeRejectsDeepNesting(t *testing.T) {
	nested := func(unit []byte, depth int) []byte {
		return append(bytes.Repeat(unit, depth), MarkerNull)
	}
	tests := []struct {
		name string
		data []byte
	}{
		// A gateway-sized body of one-element arrays.
		{"arrays", nested([]byte{MarkerArray, 0x03, 0x01}, (8<<20-1)/3)},
		{"object vectors", nested([]byte{MarkerObjectVector, 0x03, 0x00, 0x01}, DefaultMaxDepth+1)},
		{"externalizable objects", append([]byte{MarkerObject, 0x07, 0x03, 'X'},
			nested([]byte{MarkerObject, 0x01}, DefaultMaxDepth)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.data)
			var deep *NestingTooDeepError
			if !errors.As(err, &deep) {
				t.Fatalf("Deserialize error = %v, want NestingTooDeepError", err)
			}
			if deep.Limit != DefaultMaxDepth {
				t.Errorf("Limit = %d, want %d", deep.Limit, DefaultMaxDepth)
			}
		})
	}
}

func TestDecoderMaxDepth(t *testing.T) {
	data := bytes.Repeat([]byte{MarkerArray, 0x03, 0x01}, 4)
	data = append(data, MarkerNull)

	d := NewDecoder(data[3:])
	d.SetMaxDepth(3)
	if _, err := d.Decode(); err != nil {
		t.Fatalf("three levels: %v", err)
	}

	d = NewDecoder(data)
	d.SetMaxDepth(3)
	_, err := d.Decode()
	var deep *NestingTooDeepError
	if !errors.As(err, &deep) {
		t.Fatalf("four levels: error = %v, want NestingTooDeepError", err)
	}
	if deep.Offset != 9 || deep.Limit != 3 {
		t.Errorf("error = %+v, want limit 3 at offset 9", deep)
	}
}

// chainOfReferences encodes one array of n elements where element k is
// a one-element array holding element k-1. Nothing nests more than two
// levels on the wire, but the decoded graph is n levels deep.
func chainOfReferences(t *testing.T, n int) []byte {
	t.Helper()
	data := []byte{MarkerArray}
	data, err := AppendU29(data, uint32(n)<<1|1)
	if err != nil {
		t.Fatalf("AppendU29: %v", err)
	}
	data = append(data, 0x01)
	data = append(data, MarkerArray, 0x03, 0x01, MarkerNull)
	for k := 1; k < n; k++ {
		data = append(data, MarkerArray, 0x03, 0x01, MarkerArray)
		// Element k-1 is array table entry k; the outer array is 0.
		if data, err = AppendU29(data, uint32(k)<<1); err != nil {
			t.Fatalf("AppendU29: %v", err)
		}
	}
	return data
}

func TestDecodeDeepReferenceChain(t *testing.T) {
	n := DefaultMaxDepth + 10
	data := chainOfReferences(t, n)
	values, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	outer := values[0].(*Array)
	if len(outer.Dense) != n {
		t.Fatalf("decoded %d elements, want %d", len(outer.Dense), n)
	}
	last := outer.Dense[n-1].(*Array)
	if last.Dense[0] != outer.Dense[n-2] {
		t.Error("element does not reference its predecessor")
	}

	if !Equal(values[0], values[0]) {
		t.Error("Equal of a deep graph with itself = false")
	}

	// Re-encoding in wire order writes the same references.
	if again := mustSerialize(t, values...); !bytes.Equal(again, data) {
		t.Error("re-encoding the chain changed its bytes")
	}

	// On its own the last element has to be written inline all the way
	// down.
	_, err = Serialize(last)
	var deep *NestingTooDeepError
	if !errors.As(err, &deep) {
		t.Errorf("Serialize(last) error = %v, want NestingTooDeepError", err)
	}
}

func TestDecodeSealedAnonymousObjectHasNoTail(t *testing.T) {
	// Anonymous, sealed, no members; the next byte starts a new value.
	values, err := Deserialize([]byte{MarkerObject, 0x03, 0x01, MarkerInteger, 0x05})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("Deserialize returned %d values, want 2", len(values))
	}
	obj := values[0].(*Object)
	if obj.Trait.Dynamic || !obj.Trait.Anonymous() || len(obj.Dynamic) != 0 {
		t.Errorf("object = %+v, trait %+v", obj, obj.Trait)
	}
	if values[1] != Integer(5) {
		t.Errorf("second value = %#v, want 5", values[1])
	}
}
