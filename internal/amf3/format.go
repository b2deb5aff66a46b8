package amf3

// AMF3 type markers. Every encoded value
// starts with one of these bytes.
const (
	MarkerUndefined    = 0x00
	MarkerNull         = 0x01
	MarkerFalse        = 0x02
	MarkerTrue         = 0x03
	MarkerInteger      = 0x04
	MarkerDouble       = 0x05
	MarkerString       = 0x06
	MarkerXMLDocument  = 0x07 // unsupported
	MarkerDate         = 0x08
	MarkerArray        = 0x09
	MarkerObject       = 0x0A
	MarkerXML          = 0x0B // unsupported
	MarkerByteArray    = 0x0C
	MarkerIntVector    = 0x0D
	MarkerUintVector   = 0x0E
	MarkerDoubleVector = 0x0F
	MarkerObjectVector = 0x10
	MarkerDictionary   = 0x11 // unsupported
)

// Range limits for U29 and for the signed integers carried by it.
const (
	MaxU29   = 0x1FFFFFFF
	MaxInt29 = 0x0FFFFFFF
	MinInt29 = -0x10000000
)

// emptyString is the inline, zero-length string header.
const emptyString = 0x01

// Trait header bits, counted on the full object U29 (bit 0 is the
// inline-instance flag).
const (
	traitInline         = 0x02
	traitExternalizable = 0x04
	traitDynamic        = 0x08
	traitMemberShift    = 4
)

// MarkerName returns a readable name for a marker byte.
func MarkerName(marker byte) string {
	switch marker {
	case MarkerUndefined:
		return "undefined"
	case MarkerNull:
		return "null"
	case MarkerFalse:
		return "false"
	case MarkerTrue:
		return "true"
	case MarkerInteger:
		return "integer"
	case MarkerDouble:
		return "double"
	case MarkerString:
		return "string"
	case MarkerXMLDocument:
		return "xml-document"
	case MarkerDate:
		return "date"
	case MarkerArray:
		return "array"
	case MarkerObject:
		return "object"
	case MarkerXML:
		return "xml"
	case MarkerByteArray:
		return "byte-array"
	case MarkerIntVector:
		return "int-vector"
	case MarkerUintVector:
		return "uint-vector"
	case MarkerDoubleVector:
		return "double-vector"
	case MarkerObjectVector:
		return "object-vector"
	case MarkerDictionary:
		return "dictionary"
	default:
		return "unknown"
	}
}

// AppendU29 appends value to dst using the AMF3 variable-length
// encoding. The first three bytes carry seven bits each with the high
// bit as continuation flag; a fourth byte, if needed, carries a full
// eight bits.
func AppendU29(dst []byte, value uint32) ([]byte, error) {
	switch {
	case value < 0x80:
		return append(dst, byte(value)), nil
	case value < 0x4000:
		return append(dst,
			byte(value>>7)|0x80,
			byte(value&0x7F)), nil
	case value < 0x200000:
		return append(dst,
			byte(value>>14)|0x80,
			byte(value>>7)&0x7F|0x80,
			byte(value&0x7F)), nil
	case value <= MaxU29:
		return append(dst,
			byte(value>>22)|0x80,
			byte(value>>15)&0x7F|0x80,
			byte(value>>8)&0x7F|0x80,
			byte(value)), nil
	default:
		return dst, &IntegerOutOfRangeError{Value: int64(value)}
	}
}

// ReadU29 reads a U29 from the start of src and returns the value and
// the number of bytes consumed. It fails with *UnexpectedEndOfBufferError
// when src ends before the final byte.
func ReadU29(src []byte) (uint32, int, error) {
	var result uint32
	for i := 0; i < 4; i++ {
		if i >= len(src) {
			return 0, i, &UnexpectedEndOfBufferError{Offset: i, Need: 1}
		}
		b := src[i]
		if i == 3 {
			return result<<8 | uint32(b), 4, nil
		}
		result = result<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	// unreachable: the fourth iteration always returns
	return result, 4, nil
}

// foldInt29 maps a signed integer in [MinInt29, MaxInt29] onto the
// 29-bit two's complement pattern carried by U29.
func foldInt29(n int64) uint32 {
	return uint32(n) & MaxU29
}

// unfoldInt29 sign-extends a 29-bit pattern back into an int32.
func unfoldInt29(u uint32) int32 {
	if u&0x10000000 != 0 {
		return int32(u) - 0x20000000
	}
	return int32(u)
}

// inInt29Range reports whether n fits the signed 29-bit integer range.
func inInt29Range(n int64) bool {
	return n >= MinInt29 && n <= MaxInt29
}
