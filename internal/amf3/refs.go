package amf3

// Reference tables live for exactly one Encoder or Decoder. Each table
// hands out the next free index on first sight of a value; later
// occurrences are written as that index.

// refTable is an append-only index over comparable keys.
type refTable[K comparable] struct {
	index map[K]int
	size  int
}

func (t *refTable[K]) lookup(key K) (int, bool) {
	i, ok := t.index[key]
	return i, ok
}

func (t *refTable[K]) add(key K) int {
	if t.index == nil {
		t.index = make(map[K]int)
	}
	i := t.size
	t.index[key] = i
	t.size++
	return i
}

// encodeRefs holds the encoder's tables. Objects, byte arrays and
// vectors share the objects table and are keyed by pointer; dates are
// keyed by the bit pattern of their epoch value so that -0 and NaN do
// not alias.
type encodeRefs struct {
	strings refTable[string]
	objects refTable[Value]
	arrays  refTable[*Array]
	dates   refTable[uint64]
	traits  []*Trait
}

// traitIndex finds a trait by pointer, then by contents.
func (r *encodeRefs) traitIndex(trait *Trait) (int, bool) {
	for i, known := range r.traits {
		if known == trait {
			return i, true
		}
	}
	for i, known := range r.traits {
		if known.equal(trait) {
			return i, true
		}
	}
	return 0, false
}

// decodeRefs holds the decoder's tables, in wire order.
type decodeRefs struct {
	strings []string
	objects []Value
	arrays  []*Array
	dates   []Date
	traits  []*Trait
}
