package amf3

import "math"

// Equal reports whether a and b describe the same value graph. Shared
// and cyclic references compare by shape, a nil Value equals Null, and
// empty and nil slices are the same.
func Equal(a, b Value) bool {
	c := comparison{seen: make(map[[2]Value]bool)}
	c.push(a, b)
	for len(c.pending) > 0 {
		pair := c.pending[len(c.pending)-1]
		c.pending = c.pending[:len(c.pending)-1]
		if !c.shallow(pair[0], pair[1]) {
			return false
		}
	}
	return true
}

// comparison walks both graphs with an explicit stack, so graph depth
// never reaches the goroutine stack. A container pair is compared once;
// meeting it again assumes it equal, which is what makes cycles
// terminate.
type comparison struct {
	pending [][2]Value
	seen    map[[2]Value]bool
}

func (c *comparison) push(a, b Value) {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	c.pending = append(c.pending, [2]Value{a, b})
}

func (c *comparison) pushMembers(x, y []Member) bool {
	for i := range x {
		if x[i].Key != y[i].Key {
			return false
		}
		c.push(x[i].Value, y[i].Value)
	}
	return true
}

// shallow compares a and b without descending, queueing their children.
func (c *comparison) shallow(a, b Value) bool {
	if a.Type() != b.Type() {
		return false
	}

	switch x := a.(type) {
	case Double:
		y := b.(Double)
		return x == y || (math.IsNaN(float64(x)) && math.IsNaN(float64(y)))
	case Date:
		y := b.(Date)
		return x.Millis == y.Millis || (math.IsNaN(x.Millis) && math.IsNaN(y.Millis))
	case *Array, *Object, *ObjectVector:
		pair := [2]Value{a, b}
		if c.seen[pair] {
			return true
		}
		c.seen[pair] = true
	}

	switch x := a.(type) {
	case *Array:
		y := b.(*Array)
		if len(x.Dense) != len(y.Dense) || len(x.Associative) != len(y.Associative) {
			return false
		}
		for i := range x.Dense {
			c.push(x.Dense[i], y.Dense[i])
		}
		return c.pushMembers(x.Associative, y.Associative)

	case *ByteArray:
		return string(x.Data) == string(b.(*ByteArray).Data)

	case *IntVector:
		y := b.(*IntVector)
		if x.Fixed != y.Fixed || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if x.Items[i] != y.Items[i] {
				return false
			}
		}
		return true

	case *UintVector:
		y := b.(*UintVector)
		if x.Fixed != y.Fixed || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if x.Items[i] != y.Items[i] {
				return false
			}
		}
		return true

	case *DoubleVector:
		y := b.(*DoubleVector)
		if x.Fixed != y.Fixed || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if math.Float64bits(x.Items[i]) != math.Float64bits(y.Items[i]) {
				return false
			}
		}
		return true

	case *ObjectVector:
		y := b.(*ObjectVector)
		if x.Fixed != y.Fixed || x.TypeName != y.TypeName || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			c.push(x.Items[i], y.Items[i])
		}
		return true

	case *Object:
		y := b.(*Object)
		if (x.Trait == nil) != (y.Trait == nil) {
			return false
		}
		if x.Trait != nil && !x.Trait.equal(y.Trait) {
			return false
		}
		if len(x.Sealed) != len(y.Sealed) || len(x.Dynamic) != len(y.Dynamic) {
			return false
		}
		for i := range x.Sealed {
			c.push(x.Sealed[i], y.Sealed[i])
		}
		c.push(x.Data, y.Data)
		return c.pushMembers(x.Dynamic, y.Dynamic)

	default:
		// Undefined, Null, Boolean, Integer, String and the legacy
		// types are comparable Go values.
		return a == b
	}
}
