// Package prio implements the Prio field and proof primitives: a server
// object exposing generate-verification-message and aggregate operations
// over a prime-order field. It is not a production implementation of the
// Prio protocol: it implements a structurally faithful but simplified
// version of the verification/aggregation shape (additive share
// splitting, a cross-term proof check combined across two servers)
// sufficient to drive this repository's own tests end-to-end.
package prio

// Prime is the field modulus shared by every Server in one deployment
// (4293918721, just under 2^32 so field elements fit a uint32 but
// products of two elements still fit a uint64 without overflow).
const Prime uint64 = 4293918721

// Elem is a field element in Z/Prime.
type Elem uint64

func elemFromInt64(v int64) Elem {
	if v < 0 {
		v += int64(Prime) * (1 + (-v)/int64(Prime))
	}
	return Elem(uint64(v) % Prime)
}

func (a Elem) add(b Elem) Elem {
	return Elem((uint64(a) + uint64(b)) % Prime)
}

func (a Elem) sub(b Elem) Elem {
	return Elem((uint64(a) + Prime - uint64(b)) % Prime)
}

func (a Elem) mul(b Elem) Elem {
	return Elem((uint64(a) * uint64(b)) % Prime)
}

// horner evaluates the polynomial whose coefficients are shares (shares[0]
// is the constant term) at point x, entirely in the field.
func horner(shares []Elem, x Elem) Elem {
	var acc Elem
	for i := len(shares) - 1; i >= 0; i-- {
		acc = acc.mul(x).add(shares[i])
	}
	return acc
}

// splitAdditive returns two shares of v chosen so share0+share1 == v (mod
// Prime), with share0 drawn from randSource.
func splitAdditive(v Elem, randSource func() Elem) (Elem, Elem) {
	share0 := randSource()
	share1 := v.sub(share0)
	return share0, share1
}
