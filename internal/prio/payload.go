package prio

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
)

// encodePayload serializes bins data shares plus one proof-cross-term
// share into the plaintext Encrypt/Decrypt seals. Layout: a big-endian
// uint32 share count, then that many big-endian uint64 data shares, then
// one big-endian uint64 cross-term share.
func encodePayload(dataShares []Elem, crossTermShare Elem) []byte {
	buf := make([]byte, 4+8*len(dataShares)+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(dataShares)))
	for i, s := range dataShares {
		binary.BigEndian.PutUint64(buf[4+8*i:4+8*i+8], uint64(s))
	}
	binary.BigEndian.PutUint64(buf[4+8*len(dataShares):], uint64(crossTermShare))
	return buf
}

func decodePayload(plaintext []byte) ([]Elem, Elem, error) {
	if len(plaintext) < 4 {
		return nil, 0, fmt.Errorf("prio: payload too short for share count")
	}
	n := int(binary.BigEndian.Uint32(plaintext[0:4]))
	want := 4 + 8*n + 8
	if len(plaintext) != want {
		return nil, 0, fmt.Errorf("prio: payload length %d, want %d for %d shares", len(plaintext), want, n)
	}
	dataShares := make([]Elem, n)
	for i := 0; i < n; i++ {
		dataShares[i] = Elem(binary.BigEndian.Uint64(plaintext[4+8*i : 4+8*i+8]))
	}
	crossTermShare := Elem(binary.BigEndian.Uint64(plaintext[4+8*n:]))
	return dataShares, crossTermShare, nil
}

// RandomElem draws a field element uniformly from [0, Prime) using
// crypto/rand.Int bounded by Prime, suitable for the
// additive share-splitting the sample package performs when it builds
// client packets.
func RandomElem() (Elem, error) {
	max := new(big.Int).SetUint64(Prime)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, fmt.Errorf("prio: drawing random field element: %w", err)
	}
	return Elem(n.Uint64()), nil
}

// SplitShare splits bit (which must be 0 or 1) additively into two field
// element shares that sum to bit mod Prime. Used by the sample package to
// build one client's per-server data shares.
func SplitShare(bit int64) (share0, share1 Elem, err error) {
	r, err := RandomElem()
	if err != nil {
		return 0, 0, err
	}
	v := elemFromInt64(bit)
	s0, s1 := splitAdditive(v, func() Elem { return r })
	return s0, s1, nil
}

// SplitCrossTerm additively splits crossTerm (the full-vector cross-term
// value F(r)*G(r), computed by the client who knows the unsplit data) into
// two shares, mirroring SplitShare.
func SplitCrossTerm(crossTerm Elem) (share0, share1 Elem, err error) {
	r, err := RandomElem()
	if err != nil {
		return 0, 0, err
	}
	s0, s1 := splitAdditive(crossTerm, func() Elem { return r })
	return s0, s1, nil
}

// EvaluateCrossTerm computes F(rPit)^2 mod Prime for the full (unshared)
// bit vector bits, the value SplitCrossTerm's input must equal so that
// the two servers' combined verification messages check out. bits holds
// 0/1 values, one per bin.
func EvaluateCrossTerm(bits []int64, rPit uint32) Elem {
	elems := make([]Elem, len(bits))
	for i, b := range bits {
		elems[i] = elemFromInt64(b)
	}
	fr := horner(elems, Elem(rPit)%Elem(Prime))
	return fr.mul(fr)
}

// EncryptShare builds and seals one server's encrypted payload from its
// data shares and cross-term share.
func EncryptShare(recipient *PublicKey, dataShares []Elem, crossTermShare Elem) ([]byte, error) {
	return Encrypt(recipient, encodePayload(dataShares, crossTermShare))
}
