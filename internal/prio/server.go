package prio

import "fmt"

// VerificationMessage is one server's share of the zero-knowledge check
// for one client packet: f_r is its share of the data polynomial
// evaluated at the packet's r_pit, g_r carries the same value as f_r, and
// h_r is its share of the proof cross-term. Combining both servers' messages and
// checking f_r*g_r == h_r (mod Prime) is the validity check; this is the
// Go shape of idl.ValidationPacket's (FR, GR, HR) triple.
type VerificationMessage struct {
	FR Elem
	GR Elem
	HR Elem
}

// Server holds one decryption key's share of an aggregation: it decrypts
// packets, computes verification messages, and accumulates valid shares
// into a running per-bin total. One Server exists per decryption key in
// the processor's key list.
type Server struct {
	bins        int
	isFirst     bool
	key         *PrivateKey
	totalShares []Elem
}

// NewServer creates a Server for bins bins using key to decrypt packets.
// isFirst is carried for parity with a two-server deployment; this
// implementation's check is symmetric and does not need it, but real
// Prio servers use it to break a tie in which operand of a subtraction
// to take first.
func NewServer(bins int, isFirst bool, key *PrivateKey) *Server {
	return &Server{bins: bins, isFirst: isFirst, key: key, totalShares: make([]Elem, bins)}
}

// GenerateVerificationMessage decrypts encryptedPayload under this
// Server's key and returns this server's share of the verification
// triple, evaluated at rPit. Returns ErrDecryption (wrapped) if
// encryptedPayload does not decrypt under this Server's key, the signal
// the intake/aggregation pipelines use to try the next configured key.
func (s *Server) GenerateVerificationMessage(rPit uint32, encryptedPayload []byte) (*VerificationMessage, error) {
	dataShares, crossTermShare, err := s.decode(encryptedPayload)
	if err != nil {
		return nil, err
	}
	fr := horner(dataShares, Elem(rPit)%Elem(Prime))
	return &VerificationMessage{FR: fr, GR: fr, HR: crossTermShare}, nil
}

// Aggregate checks the combined verification messages for one packet and,
// if valid, accumulates this server's share of the packet's data into its
// running total. It decrypts encryptedPayload independently of any prior
// GenerateVerificationMessage call.
func (s *Server) Aggregate(encryptedPayload []byte, peer, own *VerificationMessage) (bool, error) {
	dataShares, _, err := s.decode(encryptedPayload)
	if err != nil {
		return false, err
	}

	combinedF := own.FR.add(peer.FR)
	combinedG := own.GR.add(peer.GR)
	combinedH := own.HR.add(peer.HR)
	if combinedF.mul(combinedG) != combinedH {
		return false, nil
	}

	for i, share := range dataShares {
		s.totalShares[i] = s.totalShares[i].add(share)
	}
	return true, nil
}

func (s *Server) decode(encryptedPayload []byte) ([]Elem, Elem, error) {
	plaintext, err := s.key.Decrypt(encryptedPayload)
	if err != nil {
		return nil, 0, err
	}
	dataShares, crossTermShare, err := decodePayload(plaintext)
	if err != nil {
		return nil, 0, fmt.Errorf("prio: decoding payload: %w", err)
	}
	if len(dataShares) != s.bins {
		return nil, 0, fmt.Errorf("prio: payload has %d shares, server configured for %d bins", len(dataShares), s.bins)
	}
	return dataShares, crossTermShare, nil
}

// TotalShares returns this server's accumulated per-bin totals, cast to
// signed 64-bit integers for the sum part's `sum` field. Values are
// field elements in [0, Prime), which fits int64 without truncation.
func (s *Server) TotalShares() []int64 {
	out := make([]int64, len(s.totalShares))
	for i, e := range s.totalShares {
		out[i] = int64(e)
	}
	return out
}

// MergeTotalShares folds other's accumulated totals into s, element-wise
// mod Prime. This collapses the many per-key server instances into one:
// each key may have absorbed a different subset of packets, and the sum
// part's value is their combined total.
func (s *Server) MergeTotalShares(other *Server) error {
	if len(s.totalShares) != len(other.totalShares) {
		return fmt.Errorf("%w: %d vs %d", ErrBinsMismatch, len(s.totalShares), len(other.totalShares))
	}
	for i, e := range other.totalShares {
		s.totalShares[i] = s.totalShares[i].add(e)
	}
	return nil
}
