package prio

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPacket(t *testing.T, bins int, bits []int64, rPit uint32, pub0, pub1 *PublicKey) (payload0, payload1 []byte) {
	t.Helper()
	require.Len(t, bits, bins)

	dataShares0 := make([]Elem, bins)
	dataShares1 := make([]Elem, bins)
	for i, bit := range bits {
		s0, s1, err := SplitShare(bit)
		require.NoError(t, err)
		dataShares0[i] = s0
		dataShares1[i] = s1
	}

	crossTerm := EvaluateCrossTerm(bits, rPit)
	h0, h1, err := SplitCrossTerm(crossTerm)
	require.NoError(t, err)

	payload0, err = EncryptShare(pub0, dataShares0, h0)
	require.NoError(t, err)
	payload1, err = EncryptShare(pub1, dataShares1, h1)
	require.NoError(t, err)
	return payload0, payload1
}

func TestServerAggregateValidPacket(t *testing.T) {
	key0, err := GenerateKey()
	require.NoError(t, err)
	key1, err := GenerateKey()
	require.NoError(t, err)

	bins := 4
	bits := []int64{1, 0, 1, 1}
	rPit := uint32(12345)

	payload0, payload1 := buildPacket(t, bins, bits, rPit, key0.Public(), key1.Public())

	server0 := NewServer(bins, true, key0)
	server1 := NewServer(bins, false, key1)

	msg0, err := server0.GenerateVerificationMessage(rPit, payload0)
	require.NoError(t, err)
	msg1, err := server1.GenerateVerificationMessage(rPit, payload1)
	require.NoError(t, err)

	valid0, err := server0.Aggregate(payload0, msg1, msg0)
	require.NoError(t, err)
	assert.True(t, valid0)

	valid1, err := server1.Aggregate(payload1, msg0, msg1)
	require.NoError(t, err)
	assert.True(t, valid1)

	totals0 := server0.TotalShares()
	totals1 := server1.TotalShares()
	require.Len(t, totals0, bins)
	require.Len(t, totals1, bins)
	for i, bit := range bits {
		reconstructed := (totals0[i] + totals1[i]) % int64(Prime)
		assert.Equal(t, bit, reconstructed)
	}
}

func TestServerAggregateDetectsTamperedCrossTerm(t *testing.T) {
	key0, err := GenerateKey()
	require.NoError(t, err)
	key1, err := GenerateKey()
	require.NoError(t, err)

	bins := 2
	bits := []int64{1, 0}
	rPit := uint32(99)

	payload0, payload1 := buildPacket(t, bins, bits, rPit, key0.Public(), key1.Public())

	server0 := NewServer(bins, true, key0)
	server1 := NewServer(bins, false, key1)

	msg0, err := server0.GenerateVerificationMessage(rPit, payload0)
	require.NoError(t, err)
	msg1, err := server1.GenerateVerificationMessage(rPit, payload1)
	require.NoError(t, err)

	// Tamper with the peer message's cross-term share so the combined
	// f_r*g_r == h_r check fails.
	tampered := *msg1
	tampered.HR = tampered.HR.add(Elem(1))

	valid, err := server0.Aggregate(payload0, &tampered, msg0)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestGenerateVerificationMessageWrongKeyIsDecryptionError(t *testing.T) {
	key0, err := GenerateKey()
	require.NoError(t, err)
	wrongKey, err := GenerateKey()
	require.NoError(t, err)

	payload0, _ := buildPacket(t, 2, []int64{1, 1}, 7, key0.Public(), key0.Public())

	server := NewServer(2, true, wrongKey)
	_, err = server.GenerateVerificationMessage(7, payload0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestMergeTotalShares(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	a := NewServer(3, true, key)
	a.totalShares = []Elem{1, 2, 3}
	b := NewServer(3, true, key)
	b.totalShares = []Elem{10, 20, 30}

	require.NoError(t, a.MergeTotalShares(b))
	assert.Equal(t, []int64{11, 22, 33}, a.TotalShares())
}

func TestMergeTotalSharesRejectsMismatchedBins(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	a := NewServer(2, true, key)
	b := NewServer(3, true, key)
	err = a.MergeTotalShares(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBinsMismatch)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, err := Encrypt(key.Public(), []byte("hello prio"))
	require.NoError(t, err)

	plaintext, err := key.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello prio", string(plaintext))
}

func TestPrivateKeyFromBase64RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	encoded := base64.StdEncoding.EncodeToString(key.Bytes())
	parsed, err := PrivateKeyFromBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, key.Bytes(), parsed.Bytes())
}
