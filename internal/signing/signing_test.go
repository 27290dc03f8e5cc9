package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKey(t *testing.T) (*Key, *PublicKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	key, err := KeyFromPKCS8(privDER)
	require.NoError(t, err)

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pub, err := PublicKeyFromPKIX(pubDER)
	require.NoError(t, err)

	return key, pub
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key, pub := generateTestKey(t)
	message := []byte("header bytes to authenticate")

	signature, err := key.Sign(message)
	require.NoError(t, err)

	assert.NoError(t, pub.Verify(message, signature))
}

func TestVerifyFailsOnTamperedMessage(t *testing.T) {
	key, pub := generateTestKey(t)
	signature, err := key.Sign([]byte("original header bytes"))
	require.NoError(t, err)

	err = pub.Verify([]byte("tampered header bytes"), signature)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyFailsUnderWrongKey(t *testing.T) {
	key, _ := generateTestKey(t)
	_, otherPub := generateTestKey(t)

	message := []byte("header bytes")
	signature, err := key.Sign(message)
	require.NoError(t, err)

	err = otherPub.Verify(message, signature)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestPublicKeySetUnknownIdentifier(t *testing.T) {
	_, pub := generateTestKey(t)
	set := NewPublicKeySet(map[string]*PublicKey{"key-1": pub})

	err := set.Verify("key-2", []byte("m"), []byte("s"))
	assert.ErrorIs(t, err, ErrUnknownKeyIdentifier)
}

func TestPublicKeySetKnownIdentifier(t *testing.T) {
	key, pub := generateTestKey(t)
	set := NewPublicKeySet(map[string]*PublicKey{"key-1": pub})

	message := []byte("header bytes")
	signature, err := key.Sign(message)
	require.NoError(t, err)

	assert.NoError(t, set.Verify("key-1", message, signature))
}
