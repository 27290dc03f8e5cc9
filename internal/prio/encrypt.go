package prio

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// PrivateKey is a share processor's packet-decryption key: an ECDH P-256
// private key. Encryption is ECIES-style: an ephemeral ECDH exchange
// derives a symmetric key that seals the share payload with AES-256-GCM.
type PrivateKey struct {
	key *ecdh.PrivateKey
}

// PublicKey is the public half of a PrivateKey, published so ingestion
// servers can encrypt shares to a processor.
type PublicKey struct {
	key *ecdh.PublicKey
}

// GenerateKey creates a new random P-256 PrivateKey.
func GenerateKey() (*PrivateKey, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("prio: generating key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// Public returns the public half of k.
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: k.key.PublicKey()}
}

// Bytes returns the raw ECDH private scalar, suitable for storage
// alongside a manifest-published base64 public key.
func (k *PrivateKey) Bytes() []byte { return k.key.Bytes() }

// PrivateKeyFromBytes parses a raw ECDH P-256 private scalar.
func PrivateKeyFromBytes(raw []byte) (*PrivateKey, error) {
	key, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("prio: parsing private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBase64 parses a standard-base64-encoded raw private
// scalar.
func PrivateKeyFromBase64(s string) (*PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("prio: decoding base64 private key: %w", err)
	}
	return PrivateKeyFromBytes(raw)
}

// Bytes returns the raw uncompressed ECDH public key point.
func (k *PublicKey) Bytes() []byte { return k.key.Bytes() }

// PublicKeyFromBytes parses a raw uncompressed ECDH P-256 public key
// point.
func PublicKeyFromBytes(raw []byte) (*PublicKey, error) {
	key, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("prio: parsing public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// Encrypt seals plaintext to recipient using an ephemeral ECDH exchange:
// the wire format is one byte holding the ephemeral public key's length,
// the ephemeral public key, then an AES-256-GCM sealed box (nonce
// prepended to ciphertext).
func Encrypt(recipient *PublicKey, plaintext []byte) ([]byte, error) {
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("prio: generating ephemeral key: %w", err)
	}
	shared, err := ephemeral.ECDH(recipient.key)
	if err != nil {
		return nil, fmt.Errorf("prio: ephemeral ECDH: %w", err)
	}

	gcm, err := gcmFromSharedSecret(shared)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("prio: generating nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	ephemeralPub := ephemeral.PublicKey().Bytes()
	out := make([]byte, 0, 1+len(ephemeralPub)+len(sealed))
	out = append(out, byte(len(ephemeralPub)))
	out = append(out, ephemeralPub...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens a payload sealed by Encrypt for k. Returns ErrDecryption,
// wrapped, for any failure — wrong key, corrupt ciphertext, or a failed
// GCM authentication tag — since the intake/aggregation pipelines only
// need to distinguish "this key didn't work" from other failure modes.
func (k *PrivateKey) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 1 {
		return nil, fmt.Errorf("%w: truncated payload", ErrDecryption)
	}
	pubLen := int(ciphertext[0])
	if len(ciphertext) < 1+pubLen {
		return nil, fmt.Errorf("%w: truncated ephemeral key", ErrDecryption)
	}
	ephemeralPub, err := ecdh.P256().NewPublicKey(ciphertext[1 : 1+pubLen])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ephemeral key: %v", ErrDecryption, err)
	}

	shared, err := k.key.ECDH(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH: %v", ErrDecryption, err)
	}

	gcm, err := gcmFromSharedSecret(shared)
	if err != nil {
		return nil, err
	}

	sealed := ciphertext[1+pubLen:]
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: truncated ciphertext", ErrDecryption)
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

func gcmFromSharedSecret(shared []byte) (cipher.AEAD, error) {
	key := sha256.Sum256(shared)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("prio: building AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("prio: building GCM: %w", err)
	}
	return gcm, nil
}
