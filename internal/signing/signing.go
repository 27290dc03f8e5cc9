// Package signing provides ECDSA P-256/SHA-256 signing and verification of
// batch headers, in ASN.1 DER encoding: private keys are PKCS#8 documents,
// public keys are PKIX SubjectPublicKeyInfo, and the signature itself is the
// standard ASN.1 Ecdsa-Sig-Value sequence of (r, s).
package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Key wraps an ECDSA P-256 private key that can sign batch headers.
type Key struct {
	private *ecdsa.PrivateKey
}

// PublicKey wraps an ECDSA P-256 public key that can verify header
// signatures produced by a matching Key.
type PublicKey struct {
	public *ecdsa.PublicKey
}

// KeyFromPKCS8 parses a PKCS#8-encoded P-256 private key, as produced by
// `openssl pkcs8` or the facilitator's key-rotation tooling.
func KeyFromPKCS8(der []byte) (*Key, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("signing: parsing pkcs8 private key: %w", err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing: pkcs8 document is not an ECDSA private key")
	}
	if priv.Curve != elliptic.P256() {
		return nil, fmt.Errorf("signing: private key is not on curve P-256")
	}
	return &Key{private: priv}, nil
}

// KeyFromPKCS8PEM parses a PEM-armored PKCS#8 private key.
func KeyFromPKCS8PEM(data []byte) (*Key, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signing: no PEM block found")
	}
	return KeyFromPKCS8(block.Bytes)
}

// Public returns the public half of k.
func (k *Key) Public() *PublicKey {
	return &PublicKey{public: &k.private.PublicKey}
}

// Sign produces an ASN.1 DER-encoded ECDSA P-256/SHA-256 signature over
// message, suitable for writing to a batch's detached `.sig` file.
func (k *Key) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	signature, err := ecdsa.SignASN1(rand.Reader, k.private, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing: signing header: %w", err)
	}
	return signature, nil
}

// PublicKeyFromPKIX parses a PKIX SubjectPublicKeyInfo-encoded P-256 public
// key, the format peer data share processors exchange in their manifests.
func PublicKeyFromPKIX(der []byte) (*PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("signing: parsing pkix public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signing: pkix document is not an ECDSA public key")
	}
	if pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("signing: public key is not on curve P-256")
	}
	return &PublicKey{public: pub}, nil
}

// PublicKeyFromPKIXPEM parses a PEM-armored PKIX public key.
func PublicKeyFromPKIXPEM(data []byte) (*PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signing: no PEM block found")
	}
	return PublicKeyFromPKIX(block.Bytes)
}

// ErrInvalidSignature is returned by Verify when the signature does not
// match the message under this key. A malformed signature encoding is
// reported with the same error.
var ErrInvalidSignature = fmt.Errorf("signing: signature verification failed")

// Verify checks an ASN.1 DER-encoded signature produced by Sign against
// message.
func (pk *PublicKey) Verify(message, signature []byte) error {
	digest := sha256.Sum256(message)
	if !ecdsa.VerifyASN1(pk.public, digest[:], signature) {
		return ErrInvalidSignature
	}
	return nil
}
