// Package p256 holds the ECDSA P-256 primitives shared by the software key
// manager and the simulated hardware keystore. Keys travel as base64 DER
// (PKCS#8 private, SPKI public) and signatures as base64 ASN.1 over the
// SHA-256 digest of the payload.
package p256

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNotP256 is returned when a decoded key is not an ECDSA P-256 key
var ErrNotP256 = errors.New("key is not an ECDSA P-256 key")

// KeyPair is an encoded key pair
type KeyPair struct {
	PrivateKey string // base64 PKCS#8
	PublicKey  string // base64 SPKI
}

// Generate creates a new encoded key pair
func Generate() (KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to encode private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to encode public key: %w", err)
	}

	return KeyPair{
		PrivateKey: base64.StdEncoding.EncodeToString(privDER),
		PublicKey:  base64.StdEncoding.EncodeToString(pubDER),
	}, nil
}

// Sign signs payload with the encoded private key
func Sign(privateKey string, payload []byte) (string, error) {
	der, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to decode private key: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || priv.Curve != elliptic.P256() {
		return "", ErrNotP256
	}

	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks signature over payload with the encoded public key. A
// malformed signature verifies as false; a malformed key is an error.
func Verify(publicKey string, payload []byte, signature string) (bool, error) {
	pub, err := parsePublic(publicKey)
	if err != nil {
		return false, err
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, nil
	}

	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(pub, digest[:], sig), nil
}

// Multibase renders an encoded public key in the "z" + hex form the wallet
// exchanges with verifiers
func Multibase(publicKey string) (string, error) {
	der, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to decode public key: %w", err)
	}
	return "z" + hex.EncodeToString(der), nil
}

func parsePublic(publicKey string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	return pub, nil
}
