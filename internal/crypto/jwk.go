package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// rsaJWK is the JSON Web Key representation of an RSA key (RFC 7517/7518).
// Private fields are omitted for public keys. This is the interchange
// format for wrapped private keys at rest, so field order and base64url
// encoding must stay wire-compatible.
type rsaJWK struct {
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d,omitempty"`
	P   string `json:"p,omitempty"`
	Q   string `json:"q,omitempty"`
	DP  string `json:"dp,omitempty"`
	DQ  string `json:"dq,omitempty"`
	QI  string `json:"qi,omitempty"`
}

// ExportPrivateKeyJWK serializes an RSA private key to JWK JSON.
func ExportPrivateKeyJWK(priv *rsa.PrivateKey) ([]byte, error) {
	if len(priv.Primes) != 2 {
		return nil, fmt.Errorf("unsupported key: expected 2 primes, got %d", len(priv.Primes))
	}
	priv.Precompute()
	jwk := rsaJWK{
		Kty: "RSA",
		Alg: "RSA-OAEP-256",
		N:   b64url(priv.N),
		E:   b64url(big.NewInt(int64(priv.E))),
		D:   b64url(priv.D),
		P:   b64url(priv.Primes[0]),
		Q:   b64url(priv.Primes[1]),
		DP:  b64url(priv.Precomputed.Dp),
		DQ:  b64url(priv.Precomputed.Dq),
		QI:  b64url(priv.Precomputed.Qinv),
	}
	return json.Marshal(jwk)
}

// ImportPrivateKeyJWK parses JWK JSON back into an RSA private key and
// validates the reconstructed key.
func ImportPrivateKeyJWK(data []byte) (*rsa.PrivateKey, error) {
	var jwk rsaJWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("failed to parse JWK: %w", err)
	}
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}
	n, err := b64urlInt(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	e, err := b64urlInt(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}
	d, err := b64urlInt(jwk.D)
	if err != nil {
		return nil, fmt.Errorf("invalid private exponent: %w", err)
	}
	p, err := b64urlInt(jwk.P)
	if err != nil {
		return nil, fmt.Errorf("invalid prime p: %w", err)
	}
	q, err := b64urlInt(jwk.Q)
	if err != nil {
		return nil, fmt.Errorf("invalid prime q: %w", err)
	}

	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	priv.Precompute()
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return priv, nil
}

// ExportPublicKeyJWK serializes an RSA public key to JWK JSON.
func ExportPublicKeyJWK(pub *rsa.PublicKey) ([]byte, error) {
	return json.Marshal(rsaJWK{
		Kty: "RSA",
		Alg: "RSA-OAEP-256",
		N:   b64url(pub.N),
		E:   b64url(big.NewInt(int64(pub.E))),
	})
}

// ImportPublicKeyJWK parses JWK JSON into an RSA public key.
func ImportPublicKeyJWK(data []byte) (*rsa.PublicKey, error) {
	var jwk rsaJWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("failed to parse JWK: %w", err)
	}
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}
	n, err := b64urlInt(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	e, err := b64urlInt(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// ExportPublicKeySPKI serializes a public key to base64(SPKI DER), the
// format stored in profiles.public_key.
func ExportPublicKeySPKI(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to export public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPublicKeySPKI parses base64(SPKI DER) into an RSA public key.
func ImportPublicKeySPKI(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid public key encoding: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type %T", key)
	}
	return pub, nil
}

// ExportPrivateKeyPKCS8 serializes a private key to base64(PKCS8 DER), the
// format uploaded to the session_keys table for server-side recovery.
func ExportPrivateKeyPKCS8(priv *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("failed to export private key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPrivateKeyPKCS8 parses base64(PKCS8 DER) into an RSA private key.
func ImportPrivateKeyPKCS8(encoded string) (*rsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid private key encoding: %w", err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unexpected private key type %T", key)
	}
	return priv, nil
}

func b64url(i *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(i.Bytes())
}

func b64urlInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing value")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
