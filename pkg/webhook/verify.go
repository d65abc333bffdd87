package webhook

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized is the single failure value for every verification
// problem. Callers must not reveal which stage failed.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier authenticates a raw request body against its signature header
// before any payload content is trusted. Implementations fail closed: a
// missing secret or key rejects every request.
type Verifier interface {
	Verify(body []byte, signature string) error
}

// SignatureEncoding selects how an HMAC signature header is encoded.
// Exactly one encoding is accepted per deployment; accepting both would
// make the header ambiguous.
type SignatureEncoding int

const (
	EncodingHex SignatureEncoding = iota
	EncodingBase64
)

// HMACVerifier verifies a shared-secret HMAC-SHA256 signature over the raw
// body. The header may carry a "sha256=" algorithm prefix.
type HMACVerifier struct {
	secret   []byte
	encoding SignatureEncoding
}

// NewHMACVerifier creates an HMAC-SHA256 verifier for the given secret and
// header encoding.
func NewHMACVerifier(secret string, encoding SignatureEncoding) *HMACVerifier {
	return &HMACVerifier{secret: []byte(strings.TrimSpace(secret)), encoding: encoding}
}

func (v *HMACVerifier) Verify(body []byte, signature string) error {
	if len(v.secret) == 0 {
		return ErrUnauthorized
	}
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return ErrUnauthorized
	}

	var claimed []byte
	var err error
	switch v.encoding {
	case EncodingBase64:
		claimed, err = base64.StdEncoding.DecodeString(signature)
	default:
		claimed, err = hex.DecodeString(signature)
	}
	if err != nil {
		return ErrUnauthorized
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(claimed, mac.Sum(nil)) {
		return ErrUnauthorized
	}
	return nil
}

// RSAVerifier verifies an RSA PKCS#1 v1.5 + SHA-256 signature against a
// vendor-fixed public key. The header carries the signature base64-encoded.
type RSAVerifier struct {
	publicKey *rsa.PublicKey
}

// NewRSAVerifier creates an asymmetric verifier for the given public key.
func NewRSAVerifier(publicKey *rsa.PublicKey) *RSAVerifier {
	return &RSAVerifier{publicKey: publicKey}
}

// NewRSAVerifierFromPEM parses a PEM-encoded public key and creates a
// verifier for it.
func NewRSAVerifierFromPEM(pemKey []byte) (*RSAVerifier, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key")
	}

	var key interface{}
	var err error
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return &RSAVerifier{publicKey: rsaKey}, nil
}

func (v *RSAVerifier) Verify(body []byte, signature string) error {
	if v.publicKey == nil {
		return ErrUnauthorized
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrUnauthorized
	}
	digest := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(v.publicKey, crypto.SHA256, digest[:], sig); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// TokenVerifier compares a pre-shared token carried in a header or query
// parameter. The body is not covered; deployments that need payload
// integrity should use HMACVerifier instead.
type TokenVerifier struct {
	token []byte
}

// NewTokenVerifier creates a shared-token verifier.
func NewTokenVerifier(token string) *TokenVerifier {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	return &TokenVerifier{token: []byte(token)}
}

func (v *TokenVerifier) Verify(_ []byte, token string) error {
	if len(v.token) == 0 {
		return ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	if subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
		return ErrUnauthorized
	}
	return nil
}
