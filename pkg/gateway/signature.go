package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Gateway-Signature"

// Verifier checks webhook payload signatures against the shared secret
// configured for the payment gateway.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway webhook secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Sign returns the hex signature for a payload. Used by tests and by
// outbound calls that the gateway verifies on its side.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature against the payload in constant time.
func (v *Verifier) Verify(payload []byte, signature string) error {
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing gateway signature")
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed gateway signature")
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "gateway signature mismatch")
	}
	return nil
}
