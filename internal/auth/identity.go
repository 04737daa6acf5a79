package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// IdentitySignatureHeader carries the identity layer's HMAC over the raw
// /auth/oauth body.
const IdentitySignatureHeader = "X-Identity-Signature"

// IdentitySigner checks that a provider login was vouched for by the
// identity layer that holds the shared secret.
type IdentitySigner struct {
	secret []byte
}

func NewIdentitySigner(secret string) *IdentitySigner {
	return &IdentitySigner{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of body.
func (s *IdentitySigner) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyBody is false for an empty secret or signature.
func (s *IdentitySigner) VerifyBody(body []byte, signature string) bool {
	if s == nil || len(s.secret) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(body)), []byte(signature))
}
