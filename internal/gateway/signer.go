package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks gateway signatures. Confirmation signatures are
// HMAC-SHA256 over "orderID|paymentID" keyed by the API secret; webhook
// signatures cover the raw body and use the webhook secret.
type Signer struct {
	keySecret     []byte
	webhookSecret []byte
}

func NewSigner(keySecret, webhookSecret string) *Signer {
	if webhookSecret == "" {
		webhookSecret = keySecret
	}
	return &Signer{keySecret: []byte(keySecret), webhookSecret: []byte(webhookSecret)}
}

func (s *Signer) Sign(orderID, paymentID string) string {
	return hexMAC(s.keySecret, []byte(orderID+"|"+paymentID))
}

func (s *Signer) Verify(orderID, paymentID, signature string) bool {
	return equal(s.Sign(orderID, paymentID), signature)
}

func (s *Signer) SignWebhook(body []byte) string {
	return hexMAC(s.webhookSecret, body)
}

func (s *Signer) VerifyWebhook(body []byte, signature string) bool {
	return equal(s.SignWebhook(body), signature)
}

func hexMAC(key, msg []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func equal(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}
