package foxy

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignSSO computes the legacy checkout/SSO authentication token:
// sha1(customerID|timestamp|secret). The secret is concatenated into the
// digested material rather than used as a MAC key; Foxy's receiving end
// expects exactly this construction, so it must not be upgraded to HMAC.
func SignSSO(customerID string, timestamp int64, secret string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s", customerID, timestamp, secret)))
	return hex.EncodeToString(sum[:])
}

// ComputeWebhookSignature returns the hex HMAC-SHA256 of the raw webhook body.
func ComputeWebhookSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the provided signature header against the raw
// body using a constant-time comparison.
func VerifyWebhookSignature(body []byte, secret, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}
	expected := ComputeWebhookSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(provided))
}
