package recordings

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

// Signature verification failure modes. All of them map to a 401 at the
// webhook endpoint; the distinction is for logs.
var (
	ErrMissingAuth   = errors.New("missing authorization header")
	ErrMalformedAuth = errors.New("malformed authorization header")
	ErrUnknownAPIKey = errors.New("unknown api key")
	ErrBadSignature  = errors.New("signature mismatch")
)

// VerifyWebhook validates a provider webhook delivery. The header has the form
//
//	Authorization: Bearer <apiKey>:<base64(HMAC-SHA256(secret, body))>
//
// and is checked against the raw request bytes. Comparisons are constant-time.
// The body must not be parsed before this returns nil.
func VerifyWebhook(body []byte, header, apiKey, secret string) error {
	if header == "" {
		return ErrMissingAuth
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ErrMalformedAuth
	}
	key, sig, ok := strings.Cut(token, ":")
	if !ok || key == "" || sig == "" {
		return ErrMalformedAuth
	}
	provided, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return ErrMalformedAuth
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
		return ErrUnknownAPIKey
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}
