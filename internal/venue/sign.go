package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// signHex computes HMAC-SHA256 over message with secret, hex-encoded —
// Binance-style query-string signing.
func signHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// signBase64 computes HMAC-SHA256 over message with secret, base64-encoded —
// OKX-style pre-hash signing.
func signBase64(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
