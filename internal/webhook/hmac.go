package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// signaturePrefix is the scheme marker Notion puts in front of the hex digest.
const signaturePrefix = "sha256="

// computeExpectedSignature computes the hex HMAC-SHA256 digest of body.
func computeExpectedSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// formatPrefixedSignature formats a hex digest in the "sha256=<hex>" form.
func formatPrefixedSignature(hexSig string) string {
	return signaturePrefix + hexSig
}

// hasSignaturePrefix reports whether a header value looks like a keyed-hash
// signature. The prefix check is case-insensitive; some senders upcase it.
func hasSignaturePrefix(signature string) bool {
	return strings.HasPrefix(strings.ToLower(signature), signaturePrefix)
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// signatureMatches verifies a signature header value against one secret,
// accepting both the bare hex digest and the sha256=-prefixed form.
func signatureMatches(body []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	digest := computeExpectedSignature(body, secret)
	return constantTimeEqual(signature, digest) ||
		constantTimeEqual(signature, formatPrefixedSignature(digest))
}
