// Package token implements the sync endpoint's bearer proof: an
// HMAC-SHA256 of the club slug under the shared secret, hex encoded.
// The format is part of the wire protocol shared with every client, so
// it is fixed here rather than delegated to a token framework.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Generate derives the sync token for one club slug.
func Generate(slug, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(slug))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented token against the expected one for the
// slug, in constant time.
func Verify(slug, secret, presented string) bool {
	expected := Generate(slug, secret)
	return hmac.Equal([]byte(expected), []byte(presented))
}
