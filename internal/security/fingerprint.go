package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveFingerprint returns a stable device key for a login. A client-supplied device hint wins;
// otherwise the normalized user agent is used. The result is a hex SHA-256 so raw hints are never
// stored. Returns "" when both inputs are blank.
func DeriveFingerprint(deviceHint, userAgent string) string {
	src := strings.TrimSpace(deviceHint)
	prefix := "hint:"
	if src == "" {
		src = strings.Join(strings.Fields(strings.ToLower(userAgent)), " ")
		prefix = "ua:"
	}
	if src == "" {
		return ""
	}
	h := sha256.Sum256([]byte(prefix + src))
	return hex.EncodeToString(h[:])
}
