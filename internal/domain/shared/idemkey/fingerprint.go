package idemkey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint hashes the canonical fields of a payload. Callers pass fields in a
// fixed order with numbers already rendered canonically (e.g. decimal.String()).
func Fingerprint(fields ...string) string {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(strings.TrimSpace(f)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
