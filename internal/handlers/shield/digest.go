package shield

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BuildHash produces the dedupe key for a piece of content. The text
// is trimmed before hashing so padding whitespace cannot defeat the
// dedupe, and the digest is lowercase hex so it can be recovered from
// alert message text later.
func BuildHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
