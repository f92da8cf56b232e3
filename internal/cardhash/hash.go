// Package cardhash computes the content fingerprint used to detect
// duplicate cards. The digest is a fingerprint, not a security boundary.
package cardhash

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize cleans the question and answer before hashing. It trims
// whitespace, lowercases, and normalizes line endings for each field so that
// cosmetic edits do not produce a distinct card.
func Normalize(question, answer string) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	// Joined with a newline to keep the fields separated; without it
	// ("question", "answer") and ("questiona", "nswer") would collide.
	return normalizePart(question) + "\n" + normalizePart(answer)
}

// Hash returns the SHA-256 fingerprint of the normalized card content as a
// hex string.
func Hash(question, answer string) string {
	normalized := Normalize(question, answer)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
