package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const releaseAtLayout = "2006-01-02T15:04:05.000Z07:00"

// NormalizeTime truncates t to the precision notes are stored with.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatReleaseAt renders t as ISO-8601 UTC with millisecond precision, e.g. 2025-01-01T00:00:00.000Z.
func FormatReleaseAt(t time.Time) string {
	return NormalizeTime(t).Format(releaseAtLayout)
}

// IdempotencyKey derives the key of one delivery round: hex(sha256("<noteID>:<releaseAt>")).
// releaseAt advances on every retry, so every round gets its own key.
func IdempotencyKey(noteID string, releaseAt time.Time) string {
	sum := sha256.Sum256([]byte(noteID + ":" + FormatReleaseAt(releaseAt)))
	return hex.EncodeToString(sum[:])
}
