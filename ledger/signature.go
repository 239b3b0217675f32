// ABOUTME: Content-derived signature computation for planned activities
// ABOUTME: Identical derivation inputs always collide to the same signature
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Signature derives the stable dedup hash for one planned activity. The
// scheduled time is rounded to the minute in UTC so wall-clock jitter between
// runs cannot split one logical activity into two signatures.
func Signature(kind, recordID string, scheduledAt time.Time, subject string) string {
	ts := scheduledAt.UTC().Truncate(time.Minute).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%s", kind, recordID, ts, subject)))
	return hex.EncodeToString(sum[:])
}
