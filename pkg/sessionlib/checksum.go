package sessionlib

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RecordChecksum derives the integrity checksum of a checkpoint from the
// immutable identity of the session: id, actual start time and planned
// duration. A checkpoint whose recomputed checksum does not match is
// discarded as corrupted.
func RecordChecksum(id string, start time.Time, planned time.Duration) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", id, start.UnixNano(), int64(planned))
	return hex.EncodeToString(h.Sum(nil))
}

// checksumOf computes the checksum for a record.
func checksumOf(r *SessionRecord) string {
	return RecordChecksum(r.ID, r.ActualStartTime, r.PlannedDuration)
}
