package audit

import "crypto/sha256"

// computeEventID hashes the raw matched envelope bytes. Together with
// matched_at it forms match_audit's primary key, so inserting the same
// envelope with the same match timestamp twice collides instead of
// duplicating the row; the same bytes matched at a different time (e.g.
// re-read after a restart) are stored as a separate row.
func computeEventID(raw []byte) []byte {
	h := sha256.Sum256(raw)
	return h[:]
}
