// Package feed models candidate posts and ranks them for action.
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Candidate is one post extracted by the browser driver.
type Candidate struct {
	Author    string
	Text      string
	Timestamp time.Time
	Likes     int
}

// idTextPrefix bounds how much text feeds the id hash; enough to tell
// posts apart, short enough that trailing edits don't change identity.
const idTextPrefix = 300

// CandidateID derives a stable id from (author, text prefix, timestamp
// truncated to bucket). Re-extracting the same post after a page re-render
// lands in the same bucket and yields the same id.
func CandidateID(c Candidate, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = 5 * time.Minute
	}
	text := c.Text
	if len(text) > idTextPrefix {
		text = text[:idTextPrefix]
	}
	ts := c.Timestamp.UTC().Truncate(bucket)

	h := sha256.New()
	h.Write([]byte(c.Author))
	h.Write([]byte("||"))
	h.Write([]byte(text))
	h.Write([]byte("||"))
	h.Write([]byte(ts.Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
