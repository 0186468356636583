package job

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// DedupWindow is the coarse time bucket for job deduplication: bursts
// of identical triggering requests arriving within the same window
// collapse into one job.
const DedupWindow = 2 * time.Minute

// DedupID computes the candidate job id for a triggering payload: a
// stable hash over the deterministic serialization of the options,
// combined with now truncated down to the nearest window boundary.
// encoding/json sorts map keys, so identical options always serialize
// identically.
func DedupID(options map[string]any, now time.Time) string {
	payload, err := json.Marshal(options)
	if err != nil {
		// Options came off the wire as JSON; re-marshaling cannot
		// fail for any value that got here.
		payload = []byte("{}")
	}

	bucket := now.Truncate(DedupWindow).Unix()

	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
