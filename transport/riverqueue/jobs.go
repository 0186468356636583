package riverqueue

import "encoding/json"

// JobKindFrame is the River job kind carrying one transport frame.
const JobKindFrame = "dirigent.frame"

// FrameJobArgs wraps a serialized frame and the queue it was published
// to. River persists the job; the consuming worker hands the payload to
// the configured Handler.
type FrameJobArgs struct {
	// Queue is the logical queue name the frame was published to.
	Queue string `json:"queue"`

	// Payload is the serialized frame.
	Payload json.RawMessage `json:"payload"`
}

// Kind implements river.JobArgs.
func (FrameJobArgs) Kind() string {
	return JobKindFrame
}
