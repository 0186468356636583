// Package conditions evaluates case file conditions against a job
// message. The message is treated as a generic tree of nested maps,
// sequences and scalars; condition paths address it with "->" separated
// segments (e.g. "data->result->code").
package conditions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lirancohen/dirigent/casefile"
)

// ErrConditionFailed is the sentinel all condition failures unwrap to.
var ErrConditionFailed = errors.New("condition failed")

// Failure describes a single failing condition. The whole check
// short-circuits on the first failure.
type Failure struct {
	// Condition names the failing kind: log, workflow, status or
	// not_present.
	Condition string

	// Want is the configured value; Got the resolved one.
	Want string
	Got  string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("condition %s failed: want %q, got %q", f.Condition, f.Want, f.Got)
}

func (f *Failure) Unwrap() error {
	return ErrConditionFailed
}

// absent is the display marker for an unresolvable path. The ok flag
// from resolveString is the real sentinel: an absent path never matches
// a condition value, even one that happens to spell this marker.
const absent = "<absent>"

// Resolve walks a "->" separated path through nested maps.
// Returns false when any intermediate segment is missing or not a map;
// callers must treat that as "absent", never as a matchable value.
func Resolve(doc map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var cur any = doc
	for _, seg := range strings.Split(path, "->") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// resolveString resolves a path to its string form, or the absent marker.
func resolveString(doc map[string]any, path string) (string, bool) {
	v, ok := Resolve(doc, path)
	if !ok {
		return absent, false
	}
	return fmt.Sprintf("%v", v), true
}

// prefixFold reports whether got starts with want, case-insensitively.
func prefixFold(got, want string) bool {
	return strings.HasPrefix(strings.ToLower(got), strings.ToLower(want))
}

// Check evaluates conditions against a job message tree. Conditions are
// evaluated in order (log, workflow, status, not_present) and the first
// failure terminates the check. A nil or empty Conditions always passes.
// A conditional message without a worker-visit log is rejected outright,
// since conditional resumes are only meaningful for jobs that have been
// through at least one worker.
func Check(doc map[string]any, c *casefile.Conditions) error {
	if c.Empty() {
		return nil
	}

	log, err := workerLog(doc)
	if err != nil {
		return err
	}

	if c.Log != "" {
		last := fmt.Sprintf("%v", log[len(log)-1])
		if last != c.Log {
			return &Failure{Condition: "log", Want: c.Log, Got: last}
		}
	}

	if c.Workflow != "" {
		got, ok := resolveString(doc, "meta->workflow")
		if !ok || !prefixFold(got, c.Workflow) {
			return &Failure{Condition: "workflow", Want: c.Workflow, Got: got}
		}
	}

	if c.Status != nil {
		got, ok := resolveString(doc, c.Status.Path)
		if !ok || !prefixFold(got, c.Status.Value) {
			return &Failure{Condition: "status", Want: c.Status.Value, Got: got}
		}
	}

	if c.NotPresent != nil {
		// Equality, not prefix match: the forbidden value must be
		// exactly present to fail. Absent paths pass.
		if got, ok := resolveString(doc, c.NotPresent.Path); ok && got == c.NotPresent.Value {
			return &Failure{Condition: "not_present", Want: "anything but " + c.NotPresent.Value, Got: got}
		}
	}

	return nil
}

// workerLog extracts the non-empty worker-visit log from the message.
func workerLog(doc map[string]any) ([]any, error) {
	v, ok := Resolve(doc, "meta->log")
	if !ok {
		return nil, fmt.Errorf("%w: missing log path", ErrConditionFailed)
	}
	log, ok := v.([]any)
	if !ok || len(log) == 0 {
		return nil, fmt.Errorf("%w: missing log path", ErrConditionFailed)
	}
	return log, nil
}
