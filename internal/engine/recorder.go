package engine

import "time"

// Recorder observes document operations, typically backed by prometheus.
type Recorder interface {
	ObserveOp(collection, op, result string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOp(string, string, string, time.Duration) {}

// operation names passed to Recorder
const (
	OpList    = "list"
	OpGet     = "get"
	OpCreate  = "create"
	OpReplace = "replace"
	OpPatch   = "patch"
	OpDelete  = "delete"
	OpResolve = "resolve"
)

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	status, _ := mapError(err)
	switch {
	case status >= 500:
		return "error"
	default:
		return "rejected"
	}
}
