// Package herr classifies pipeline errors into the handling kinds the
// capture core distinguishes: whether a fault is retried locally, merely
// annotated in outgoing records, or fatal to the process.
package herr

import "fmt"

// Kind is one of the failure classes the core distinguishes. None of them
// except Fatal may terminate the process.
type Kind int

const (
	// Transient faults are retried locally with bounded backoff: socket
	// reopen, NTP subsystem unavailable.
	Transient Kind = iota
	// Degraded faults let the pipeline continue with a downgraded
	// annotation: no tone found, no NTP, source falls back to wall clock.
	Degraded
	// DataLoss is a seq gap within tolerance: the writer fills zeros and
	// logs a discontinuity.
	DataLoss
	// StreamRestart is a large RTP jump: anchors reset, in-progress
	// minute closes early.
	StreamRestart
	// Fatal faults abort the process with a diagnostic: bad config,
	// unsupported sample format.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Degraded:
		return "degraded"
	case DataLoss:
		return "data_loss"
	case StreamRestart:
		return "stream_restart"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with its handling Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	he, ok := err.(*Error)
	return ok && he.Kind == kind
}
