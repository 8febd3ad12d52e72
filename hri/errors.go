package hri

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrFrameUnknown is returned when reference or target frame was never published
	ErrFrameUnknown = errors.New("frame unknown")
	// ErrTimeout is returned when transform could not be resolved within time budget
	ErrTimeout = errors.New("transform lookup timed out")
	// ErrDisconnected is returned when transform service is unavailable
	ErrDisconnected = errors.New("transform service disconnected")
	// ErrDestroyed is returned on operations against destroyed feature or closed registry
	ErrDestroyed = errors.New("destroyed")
	// ErrMalformedUpdate wraps every update decoding failure
	ErrMalformedUpdate = errors.New("malformed update")
)

// LookupFailure is the kind of pose lookup failure
type LookupFailure uint8

const (
	// FrameUnknown means one of the frames was never published
	FrameUnknown LookupFailure = iota + 1
	// Timeout means no resolution within time budget
	Timeout
	// Disconnected means transform service is unavailable
	Disconnected
)

func (kind LookupFailure) String() string {
	switch kind {
	case FrameUnknown:
		return "frame_unknown"
	case Timeout:
		return "timeout"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("lookup_failure(%d)", uint8(kind))
	}
}

func (kind LookupFailure) sentinel() error {
	switch kind {
	case FrameUnknown:
		return ErrFrameUnknown
	case Timeout:
		return ErrTimeout
	default:
		return ErrDisconnected
	}
}

// LookupError describes failed transform resolution
type LookupError struct {
	Kind      LookupFailure
	Reference string
	Target    string
	Err       error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("can't transform %s to %s (%s): %v", e.Target, e.Reference, e.Kind, e.Err)
	}
	return fmt.Sprintf("can't transform %s to %s (%s)", e.Target, e.Reference, e.Kind)
}

// Is makes errors.Is(err, ErrTimeout) and friends match on Kind
func (e *LookupError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
