package routing

import "errors"

// ErrorKind classifies a planning failure.
type ErrorKind string

const (
	KindDestinationNotFound ErrorKind = "DestinationNotFound"
	KindOriginNotFound      ErrorKind = "OriginNotFound"
	KindOriginMissing       ErrorKind = "OriginMissing"
	// KindNoPath never escapes Plan; an exhausted search degrades to a
	// walk-only itinerary annotated with the next feasible bus.
	KindNoPath    ErrorKind = "NoPath"
	KindNoService ErrorKind = "NoService"
)

// PlanError is a logical planning failure surfaced to the caller. Transient
// collaborator failures never become PlanErrors; they degrade the response.
type PlanError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Debug   string    `json:"debug,omitempty"`
}

func (e *PlanError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func newPlanError(kind ErrorKind, message string) *PlanError {
	return &PlanError{Kind: kind, Message: message}
}

// AsPlanError unwraps a PlanError from an error chain.
func AsPlanError(err error) (*PlanError, bool) {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Engine-level outcomes consumed by the planner, never surfaced directly.
var (
	errNoBoardableStops = errors.New("no boardable stops near origin")
	errNoRoute          = errors.New("search exhausted without reaching the destination")
)
