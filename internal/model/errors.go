package model

import "errors"

// ErrorKind classifies a failure for fallback selection and the response
// envelope. NoEvidence is a valid terminal state, not an error condition.
type ErrorKind string

const (
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindTimeout            ErrorKind = "timeout"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindNoEvidence         ErrorKind = "no_evidence"
	KindPartialEvidence    ErrorKind = "partial_evidence"
	KindPermission         ErrorKind = "permission"
)

// ErrInvalidQuery is returned by NewPipelineState for queries that cannot
// start a run at all. This is the only error class that propagates to the
// caller as a hard failure; everything else degrades into a response.
var ErrInvalidQuery = errors.New("model: query text is empty")

// AgentError is a caught agent-level failure, preserved in the response for
// observability. Agent errors never propagate as Go errors past the agent
// boundary.
type AgentError struct {
	Agent   string
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e AgentError) Error() string {
	return "agent " + e.Agent + ": " + string(e.Kind) + ": " + e.Message
}
