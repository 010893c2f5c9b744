package model

import "time"

// OutcomeStatus is the terminal status of one agent execution.
type OutcomeStatus string

const (
	// OutcomeSuccess means the agent produced usable, non-trivial output.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomePartial means the agent ran but found less than its contract
	// promises (e.g. a retrieval agent that found nothing). Distinguishes
	// "found nothing" from "succeeded trivially".
	OutcomePartial OutcomeStatus = "partial"
	// OutcomeFailed means the agent caught an error (backend failure,
	// timeout) and reported it in Err.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeSkipped means the agent declined to run, typically because a
	// required entity hint was absent. No backend call was attempted.
	OutcomeSkipped OutcomeStatus = "skipped"
)

// AgentOutcome is the result of one SourceAgent execution. One per
// (query, agent) pair, owned by the run-scoped PipelineState.
type AgentOutcome struct {
	Agent   string
	Status  OutcomeStatus
	Results []RankedResult

	// Summary holds structured prose for analysis-style agents that produce
	// a digest rather than (or in addition to) ranked evidence.
	Summary string

	Err     *AgentError
	Elapsed time.Duration
}

// Usable reports whether the outcome contributes evidence to the merge phase.
func (o AgentOutcome) Usable() bool {
	return (o.Status == OutcomeSuccess || o.Status == OutcomePartial) &&
		(len(o.Results) > 0 || o.Summary != "")
}

// SkippedOutcome builds the outcome for an agent that declined to run.
func SkippedOutcome(agent, reason string) AgentOutcome {
	return AgentOutcome{
		Agent:  agent,
		Status: OutcomeSkipped,
		Err:    &AgentError{Agent: agent, Kind: KindInvalidInput, Message: reason},
	}
}

// FailedOutcome builds the outcome for an agent whose execution failed.
func FailedOutcome(agent string, kind ErrorKind, msg string, elapsed time.Duration) AgentOutcome {
	return AgentOutcome{
		Agent:   agent,
		Status:  OutcomeFailed,
		Err:     &AgentError{Agent: agent, Kind: kind, Message: msg},
		Elapsed: elapsed,
	}
}
