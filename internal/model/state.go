package model

import (
	"strings"
	"sync"
	"time"
)

// PipelineState is the shared record threaded through one orchestration run.
// The orchestrator owns it; each agent receives a write-only Slot for its own
// outcome and can never touch another agent's slot. The slot discipline is
// what makes concurrent agent dispatch race-free without fine-grained
// locking on agent code.
//
// Created at the start of a run, destroyed when the run returns.
type PipelineState struct {
	Query Query

	mu       sync.Mutex
	outcomes map[string]AgentOutcome
	errs     []AgentError
	answer   string
}

// NewPipelineState validates the query and constructs run state. A
// construction failure here is the only fatal error class in the pipeline.
func NewPipelineState(q Query) (*PipelineState, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrInvalidQuery
	}
	return &PipelineState{
		Query:    q,
		outcomes: make(map[string]AgentOutcome),
	}, nil
}

// Slot is a write-once view of one agent's outcome slot. Handing each agent
// its own Slot (rather than the whole state) enforces the
// single-writer-per-slot invariant by construction.
type Slot struct {
	state *PipelineState
	agent string
}

// Slot returns the write-only view for the named agent.
func (s *PipelineState) Slot(agent string) *Slot {
	return &Slot{state: s, agent: agent}
}

// Write records the agent's outcome. The first write wins: a late write
// (e.g. an agent completing after the orchestrator already recorded its
// timeout) is dropped and reported as false.
func (sl *Slot) Write(out AgentOutcome) bool {
	out.Agent = sl.agent
	sl.state.mu.Lock()
	defer sl.state.mu.Unlock()
	if _, exists := sl.state.outcomes[sl.agent]; exists {
		return false
	}
	sl.state.outcomes[sl.agent] = out
	if out.Err != nil {
		sl.state.errs = append(sl.state.errs, *out.Err)
	}
	return true
}

// Outcome returns the recorded outcome for an agent, if any.
func (s *PipelineState) Outcome(agent string) (AgentOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outcomes[agent]
	return out, ok
}

// Outcomes returns a copy of all recorded outcomes.
func (s *PipelineState) Outcomes() map[string]AgentOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]AgentOutcome, len(s.outcomes))
	for k, v := range s.outcomes {
		copied[k] = v
	}
	return copied
}

// AddError appends a pipeline-level error (not attributable to one agent's
// slot, e.g. finalization failure).
func (s *PipelineState) AddError(e AgentError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, e)
}

// Errors returns a copy of the accumulated error list.
func (s *PipelineState) Errors() []AgentError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AgentError, len(s.errs))
	copy(out, s.errs)
	return out
}

// SetAnswer records the final answer.
func (s *PipelineState) SetAnswer(a string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = a
}

// Answer returns the recorded final answer.
func (s *PipelineState) Answer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer
}

// Response is the engine's reply to one Process call. The user always gets
// an Answer, possibly a degraded one; diagnostics ride alongside.
type Response struct {
	Answer string

	// Category is empty on a fully successful run; otherwise it names the
	// dominant failure class (timeout, backend_unavailable, ...).
	Category ErrorKind

	// Evidence is the merged, deduplicated top evidence across all agents.
	Evidence []RankedResult

	// AgentStatus maps agent name to its terminal status.
	AgentStatus map[string]OutcomeStatus

	Errors  []AgentError
	Elapsed time.Duration
}
