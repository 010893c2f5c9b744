package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finsight-ai/finsight/internal/model"
)

func agentErr(kind model.ErrorKind, msg string) model.AgentError {
	return model.AgentError{Agent: "test", Kind: kind, Message: msg}
}

func TestClassify_SeverityOrder(t *testing.T) {
	cases := []struct {
		name string
		errs []model.AgentError
		want model.ErrorKind
	}{
		{name: "no errors means no evidence", errs: nil, want: model.KindNoEvidence},
		{
			name: "backend failure",
			errs: []model.AgentError{agentErr(model.KindBackendUnavailable, "qdrant: connection refused")},
			want: model.KindBackendUnavailable,
		},
		{
			name: "timeout outranks backend failure",
			errs: []model.AgentError{
				agentErr(model.KindBackendUnavailable, "postgres down"),
				agentErr(model.KindTimeout, "agent exceeded its deadline"),
			},
			want: model.KindTimeout,
		},
		{
			name: "permission outranks everything",
			errs: []model.AgentError{
				agentErr(model.KindTimeout, "slow"),
				agentErr(model.KindBackendUnavailable, "permission denied for relation evidence"),
			},
			want: model.KindPermission,
		},
		{
			name: "substring match without a typed kind",
			errs: []model.AgentError{agentErr(model.KindNoEvidence, "context deadline exceeded while fetching")},
			want: model.KindTimeout,
		},
		{
			name: "no-evidence errors stay no-evidence",
			errs: []model.AgentError{agentErr(model.KindNoEvidence, "no message evidence matched the query")},
			want: model.KindNoEvidence,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.errs))
		})
	}
}

func TestClassify_IsDeterministicAcrossErrorOrder(t *testing.T) {
	a := agentErr(model.KindBackendUnavailable, "down")
	b := agentErr(model.KindTimeout, "slow")

	assert.Equal(t, Classify([]model.AgentError{a, b}), Classify([]model.AgentError{b, a}))
}

func TestBuildFallback_NamesSucceededSources(t *testing.T) {
	outcomes := map[string]model.AgentOutcome{
		"reports": {Status: model.OutcomeSuccess, Results: []model.RankedResult{{}}},
		"messages": {Status: model.OutcomeFailed},
		"industry": {Status: model.OutcomePartial, Summary: "sector digest"},
	}

	msg := BuildFallback(model.KindTimeout, outcomes)
	assert.Contains(t, msg, "did not respond in time")
	assert.Contains(t, msg, "industry, reports", "usable sources are credited in sorted order")
	assert.NotContains(t, msg, "messages")
}

func TestBuildFallback_NothingSucceeded(t *testing.T) {
	outcomes := map[string]model.AgentOutcome{
		"reports": {Status: model.OutcomeFailed},
	}

	msg := BuildFallback(model.KindBackendUnavailable, outcomes)
	assert.Contains(t, msg, "could not answer")
	assert.Contains(t, msg, "currently unavailable")
	assert.NotEmpty(t, msg)
}
