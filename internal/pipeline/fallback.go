package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/finsight-ai/finsight/internal/model"
)

// fallbackRule matches one failure pattern. Rules are evaluated in order;
// the first match decides the category, which keeps classification
// deterministic regardless of which agent failed first.
type fallbackRule struct {
	category model.ErrorKind
	match    func(model.AgentError) bool
}

// errContainsAny reports whether the error message mentions any marker.
func errContainsAny(e model.AgentError, markers ...string) bool {
	msg := strings.ToLower(e.Message)
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// fallbackRules order encodes severity: a permission problem is reported
// over a timeout, a timeout over a generic upstream failure, and only when
// nothing else matches is the situation read as "no data found".
var fallbackRules = []fallbackRule{
	{
		category: model.KindPermission,
		match: func(e model.AgentError) bool {
			return e.Kind == model.KindPermission || errContainsAny(e, "permission denied", "unauthorized", "forbidden")
		},
	},
	{
		category: model.KindTimeout,
		match: func(e model.AgentError) bool {
			return e.Kind == model.KindTimeout || errContainsAny(e, "timeout", "deadline exceeded")
		},
	},
	{
		category: model.KindBackendUnavailable,
		match: func(e model.AgentError) bool {
			return e.Kind == model.KindBackendUnavailable || errContainsAny(e, "unavailable", "connection refused", "connection reset")
		},
	},
}

// Classify reduces the run's error list to one dominant category. An empty
// error list (all agents simply found nothing) classifies as no-evidence.
func Classify(errs []model.AgentError) model.ErrorKind {
	for _, rule := range fallbackRules {
		for _, e := range errs {
			if rule.match(e) {
				return rule.category
			}
		}
	}
	return model.KindNoEvidence
}

// categoryExplanations are the user-facing phrasings per category.
var categoryExplanations = map[model.ErrorKind]string{
	model.KindPermission:         "access to one or more evidence sources was denied",
	model.KindTimeout:            "the evidence sources did not respond in time",
	model.KindBackendUnavailable: "the evidence sources are currently unavailable",
	model.KindNoEvidence:         "no relevant evidence was found for this question",
}

// BuildFallback renders the degraded answer for a run where finalization
// could not happen. It names the category and credits any sources that did
// produce something, so the user knows what the partial picture rests on.
func BuildFallback(category model.ErrorKind, outcomes map[string]model.AgentOutcome) string {
	explanation, ok := categoryExplanations[category]
	if !ok {
		explanation = "an unexpected error occurred while gathering evidence"
	}

	var succeeded []string
	for name, out := range outcomes {
		if out.Usable() {
			succeeded = append(succeeded, name)
		}
	}
	sort.Strings(succeeded)

	if len(succeeded) == 0 {
		return fmt.Sprintf("I could not answer this question: %s. Please try again, or rephrase the question.", explanation)
	}
	return fmt.Sprintf("I could only partially answer this question: %s. The available evidence comes from: %s.",
		explanation, strings.Join(succeeded, ", "))
}
