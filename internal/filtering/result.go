package filtering

import (
	"github.com/spigell/job-sift/internal/posting"
)

// Outcome is what the quick filter (or a scorer failure) concluded.
type Outcome string

const (
	Passed                  Outcome = "passed"
	RejectedTitle           Outcome = "rejected-title"
	RejectedDescription     Outcome = "rejected-description"
	RejectedMissingMustHave Outcome = "rejected-missing-must-have"
	AIUnavailable           Outcome = "ai-unavailable"
)

type Decision string

const (
	Matched       Decision = "matched"
	AIRejected    Decision = "ai-rejected"
	QuickFiltered Decision = "quick-filtered"
)

// Result is the verdict on one posting for one scoring run.
type Result struct {
	Posting     posting.Canonical `json:"posting"`
	QuickFilter Outcome           `json:"quick_filter"`
	AIScore     *int              `json:"ai_score,omitempty"`
	AIRationale *string           `json:"ai_rationale,omitempty"`
	Adjustment  int               `json:"adjustment"`
	FinalScore  *int              `json:"final_score,omitempty"`
	Decision    Decision          `json:"decision"`
	// Reason names the rule or keyword behind a rejection.
	Reason          string   `json:"reason,omitempty"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	// Flags are informational and never change the decision.
	Flags []string `json:"flags,omitempty"`
	Error string   `json:"error,omitempty"`
}

func (r Result) pending() bool { return r.Decision == "" }

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
