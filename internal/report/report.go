// Package report consolidates scoring results into the record set a run emits.
package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/job-sift/internal/filtering"
)

// Report is the consolidated output of one scoring run.
type Report struct {
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitzero"`

	Matched       []filtering.Result `json:"matched"`
	AIRejected    []filtering.Result `json:"ai_rejected"`
	QuickFiltered []filtering.Result `json:"quick_filtered"`

	// SummaryBySource counts decisions per source. A posting reported by
	// several sources counts under each of them.
	SummaryBySource map[string]map[filtering.Decision]int `json:"summary_by_source"`
	ByCompany       []CompanySummary                      `json:"by_company"`
}

type CompanySummary struct {
	Company       string `json:"company"`
	Matched       int    `json:"matched"`
	AIRejected    int    `json:"ai_rejected"`
	QuickFiltered int    `json:"quick_filtered"`
	BestScore     int    `json:"best_score,omitempty"`
}

// NewRunID returns a fresh identifier for a scoring run.
func NewRunID() string {
	return uuid.NewString()
}

// Consolidate partitions results by decision and orders each partition
// deterministically. It does not modify its input.
func Consolidate(results []filtering.Result) Report {
	r := Report{
		Matched:         []filtering.Result{},
		AIRejected:      []filtering.Result{},
		QuickFiltered:   []filtering.Result{},
		SummaryBySource: make(map[string]map[filtering.Decision]int),
	}

	companies := make(map[string]*CompanySummary)

	for _, res := range results {
		switch res.Decision {
		case filtering.Matched:
			r.Matched = append(r.Matched, res)
		case filtering.AIRejected:
			r.AIRejected = append(r.AIRejected, res)
		default:
			r.QuickFiltered = append(r.QuickFiltered, res)
		}

		decision := decisionOf(res)
		for _, src := range res.Posting.Sources {
			if r.SummaryBySource[src] == nil {
				r.SummaryBySource[src] = make(map[filtering.Decision]int)
			}
			r.SummaryBySource[src][decision]++
		}

		company := res.Posting.Company
		summary, ok := companies[company]
		if !ok {
			summary = &CompanySummary{Company: company}
			companies[company] = summary
		}
		switch decision {
		case filtering.Matched:
			summary.Matched++
		case filtering.AIRejected:
			summary.AIRejected++
		default:
			summary.QuickFiltered++
		}
		if res.FinalScore != nil && *res.FinalScore > summary.BestScore {
			summary.BestScore = *res.FinalScore
		}
	}

	slices.SortFunc(r.Matched, byScore)
	slices.SortFunc(r.AIRejected, byScore)
	slices.SortFunc(r.QuickFiltered, byRecency)

	r.ByCompany = make([]CompanySummary, 0, len(companies))
	for _, summary := range companies {
		r.ByCompany = append(r.ByCompany, *summary)
	}
	slices.SortFunc(r.ByCompany, func(a, b CompanySummary) int {
		return cmp.Or(
			cmp.Compare(b.Matched, a.Matched),
			cmp.Compare(b.BestScore, a.BestScore),
			cmp.Compare(a.Company, b.Company),
		)
	})

	return r
}

func decisionOf(res filtering.Result) filtering.Decision {
	if res.Decision == filtering.Matched || res.Decision == filtering.AIRejected {
		return res.Decision
	}
	return filtering.QuickFiltered
}

func finalScore(res filtering.Result) int {
	if res.FinalScore == nil {
		return 0
	}
	return *res.FinalScore
}

// byScore orders by final score, highest first, then by identity key.
func byScore(a, b filtering.Result) int {
	return cmp.Or(
		cmp.Compare(finalScore(b), finalScore(a)),
		cmp.Compare(a.Posting.IdentityKey, b.Posting.IdentityKey),
	)
}

// byRecency orders by scrape time, then last seen, newest first, then by identity key.
func byRecency(a, b filtering.Result) int {
	return cmp.Or(
		b.Posting.ScrapedAt.Compare(a.Posting.ScrapedAt),
		b.Posting.LastSeen.Compare(a.Posting.LastSeen),
		cmp.Compare(a.Posting.IdentityKey, b.Posting.IdentityKey),
	)
}

// Counts returns the size of each partition.
func (r Report) Counts() (matched, aiRejected, quickFiltered int) {
	return len(r.Matched), len(r.AIRejected), len(r.QuickFiltered)
}
