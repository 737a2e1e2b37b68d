package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spigell/job-sift/internal/filtering"
	"github.com/spigell/job-sift/internal/posting"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func scored(key, company string, final int, decision filtering.Decision, sources ...string) filtering.Result {
	return filtering.Result{
		Posting:     posting.Canonical{IdentityKey: key, Company: company, Sources: sources},
		QuickFilter: filtering.Passed,
		FinalScore:  &final,
		Decision:    decision,
	}
}

func filtered(key string, scrapedAt, lastSeen time.Time, outcome filtering.Outcome, sources ...string) filtering.Result {
	return filtering.Result{
		Posting: posting.Canonical{
			IdentityKey: key,
			Company:     "Other",
			Sources:     sources,
			ScrapedAt:   scrapedAt,
			LastSeen:    lastSeen,
		},
		QuickFilter: outcome,
		Decision:    filtering.QuickFiltered,
	}
}

func keys(results []filtering.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Posting.IdentityKey
	}
	return out
}

func TestConsolidateOrdering(t *testing.T) {
	results := []filtering.Result{
		scored("url:c", "Acme", 8, filtering.Matched, "wwr"),
		scored("url:a", "Acme", 8, filtering.Matched, "remoteok", "wwr"),
		scored("url:b", "Beta", 10, filtering.Matched, "remoteok"),
		scored("url:d", "Beta", 3, filtering.AIRejected, "remoteok"),
		scored("url:e", "Beta", 6, filtering.AIRejected, "wwr"),
		filtered("tcl:1", base, base, filtering.RejectedTitle, "wwr"),
		filtered("tcl:2", base.Add(time.Hour), base, filtering.AIUnavailable, "wwr"),
		filtered("tcl:3", base, base.Add(time.Hour), filtering.RejectedDescription, "remoteok"),
		filtered("tcl:0", base, base, filtering.RejectedMissingMustHave, "wwr"),
	}

	r := Consolidate(results)

	if diff := cmp.Diff([]string{"url:b", "url:a", "url:c"}, keys(r.Matched)); diff != "" {
		t.Fatalf("unexpected matched order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"url:e", "url:d"}, keys(r.AIRejected)); diff != "" {
		t.Fatalf("unexpected ai-rejected order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"tcl:2", "tcl:3", "tcl:0", "tcl:1"}, keys(r.QuickFiltered)); diff != "" {
		t.Fatalf("unexpected quick-filtered order (-want +got):\n%s", diff)
	}

	wantSummary := map[string]map[filtering.Decision]int{
		"wwr":      {filtering.Matched: 2, filtering.AIRejected: 1, filtering.QuickFiltered: 3},
		"remoteok": {filtering.Matched: 2, filtering.AIRejected: 1, filtering.QuickFiltered: 1},
	}
	if diff := cmp.Diff(wantSummary, r.SummaryBySource); diff != "" {
		t.Fatalf("unexpected summary (-want +got):\n%s", diff)
	}

	wantCompanies := []CompanySummary{
		{Company: "Acme", Matched: 2, BestScore: 8},
		{Company: "Beta", Matched: 1, AIRejected: 2, BestScore: 10},
		{Company: "Other", QuickFiltered: 4},
	}
	if diff := cmp.Diff(wantCompanies, r.ByCompany); diff != "" {
		t.Fatalf("unexpected company summary (-want +got):\n%s", diff)
	}
}

func TestConsolidateIsPure(t *testing.T) {
	results := []filtering.Result{
		scored("url:b", "Acme", 7, filtering.Matched, "wwr"),
		scored("url:a", "Acme", 9, filtering.Matched, "wwr"),
	}
	before := keys(results)

	first := Consolidate(results)
	second := Consolidate(results)

	if diff := cmp.Diff(before, keys(results)); diff != "" {
		t.Fatalf("input was reordered (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("consolidation is not deterministic (-first +second):\n%s", diff)
	}
}

func TestConsolidateEmpty(t *testing.T) {
	r := Consolidate(nil)
	if m, a, q := r.Counts(); m != 0 || a != 0 || q != 0 {
		t.Fatalf("expected empty report, got %d/%d/%d", m, a, q)
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["matched"].([]any); !ok {
		t.Fatalf("empty partitions must encode as arrays: %s", data)
	}
}

func TestWrite(t *testing.T) {
	r := Consolidate([]filtering.Result{scored("url:a", "Acme", 9, filtering.Matched, "wwr")})
	r.RunID = NewRunID()

	path := filepath.Join(t.TempDir(), "report.json")
	if err := Write(path, r); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RunID != r.RunID || len(decoded.Matched) != 1 || *decoded.Matched[0].FinalScore != 9 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}
