package posting

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestIdentityURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
		ok     bool
	}{
		{
			name:   "strips tracking parameters and sorts the rest",
			input:  "https://Jobs.Example.com/view/42?utm_source=x&b=2&a=1&gclid=abc",
			expect: "https://jobs.example.com/view/42?a=1&b=2",
			ok:     true,
		},
		{
			name:   "folds scheme, www and trailing slash",
			input:  "http://www.example.com/jobs/7/#apply",
			expect: "https://example.com/jobs/7",
			ok:     true,
		},
		{
			name:   "drops default port",
			input:  "https://example.com:443/a",
			expect: "https://example.com/a",
			ok:     true,
		},
		{
			name:  "rejects relative url",
			input: "/jobs/1",
		},
		{
			name:  "rejects non http scheme",
			input: "mailto:hr@example.com",
		},
		{
			name: "rejects empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := IdentityURL(tt.input)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v (%q)", tt.ok, ok, got)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	scraped := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	got, err := Normalize(Raw{
		Title:       "  Senior   Go\tEngineer ",
		Company:     " Acme ",
		Location:    " Remote ",
		URL:         " https://example.com/jobs/1?utm_campaign=feed ",
		Description: "Build\n\nthings   fast",
		Source:      " weworkremotely ",
		ScrapedAt:   scraped,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key, _ := IdentityKey(Canonical{URL: "https://example.com/jobs/1"})
	want := Canonical{
		IdentityKey: key,
		Title:       "Senior Go Engineer",
		Company:     "Acme",
		Location:    "Remote",
		URL:         "https://example.com/jobs/1?utm_campaign=feed",
		Description: "Build things fast",
		Sources:     []string{"weworkremotely"},
		ScrapedAt:   scraped.UTC(),
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("normalized posting mismatch (-want +got):\n%s", diff)
	}
}

func TestIdentityKeySameJobAcrossSources(t *testing.T) {
	a, err := Normalize(Raw{Title: "Go Dev", Company: "Acme", URL: "https://example.com/j/1?ref=remoteok", Source: "remoteok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Normalize(Raw{Title: "Go Developer", Company: "ACME Inc", URL: "HTTP://WWW.EXAMPLE.COM/j/1/", Source: "wwr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.IdentityKey != b.IdentityKey {
		t.Fatalf("expected equal keys, got %q and %q", a.IdentityKey, b.IdentityKey)
	}
}

func TestIdentityKeyFallback(t *testing.T) {
	a, err := Normalize(Raw{Title: "Go  Dev", Company: "Acme", Location: "Berlin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Normalize(Raw{Title: "go dev", Company: "ACME", Location: " berlin "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.IdentityKey != b.IdentityKey {
		t.Fatalf("expected fallback keys to match, got %q and %q", a.IdentityKey, b.IdentityKey)
	}
	if a.IdentityKey[:4] != fallbackKeyPrefix+":" {
		t.Fatalf("expected fallback prefix, got %q", a.IdentityKey)
	}

	c, _ := Normalize(Raw{Title: "Go Dev", Company: "Acme", Location: "Paris"})
	if c.IdentityKey == a.IdentityKey {
		t.Fatalf("expected location to distinguish fallback keys")
	}
}

func TestNormalizeDrops(t *testing.T) {
	tests := []Raw{
		{Company: "Acme"},
		{Title: "Go Dev"},
		{Title: "  ", Company: " ", URL: "not a url"},
	}

	for _, raw := range tests {
		if _, err := Normalize(raw); !errors.Is(err, ErrNormalizationDropped) {
			t.Fatalf("expected ErrNormalizationDropped for %+v, got %v", raw, err)
		}
	}
}

func TestNormalizeBatchCountsDrops(t *testing.T) {
	raws := []Raw{
		{Title: "A", Company: "X", Source: "feed"},
		{Title: "B", Source: "feed"},
		{URL: "https://example.com/c", Source: "api"},
		{Description: "orphan", Source: "api"},
		{Title: "D", Company: "Y", Source: "feed"},
	}

	got, report := NormalizeBatch(raws)
	if len(got) != 3 {
		t.Fatalf("expected 3 postings, got %d", len(got))
	}
	if got[0].Title != "A" || got[1].URL != "https://example.com/c" || got[2].Title != "D" {
		t.Fatalf("expected source order to be preserved, got %+v", got)
	}

	want := DropReport{Total: 2, BySource: map[string]int{"feed": 1, "api": 1}}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("drop report mismatch (-want +got):\n%s", diff)
	}
}

func TestAddSourceKeepsSetSorted(t *testing.T) {
	var c Canonical
	for _, s := range []string{"wwr", "remoteok", "wwr", "", "hn"} {
		c.AddSource(s)
	}
	if diff := cmp.Diff([]string{"hn", "remoteok", "wwr"}, c.Sources); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}
	if !c.HasSource("remoteok") || c.HasSource("indeed") {
		t.Fatalf("unexpected HasSource results for %v", c.Sources)
	}
}
