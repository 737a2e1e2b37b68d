package profile

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMatcherExclusions(t *testing.T) {
	m := NewMatcher(Profile{
		ExcludeInTitle:       []string{"Intern", "entry level", "intern"},
		ExcludeInDescription: []string{"CSCS card"},
		MinScore:             6,
	})

	tests := []struct {
		name  string
		check func() (string, bool)
		want  string
		found bool
	}{
		{
			name:  "case-insensitive title hit",
			check: func() (string, bool) { return m.TitleExclusion("INTERNSHIP: Go") },
			want:  "intern",
			found: true,
		},
		{
			name:  "phrase in title",
			check: func() (string, bool) { return m.TitleExclusion("Entry Level Developer") },
			want:  "entry level",
			found: true,
		},
		{
			name:  "clean title",
			check: func() (string, bool) { return m.TitleExclusion("Staff Engineer") },
		},
		{
			name:  "description hit",
			check: func() (string, bool) { return m.DescriptionExclusion("a valid cscs card is required") },
			want:  "cscs card",
			found: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := tt.check()
			if found != tt.found || got != tt.want {
				t.Fatalf("expected (%q, %v), got (%q, %v)", tt.want, tt.found, got, found)
			}
		})
	}
}

func TestMatcherMustHave(t *testing.T) {
	empty := NewMatcher(Profile{})
	if empty.RequiresMustHave() {
		t.Fatalf("expected no must-have requirement for empty profile")
	}

	m := NewMatcher(Profile{MustHave: []string{"lead", "principal"}})
	if !m.RequiresMustHave() {
		t.Fatalf("expected must-have requirement")
	}
	if !m.HasMustHave("Engineering Lead", "") {
		t.Fatalf("expected must-have in title")
	}
	if !m.HasMustHave("Engineer", "You will be the principal owner") {
		t.Fatalf("expected must-have in description")
	}
	if m.HasMustHave("Engineer", "backend services") {
		t.Fatalf("expected no must-have hit")
	}
}

func TestMatcherAdjustment(t *testing.T) {
	m := NewMatcher(Profile{
		Positive: map[string]int{"agile": 5, "Go": 2},
		Negative: map[string]int{"hardware": 5, "php": -3},
	})

	tests := []struct {
		name        string
		title       string
		description string
		want        int
		matched     []string
	}{
		{
			name:        "positive and negative cancel",
			title:       "Engineering Lead",
			description: "agile team, no hardware",
			want:        0,
			matched:     []string{"agile", "hardware"},
		},
		{
			name:        "repeated keyword counts once",
			title:       "Agile coach",
			description: "agile agile AGILE",
			want:        5,
			matched:     []string{"agile"},
		},
		{
			name:    "negative sign in config is ignored",
			title:   "PHP developer",
			want:    -3,
			matched: []string{"php"},
		},
		{
			name:    "substring match",
			title:   "Golang engineer",
			want:    2,
			matched: []string{"go"},
		},
		{
			name:  "no hits",
			title: "Rust engineer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := m.Adjustment(tt.title, tt.description)
			if got != tt.want {
				t.Fatalf("expected adjustment %d, got %d", tt.want, got)
			}
			if diff := cmp.Diff(tt.matched, matched); diff != "" {
				t.Fatalf("matched keywords mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatcherFlags(t *testing.T) {
	m := NewMatcher(Profile{FlagForReview: []string{"security clearance", "relocation"}})

	got := m.Flags("Platform Engineer", "Relocation package offered. Security clearance needed.")
	if diff := cmp.Diff([]string{"security clearance", "relocation"}, got); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}
}

func TestMatcherConcurrentUse(t *testing.T) {
	m := NewMatcher(Profile{Positive: map[string]int{"kubernetes": 1, "go": 1}})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if adj, _ := m.Adjustment("Go developer", "kubernetes and go"); adj != 2 {
					t.Errorf("expected adjustment 2, got %d", adj)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestProfileFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	want := Profile{
		ExcludeInTitle: []string{"intern"},
		MustHave:       []string{"lead"},
		Positive:       map[string]int{"agile": 5},
		Negative:       map[string]int{"hardware": 5},
		MinScore:       6,
	}

	if err := SaveFile(path, want); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
	if got.Fingerprint() != want.Fingerprint() {
		t.Fatalf("expected equal fingerprints after round trip")
	}
}

func TestProfileValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default profile to be valid: %v", err)
	}
	if err := (Profile{MinScore: 11}).Validate(); err == nil {
		t.Fatalf("expected error for min-score above ceiling")
	}
	if err := (Profile{}).Validate(); err == nil {
		t.Fatalf("expected error for zero min-score")
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := Profile{MinScore: 6, Positive: map[string]int{"go": 1}}
	b := Profile{MinScore: 6, Positive: map[string]int{"go": 2}}
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("expected fingerprints to differ")
	}
}
