// Package profile describes the candidate criteria a run scores postings against.
package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	MinScoreFloor   = 1
	MinScoreCeiling = 10
	DefaultMinScore = 7
)

// Profile is immutable for the duration of a run and is passed by value to every stage.
type Profile struct {
	// Summary is the candidate background the scorer judges fit against, usually a CV excerpt.
	Summary              string   `mapstructure:"summary" yaml:"summary,omitempty" json:"summary"`
	ExcludeInTitle       []string `mapstructure:"exclude-in-title" yaml:"exclude-in-title,omitempty" json:"exclude_in_title"`
	ExcludeInDescription []string `mapstructure:"exclude-in-description" yaml:"exclude-in-description,omitempty" json:"exclude_in_description"`
	MustHave             []string `mapstructure:"must-have" yaml:"must-have,omitempty" json:"must_have"`
	// Positive weights are added to the AI score when the keyword appears.
	Positive map[string]int `mapstructure:"positive" yaml:"positive,omitempty" json:"positive"`
	// Negative weights are subtracted. The sign given in config is ignored.
	Negative      map[string]int `mapstructure:"negative" yaml:"negative,omitempty" json:"negative"`
	FlagForReview []string       `mapstructure:"flag-for-review" yaml:"flag-for-review,omitempty" json:"flag_for_review"`
	MinScore      int            `mapstructure:"min-score" yaml:"min-score" json:"min_score"`
}

// Default returns the profile used when none is configured.
func Default() Profile {
	return Profile{
		ExcludeInTitle: []string{
			"junior", "intern", "graduate", "entry level", "trainee", "apprentice",
			"chef", "nurse", "teacher", "accountant", "sales", "marketing", "recruitment",
		},
		ExcludeInDescription: []string{"cscs card", "construction", "manufacturing"},
		MinScore:             DefaultMinScore,
	}
}

// Validate checks the threshold range.
func (p Profile) Validate() error {
	if p.MinScore < MinScoreFloor || p.MinScore > MinScoreCeiling {
		return fmt.Errorf("min-score must be within [%d, %d], got %d", MinScoreFloor, MinScoreCeiling, p.MinScore)
	}
	return nil
}

// Fingerprint identifies the profile contents. Two profiles with the same
// fingerprint produce the same quick-filter outcomes and adjustments.
func (p Profile) Fingerprint() string {
	// map keys are marshalled in sorted order, so the encoding is stable.
	data, err := json.Marshal(p.canonical())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12])
}

// canonical drops the distinction between nil and empty collections.
func (p Profile) canonical() Profile {
	lists := []*[]string{&p.ExcludeInTitle, &p.ExcludeInDescription, &p.MustHave, &p.FlagForReview}
	for _, list := range lists {
		if len(*list) == 0 {
			*list = nil
		}
	}
	if len(p.Positive) == 0 {
		p.Positive = nil
	}
	if len(p.Negative) == 0 {
		p.Negative = nil
	}
	return p
}

// LoadFile reads a YAML profile. Fields absent from the file keep their zero value,
// except MinScore which falls back to DefaultMinScore.
func LoadFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile %q: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %q: %w", path, err)
	}
	if p.MinScore == 0 {
		p.MinScore = DefaultMinScore
	}

	return p, nil
}

// SaveFile writes p as YAML.
func SaveFile(path string, p Profile) error {
	if path == "" {
		return errors.New("profile path is required")
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile %q: %w", path, err)
	}
	return nil
}
