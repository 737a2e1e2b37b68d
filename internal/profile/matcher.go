package profile

import (
	"slices"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"
)

// keywordSet is a case-folded Aho-Corasick dictionary.
type keywordSet struct {
	keywords []string
	matcher  *ahocorasick.Matcher
}

func fold(s string) string {
	// Casers keep state, so a fresh one is used per call.
	return cases.Fold().String(s)
}

func newKeywordSet(raw []string) keywordSet {
	seen := make(map[string]struct{}, len(raw))
	keywords := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = fold(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}

	set := keywordSet{keywords: keywords}
	if len(keywords) > 0 {
		set.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	return set
}

func (s keywordSet) empty() bool { return s.matcher == nil }

// hits returns the sorted dictionary indices found in any of the folded texts.
func (s keywordSet) hits(texts ...string) []int {
	if s.matcher == nil {
		return nil
	}

	var found []int
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, idx := range s.matcher.MatchThreadSafe([]byte(text)) {
			if !slices.Contains(found, idx) {
				found = append(found, idx)
			}
		}
	}
	slices.Sort(found)
	return found
}

// first returns the earliest configured keyword found in text.
func (s keywordSet) first(text string) (string, bool) {
	hits := s.hits(text)
	if len(hits) == 0 {
		return "", false
	}
	return s.keywords[hits[0]], true
}

// Matcher is compiled once per Profile and shared by all postings of a run.
// It is safe for concurrent use.
type Matcher struct {
	profile Profile

	titleExclusions       keywordSet
	descriptionExclusions keywordSet
	mustHave              keywordSet
	flags                 keywordSet

	weights keywordSet
	weight  []int
}

// NewMatcher compiles the keyword automata for p.
func NewMatcher(p Profile) *Matcher {
	m := &Matcher{
		profile:               p,
		titleExclusions:       newKeywordSet(p.ExcludeInTitle),
		descriptionExclusions: newKeywordSet(p.ExcludeInDescription),
		mustHave:              newKeywordSet(p.MustHave),
		flags:                 newKeywordSet(p.FlagForReview),
	}

	net := make(map[string]int, len(p.Positive)+len(p.Negative))
	for kw, w := range p.Positive {
		net[fold(strings.TrimSpace(kw))] += w
	}
	for kw, w := range p.Negative {
		if w < 0 {
			w = -w
		}
		net[fold(strings.TrimSpace(kw))] -= w
	}
	delete(net, "")

	keywords := make([]string, 0, len(net))
	for kw := range net {
		keywords = append(keywords, kw)
	}
	slices.Sort(keywords)

	m.weights = newKeywordSet(keywords)
	m.weight = make([]int, len(m.weights.keywords))
	for i, kw := range m.weights.keywords {
		m.weight[i] = net[kw]
	}

	return m
}

// Profile returns the profile the matcher was compiled from.
func (m *Matcher) Profile() Profile { return m.profile }

// TitleExclusion reports the first excluded keyword contained in title.
func (m *Matcher) TitleExclusion(title string) (string, bool) {
	return m.titleExclusions.first(fold(title))
}

// DescriptionExclusion reports the first excluded keyword contained in description.
func (m *Matcher) DescriptionExclusion(description string) (string, bool) {
	return m.descriptionExclusions.first(fold(description))
}

// RequiresMustHave is false when the profile has no must-have keywords.
func (m *Matcher) RequiresMustHave() bool { return !m.mustHave.empty() }

// HasMustHave reports whether any must-have keyword appears in title or description.
func (m *Matcher) HasMustHave(title, description string) bool {
	return len(m.mustHave.hits(fold(title), fold(description))) > 0
}

// Adjustment sums the weights of keywords found in title or description.
// Each keyword counts once no matter how often it occurs.
func (m *Matcher) Adjustment(title, description string) (int, []string) {
	hits := m.weights.hits(fold(title), fold(description))
	if len(hits) == 0 {
		return 0, nil
	}

	total := 0
	matched := make([]string, 0, len(hits))
	for _, idx := range hits {
		total += m.weight[idx]
		matched = append(matched, m.weights.keywords[idx])
	}
	return total, matched
}

// Flags lists flag-for-review keywords found in title or description.
func (m *Matcher) Flags(title, description string) []string {
	hits := m.flags.hits(fold(title), fold(description))
	if len(hits) == 0 {
		return nil
	}

	flags := make([]string, 0, len(hits))
	for _, idx := range hits {
		flags = append(flags, m.flags.keywords[idx])
	}
	return flags
}
