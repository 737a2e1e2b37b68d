package posting

import (
	"strings"

	"github.com/spigell/job-sift/internal/utils"
)

// DropReport counts postings that could not be normalized.
type DropReport struct {
	Total    int
	BySource map[string]int
}

func (r *DropReport) add(source string) {
	if r.BySource == nil {
		r.BySource = make(map[string]int)
	}
	r.Total++
	r.BySource[source]++
}

// Normalize converts a raw posting into canonical form and computes its identity key.
// FirstSeen and LastSeen are left for the store to assign.
func Normalize(raw Raw) (Canonical, error) {
	c := Canonical{
		Title:       utils.CollapseSpace(raw.Title),
		Company:     strings.TrimSpace(raw.Company),
		Location:    strings.TrimSpace(raw.Location),
		URL:         strings.TrimSpace(raw.URL),
		Description: utils.CollapseSpace(raw.Description),
	}
	if !raw.ScrapedAt.IsZero() {
		c.ScrapedAt = raw.ScrapedAt.UTC()
	}
	c.AddSource(strings.TrimSpace(raw.Source))

	key, err := IdentityKey(c)
	if err != nil {
		return Canonical{}, err
	}
	c.IdentityKey = key

	return c, nil
}

// NormalizeBatch normalizes raws in order. Postings without identity are
// skipped and counted; they never fail the batch.
func NormalizeBatch(raws []Raw) ([]Canonical, DropReport) {
	var report DropReport
	out := make([]Canonical, 0, len(raws))

	for _, raw := range raws {
		c, err := Normalize(raw)
		if err != nil {
			report.add(strings.TrimSpace(raw.Source))
			continue
		}
		out = append(out, c)
	}

	return out, report
}
