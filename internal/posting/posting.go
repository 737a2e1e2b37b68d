// Package posting holds the job posting records shared by every stage of the
// pipeline and the normalizer that turns source output into canonical form.
package posting

import (
	"slices"
	"time"
)

// Raw is a posting as reported by a single source at scrape time.
// Nothing about it is guaranteed to be unique or stable.
type Raw struct {
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Canonical is the normalized, deduplicated form of a posting as kept by the store.
type Canonical struct {
	IdentityKey string `json:"identity_key"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	// URL is the original link, kept for display. Identity uses its normalized form.
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Sources     []string  `json:"sources"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// HasSource reports whether name is among the sources that reported the posting.
func (c *Canonical) HasSource(name string) bool {
	_, found := slices.BinarySearch(c.Sources, name)
	return found
}

// AddSource inserts name keeping Sources sorted. It returns false when the
// source was already recorded.
func (c *Canonical) AddSource(name string) bool {
	if name == "" {
		return false
	}
	idx, found := slices.BinarySearch(c.Sources, name)
	if found {
		return false
	}
	c.Sources = slices.Insert(c.Sources, idx, name)
	return true
}

// Clone returns a deep copy.
func (c Canonical) Clone() Canonical {
	c.Sources = slices.Clone(c.Sources)
	return c
}
