// Package feed adapts RSS and Atom job feeds, such as the WeWorkRemotely
// category feeds, to the source contract.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/source"
	"go.uber.org/zap"
)

const Type = "feed"

// Config holds the feed specific options of a source entry.
type Config struct {
	URL string `mapstructure:"url"`
	// CompanyInTitle splits titles of the form "Company: Job title".
	CompanyInTitle bool `mapstructure:"company-in-title"`
	// Location is used when an item carries no region of its own.
	Location  string `mapstructure:"location"`
	UserAgent string `mapstructure:"user-agent"`
}

// Source reads postings from one feed url.
type Source struct {
	name   string
	delay  time.Duration
	cfg    Config
	client *source.Client
	logger *zap.Logger
	now    func() time.Time
}

// New returns a feed source.
func New(name string, delay time.Duration, cfg Config, client *source.Client, logger *zap.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("feed url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}

	return &Source{
		name:   name,
		delay:  delay,
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Factory builds a feed source from a registry spec.
func Factory(spec source.Spec, deps source.Deps) (source.Source, error) {
	var cfg Config
	if err := source.DecodeOptions(spec.Options, &cfg); err != nil {
		return nil, err
	}
	client := deps.Client(spec.Name)
	return New(spec.Name, spec.Delay, cfg, client, deps.Logger)
}

func (s *Source) Name() string { return s.name }

func (s *Source) Delay() time.Duration { return s.delay }

// Fetch downloads the feed once. Criteria keywords, when present, keep only
// items mentioning one of them in title or description.
func (s *Source) Fetch(ctx context.Context, criteria source.Criteria, pacer source.Pacer) ([]posting.Raw, error) {
	body, err := s.client.Get(ctx, pacer, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, source.Permanentf(s.name, "parse feed: %w", err)
	}

	scrapedAt := s.now().UTC()
	postings := make([]posting.Raw, 0, len(feed.Items))
	for _, item := range feed.Items {
		raw := s.toRaw(item, scrapedAt)
		if !mentions(raw, criteria.Keywords) {
			continue
		}
		postings = append(postings, raw)
		if criteria.MaxResults > 0 && len(postings) >= criteria.MaxResults {
			break
		}
	}

	s.logger.Debug("parsed feed",
		zap.String("source", s.name),
		zap.Int("items", len(feed.Items)),
		zap.Int("kept", len(postings)),
	)

	return postings, nil
}

func (s *Source) toRaw(item *gofeed.Item, scrapedAt time.Time) posting.Raw {
	title := strings.TrimSpace(item.Title)
	company := ""
	if s.cfg.CompanyInTitle {
		if before, after, ok := strings.Cut(title, ":"); ok {
			company = strings.TrimSpace(before)
			title = strings.TrimSpace(after)
		}
	}
	if company == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
		company = item.Authors[0].Name
	}

	location := s.cfg.Location
	if region := strings.TrimSpace(item.Custom["region"]); region != "" {
		location = region
	}

	description := item.Description
	if strings.TrimSpace(item.Content) != "" {
		description = item.Content
	}

	return posting.Raw{
		Title:       title,
		Company:     company,
		Location:    location,
		URL:         strings.TrimSpace(item.Link),
		Description: source.PlainText(description),
		Source:      s.name,
		ScrapedAt:   scrapedAt,
	}
}

func mentions(raw posting.Raw, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text := strings.ToLower(raw.Title + "\n" + raw.Description)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
