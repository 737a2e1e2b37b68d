// Package jsonapi adapts JSON job board APIs, either a bare array of postings
// (RemoteOK style) or paginated objects carrying an items list.
package jsonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/source"
	"go.uber.org/zap"
)

const (
	Type = "json"

	idPlaceholder  = "{id}"
	defaultWorkers = 2
)

// Fields maps posting attributes to keys of an API item.
type Fields struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Company     string `mapstructure:"company"`
	Location    string `mapstructure:"location"`
	URL         string `mapstructure:"url"`
	Description string `mapstructure:"description"`
}

func (f Fields) withDefaults() Fields {
	set := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	set(&f.ID, "id")
	set(&f.Title, "title")
	set(&f.Company, "company")
	set(&f.Location, "location")
	set(&f.URL, "url")
	set(&f.Description, "description")
	return f
}

// Config holds the JSON API specific options of a source entry.
type Config struct {
	URL string `mapstructure:"url"`
	// ItemsKey names the list inside each page. Empty means the body is the list.
	ItemsKey string `mapstructure:"items-key"`
	// PageParam enables pagination; pages are requested until one comes back empty.
	PageParam string `mapstructure:"page-param"`
	FirstPage int    `mapstructure:"first-page"`
	MaxPages  int    `mapstructure:"max-pages"`

	Query         map[string]string `mapstructure:"query"`
	KeywordParam  string            `mapstructure:"keyword-param"`
	LocationParam string            `mapstructure:"location-param"`

	Fields Fields `mapstructure:"fields"`

	// DetailURL is requested for items without a description, with {id} substituted.
	DetailURL   string `mapstructure:"detail-url"`
	DetailField string `mapstructure:"detail-field"`
	Workers     int    `mapstructure:"workers"`

	UserAgent string `mapstructure:"user-agent"`
}

type item struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Company     string `mapstructure:"company"`
	Location    string `mapstructure:"location"`
	URL         string `mapstructure:"url"`
	Description string `mapstructure:"description"`
}

func (i item) empty() bool {
	return i.Title == "" && i.Company == "" && i.URL == ""
}

// Source reads postings from a JSON API.
type Source struct {
	name   string
	delay  time.Duration
	cfg    Config
	client *source.Client
	logger *zap.Logger
	now    func() time.Time
}

// New returns a JSON API source.
func New(name string, delay time.Duration, cfg Config, client *source.Client, logger *zap.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("api url is required")
	}
	if cfg.DetailURL != "" && !strings.Contains(cfg.DetailURL, idPlaceholder) {
		return nil, fmt.Errorf("detail-url must contain %s", idPlaceholder)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DetailField == "" {
		cfg.DetailField = "description"
	}
	cfg.Fields = cfg.Fields.withDefaults()

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

// Factory builds a JSON API source from a registry spec.
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

// Fetch walks the configured pages, then fills missing descriptions from the
// detail endpoint on a small worker pool sharing the source pacer.
func (s *Source) Fetch(ctx context.Context, criteria source.Criteria, pacer source.Pacer) ([]posting.Raw, error) {
	q := s.buildParams(criteria)

	var items []item
	pages := 1
	if s.cfg.PageParam != "" {
		pages = s.cfg.MaxPages
	}

	for page := 0; page < pages; page++ {
		if s.cfg.PageParam != "" {
			q.Set(s.cfg.PageParam, strconv.Itoa(s.cfg.FirstPage+page))
		}

		body, err := s.client.Get(ctx, pacer, s.cfg.URL, q)
		if err != nil {
			return nil, err
		}

		batch, err := s.decodePage(body)
		if err != nil {
			return nil, err
		}

		s.logger.Debug("got page", zap.String("source", s.name), zap.Int("page", page), zap.Int("items", len(batch)))

		if len(batch) == 0 {
			break
		}
		items = append(items, batch...)

		if criteria.MaxResults > 0 && len(items) >= criteria.MaxResults {
			items = items[:criteria.MaxResults]
			break
		}
	}

	if err := s.fillDescriptions(ctx, pacer, items); err != nil {
		return nil, err
	}

	scrapedAt := s.now().UTC()
	postings := make([]posting.Raw, 0, len(items))
	for _, it := range items {
		postings = append(postings, posting.Raw{
			Title:       it.Title,
			Company:     it.Company,
			Location:    it.Location,
			URL:         it.URL,
			Description: source.PlainText(it.Description),
			Source:      s.name,
			ScrapedAt:   scrapedAt,
		})
	}

	return postings, nil
}

func (s *Source) buildParams(criteria source.Criteria) url.Values {
	q := url.Values{}
	for key, value := range s.cfg.Query {
		q.Set(key, value)
	}
	if s.cfg.KeywordParam != "" && len(criteria.Keywords) > 0 {
		q.Set(s.cfg.KeywordParam, strings.Join(criteria.Keywords, " "))
	}
	if s.cfg.LocationParam != "" && criteria.Location != "" {
		q.Set(s.cfg.LocationParam, criteria.Location)
	}
	return q
}

func (s *Source) decodePage(body []byte) ([]item, error) {
	var raw []map[string]any

	if s.cfg.ItemsKey == "" {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, source.Permanentf(s.name, "decode items: %w", err)
		}
	} else {
		var page map[string]json.RawMessage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, source.Permanentf(s.name, "decode page: %w", err)
		}
		list, ok := page[s.cfg.ItemsKey]
		if !ok {
			return nil, source.Permanentf(s.name, "page has no %q key", s.cfg.ItemsKey)
		}
		if err := json.Unmarshal(list, &raw); err != nil {
			return nil, source.Permanentf(s.name, "decode %q: %w", s.cfg.ItemsKey, err)
		}
	}

	items := make([]item, 0, len(raw))
	for _, entry := range raw {
		it, err := s.decodeItem(entry)
		if err != nil {
			return nil, source.Permanentf(s.name, "decode item: %w", err)
		}
		// Boards like RemoteOK prepend a notice entry with none of the mapped fields.
		if it.empty() {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Source) decodeItem(entry map[string]any) (item, error) {
	f := s.cfg.Fields
	mapped := map[string]any{
		"id":          entry[f.ID],
		"title":       entry[f.Title],
		"company":     entry[f.Company],
		"location":    entry[f.Location],
		"url":         entry[f.URL],
		"description": entry[f.Description],
	}

	var it item
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &it,
	})
	if err != nil {
		return item{}, err
	}
	if err := decoder.Decode(mapped); err != nil {
		return item{}, err
	}
	return it, nil
}

func (s *Source) fillDescriptions(ctx context.Context, pacer source.Pacer, items []item) error {
	if s.cfg.DetailURL == "" {
		return nil
	}

	var missing []int
	for i := range items {
		if strings.TrimSpace(items[i].Description) == "" && items[i].ID != "" {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	// Each worker writes only its own index, so no locking is needed.
	return source.ForEach(ctx, s.cfg.Workers, len(missing), func(ctx context.Context, n int) error {
		it := &items[missing[n]]
		detailURL := strings.ReplaceAll(s.cfg.DetailURL, idPlaceholder, url.PathEscape(it.ID))

		body, err := s.client.Get(ctx, pacer, detailURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.logger.Warn("skipping description",
				zap.String("source", s.name),
				zap.String("id", it.ID),
				zap.Error(err),
			)
			return nil
		}

		var detail map[string]any
		if err := json.Unmarshal(body, &detail); err != nil {
			s.logger.Warn("malformed detail payload", zap.String("source", s.name), zap.String("id", it.ID), zap.Error(err))
			return nil
		}
		if text, ok := detail[s.cfg.DetailField].(string); ok {
			it.Description = text
		}
		return nil
	})
}
