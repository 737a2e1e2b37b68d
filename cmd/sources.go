package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/source"
	"github.com/spigell/job-sift/internal/source/feed"
	"github.com/spigell/job-sift/internal/source/jsonapi"
)

var factories = map[string]source.Factory{
	feed.Type:    feed.Factory,
	jsonapi.Type: jsonapi.Factory,
}

// buildSources constructs every enabled source and returns the selected ones.
// An empty selection means all of them.
func buildSources(config *Config, logger *zap.Logger, selected []string) ([]source.Source, error) {
	if len(config.Sources) == 0 {
		return nil, errors.New("no sources configured")
	}

	registry, err := source.Build(config.Sources, factories, source.Deps{
		HTTP:      http.DefaultClient,
		Logger:    logger,
		UserAgent: config.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("building sources: %w", err)
	}

	return registry.Select(selected...)
}
