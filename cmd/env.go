package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/logger"
	"github.com/spigell/job-sift/internal/metrics"
)

// environment is what every command needs before doing real work.
type environment struct {
	logger  *zap.Logger
	config  *Config
	metrics *metrics.Metrics
}

func setup() *environment {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the job-sift", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config.redacted(), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return &environment{
		logger:  logger,
		config:  config,
		metrics: metrics.New(),
	}
}

// flushMetrics writes the textfile if one is configured. Failures are only logged.
func (e *environment) flushMetrics() {
	if e.config.Metrics == nil || e.config.Metrics.Textfile == "" {
		return
	}

	if err := e.metrics.WriteTextfile(e.config.Metrics.Textfile); err != nil {
		e.logger.Warn("writing metrics textfile", zap.Error(err), zap.String("filename", e.config.Metrics.Textfile))
		return
	}
	e.logger.Debug("metrics written", zap.String("filename", e.config.Metrics.Textfile))
}
