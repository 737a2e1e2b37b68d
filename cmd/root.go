package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/job-sift/internal/fetch"
	"github.com/spigell/job-sift/internal/profile"
	"github.com/spigell/job-sift/internal/retry"
	"github.com/spigell/job-sift/internal/scorecache"
	"github.com/spigell/job-sift/internal/source"
)

const (
	app = "job-sift"

	defaultStorePath  = "job-sift-store.json"
	defaultReportPath = "job-sift-report.json"
)

type Config struct {
	StorePath   string           `mapstructure:"store"`
	ReportPath  string           `mapstructure:"report"`
	UserAgent   string           `mapstructure:"user-agent"`
	ProfileFile string           `mapstructure:"profile-file"`
	Profile     *profile.Profile `mapstructure:"profile"`
	Criteria    source.Criteria  `mapstructure:"criteria"`
	Fetch       fetch.Config     `mapstructure:"fetch"`
	Sources     []source.Spec    `mapstructure:"sources"`
	AI          *AIConfig        `mapstructure:"ai"`
	Cache       *CacheConfig     `mapstructure:"cache"`
	Metrics     *MetricsConfig   `mapstructure:"metrics"`
	Watch       *WatchConfig     `mapstructure:"watch"`
}

type AIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Provider     string        `mapstructure:"provider"`
	Workers      int           `mapstructure:"workers"`
	MaxLogLength int           `mapstructure:"max-log-length"`
	Retry        *retry.Policy `mapstructure:"retry"`
	Gemini       *GeminiConfig `mapstructure:"gemini"`
	Claude       *ClaudeConfig `mapstructure:"claude"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

type ClaudeConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max-tokens"`
}

type CacheConfig struct {
	// Backend is memory or redis. Empty disables the cache. A memory cache
	// lives as long as the process, so it only pays off under watch.
	Backend      string                 `mapstructure:"backend"`
	Redis        scorecache.RedisConfig `mapstructure:"redis"`
	PasswordFile string                 `mapstructure:"password-file"`
}

type MetricsConfig struct {
	// Textfile is written after every command for the node_exporter textfile collector.
	Textfile string `mapstructure:"textfile"`
}

type WatchConfig struct {
	Schedule string `mapstructure:"schedule"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "job-sift collects job postings from many boards, deduplicates them and scores them against your profile",
	}
)

// Execute executes the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	envs := map[string]string{
		"ai.gemini.api-key-file": "JOBSIFT_GEMINI_API_KEY_FILE",
		"ai.claude.api-key-file": "JOBSIFT_ANTHROPIC_API_KEY_FILE",
		"cache.redis.password":   "JOBSIFT_REDIS_PASSWORD",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is job-sift.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// version does not need a config
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit --config a missing file means defaults.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}

	if config.StorePath == "" {
		config.StorePath = defaultStorePath
	}
	if config.ReportPath == "" {
		config.ReportPath = defaultReportPath
	}

	return config, nil
}

const redactedValue = "<redacted>"

// redacted returns a copy safe to log: inline secrets are masked.
func (c *Config) redacted() *Config {
	out := *c

	if c.AI != nil {
		ai := *c.AI
		if ai.Gemini != nil {
			gemini := *ai.Gemini
			gemini.APIKey = redact(gemini.APIKey)
			ai.Gemini = &gemini
		}
		if ai.Claude != nil {
			claude := *ai.Claude
			claude.APIKey = redact(claude.APIKey)
			ai.Claude = &claude
		}
		out.AI = &ai
	}

	if c.Cache != nil {
		cache := *c.Cache
		cache.Redis.Password = redact(cache.Redis.Password)
		out.Cache = &cache
	}

	return &out
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redactedValue
}

// resolveProfile prefers profile-file, then the inline profile, then the built-in default.
func resolveProfile(config *Config) (profile.Profile, error) {
	if config.ProfileFile != "" {
		p, err := profile.LoadFile(config.ProfileFile)
		if err != nil {
			return profile.Profile{}, err
		}
		return p, p.Validate()
	}

	if config.Profile != nil {
		p := *config.Profile
		if p.MinScore == 0 {
			p.MinScore = profile.DefaultMinScore
		}
		return p, p.Validate()
	}

	return profile.Default(), nil
}
