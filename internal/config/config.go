package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Watch      WatchConfig      `yaml:"watch" mapstructure:"watch"`
	Registries RegistriesConfig `yaml:"registries" mapstructure:"registries"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// WatchConfig configures the reconciliation run.
type WatchConfig struct {
	WatchlistPath       string `yaml:"watchlist_path" mapstructure:"watchlist_path"`
	UserAgent           string `yaml:"user_agent" mapstructure:"user_agent"`
	ActivityWindowHours int    `yaml:"activity_window_hours" mapstructure:"activity_window_hours"`
	ActivityLimit       int    `yaml:"activity_limit" mapstructure:"activity_limit"`
}

// RegistriesConfig configures the upstream registry endpoints.
type RegistriesConfig struct {
	CTGov  CTGovConfig  `yaml:"ctgov" mapstructure:"ctgov"`
	ISRCTN ISRCTNConfig `yaml:"isrctn" mapstructure:"isrctn"`
}

// CTGovConfig configures the ClinicalTrials.gov v2 API source.
type CTGovConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
}

// ISRCTNConfig configures the ISRCTN registry source.
type ISRCTNConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
}

// NotifyConfig configures digest delivery.
type NotifyConfig struct {
	Provider string   `yaml:"provider" mapstructure:"provider"`
	APIKey   string   `yaml:"api_key" mapstructure:"api_key"`
	From     string   `yaml:"from" mapstructure:"from"`
	To       []string `yaml:"to" mapstructure:"to"`
	Subject  string   `yaml:"subject" mapstructure:"subject"`
	BaseURL  string   `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the read-only status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "trialwatch.db")
	v.SetDefault("watch.user_agent", "trialwatch-cli/1.0")
	v.SetDefault("watch.activity_window_hours", 720)
	v.SetDefault("watch.activity_limit", 50)
	v.SetDefault("registries.ctgov.base_url", "https://clinicaltrials.gov/api/v2/studies")
	v.SetDefault("registries.ctgov.page_size", 100)
	v.SetDefault("registries.ctgov.enabled", true)
	v.SetDefault("registries.isrctn.base_url", "https://www.isrctn.com/api/query/format/default")
	v.SetDefault("registries.isrctn.page_size", 100)
	v.SetDefault("registries.isrctn.enabled", false)
	v.SetDefault("notify.provider", "log")
	v.SetDefault("notify.from", "clinical-trials@yourdomain.com")
	v.SetDefault("notify.subject", "Clinical Trials Update")
	v.SetDefault("notify.base_url", "https://api.resend.com")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
