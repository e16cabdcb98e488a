// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/anithp/buddi-chain/internal/ingest"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	Anchor    AnchorConfig    `mapstructure:"anchor"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
	APIKey      string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SchedulerConfig governs the fetch cadence read at process start. The
// mutable fields can be changed later via the control surface.
type SchedulerConfig struct {
	FetchIntervalHours  int           `mapstructure:"fetch_interval_hours"`
	MaxPerFetch         int           `mapstructure:"max_per_fetch"`
	MinFetchGap         time.Duration `mapstructure:"min_fetch_gap"`
	RecoveryDelay       time.Duration `mapstructure:"recovery_delay"`
	HistoryLimit        int           `mapstructure:"history_limit"`
	StopGracePeriod     time.Duration `mapstructure:"stop_grace_period"`
	CallTimeoutSeconds  int           `mapstructure:"call_timeout_seconds"`
	Autostart           bool          `mapstructure:"autostart"`
	DefaultUserID       string        `mapstructure:"default_user_id"`
	ArchiveRawResponses bool          `mapstructure:"archive_raw_responses"`
}

// SourceConfig selects and configures the conversation source.
type SourceConfig struct {
	Provider string      `mapstructure:"provider"`
	Buddi    BuddiConfig `mapstructure:"buddi"`
}

// BuddiConfig configures the live Buddi API client.
type BuddiConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
}

// AnchorConfig selects and configures the anchoring service.
type AnchorConfig struct {
	Provider  string          `mapstructure:"provider"`
	Aeternity AeternityConfig `mapstructure:"aeternity"`
}

// AeternityConfig configures the live ledger client.
type AeternityConfig struct {
	NodeURL          string `mapstructure:"node_url"`
	NetworkID        string `mapstructure:"network_id"`
	PrivateKey       string `mapstructure:"private_key"`
	RegistryContract string `mapstructure:"registry_contract"`
	NFTContract      string `mapstructure:"nft_contract"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	Provider string         `mapstructure:"provider"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig sets the sqlite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls the pgx connection pool.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ArchiveConfig selects the raw payload archive backend.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"gcs_bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PublisherConfig selects the ingestion-event publisher backend.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// DatasetConfig controls dataset export output.
type DatasetConfig struct {
	ExportDir string `mapstructure:"export_dir"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BUDDI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindSecretKeys(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_enabled", false)
	v.SetDefault("logging.development", true)

	v.SetDefault("scheduler.fetch_interval_hours", 2)
	v.SetDefault("scheduler.max_per_fetch", 50)
	v.SetDefault("scheduler.min_fetch_gap", "1h")
	v.SetDefault("scheduler.recovery_delay", "5m")
	v.SetDefault("scheduler.history_limit", 100)
	v.SetDefault("scheduler.stop_grace_period", "30s")
	v.SetDefault("scheduler.call_timeout_seconds", 30)
	v.SetDefault("scheduler.autostart", true)
	v.SetDefault("scheduler.default_user_id", "buddi_user")
	v.SetDefault("scheduler.archive_raw_responses", false)

	v.SetDefault("source.provider", "mock")
	v.SetDefault("source.buddi.base_url", "https://apis.getbuddi.ai/v1/dev")
	v.SetDefault("source.buddi.timeout_seconds", 15)
	v.SetDefault("source.buddi.requests_per_sec", 1)

	v.SetDefault("anchor.provider", "mock")
	v.SetDefault("anchor.aeternity.node_url", "https://testnet.aeternity.io")
	v.SetDefault("anchor.aeternity.network_id", "ae_uat")
	v.SetDefault("anchor.aeternity.timeout_seconds", 30)

	v.SetDefault("store.provider", "sqlite")
	v.SetDefault("store.sqlite.path", "buddi_chain.db")

	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.local_dir", "data/raw")
	v.SetDefault("archive.prefix", "raw")

	v.SetDefault("publisher.provider", "noop")

	v.SetDefault("dataset.export_dir", "data/processed")
}

// bindSecretKeys registers the keys that carry no default so AutomaticEnv
// still surfaces them to Unmarshal. Viper only maps environment variables
// for keys it already knows about.
func bindSecretKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.api_key",
		"source.buddi.api_key",
		"anchor.aeternity.private_key",
		"anchor.aeternity.registry_contract",
		"anchor.aeternity.nft_contract",
		"store.postgres.dsn",
		"store.postgres.max_conns",
		"store.postgres.min_conns",
		"archive.gcs_bucket",
		"publisher.project_id",
		"publisher.topic_id",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.AuthEnabled && c.Server.APIKey == "" {
		return fmt.Errorf("server.api_key must be set when auth is enabled")
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}
	switch c.Source.Provider {
	case "mock":
	case "buddi":
		if c.Source.Buddi.BaseURL == "" {
			return fmt.Errorf("source.buddi.base_url must be set for the buddi provider")
		}
	default:
		return fmt.Errorf("unknown source provider: %s", c.Source.Provider)
	}
	switch c.Anchor.Provider {
	case "mock":
	case "aeternity":
		if c.Anchor.Aeternity.NodeURL == "" {
			return fmt.Errorf("anchor.aeternity.node_url must be set for the aeternity provider")
		}
	default:
		return fmt.Errorf("unknown anchor provider: %s", c.Anchor.Provider)
	}
	switch c.Store.Provider {
	case "memory":
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must be set for the sqlite provider")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown store provider: %s", c.Store.Provider)
	}
	switch c.Archive.Provider {
	case "noop", "local":
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	switch c.Publisher.Provider {
	case "noop", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.TopicID == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic_id must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("unknown publisher provider: %s", c.Publisher.Provider)
	}
	return nil
}

// SchedulerConfig converts the loaded scheduler section into the runtime
// configuration consumed by the scheduler core.
func (c Config) SchedulerConfig() ingest.SchedulerConfig {
	return ingest.SchedulerConfig{
		FetchInterval:   time.Duration(c.Scheduler.FetchIntervalHours) * time.Hour,
		MaxPerFetch:     c.Scheduler.MaxPerFetch,
		MinFetchGap:     c.Scheduler.MinFetchGap,
		RecoveryDelay:   c.Scheduler.RecoveryDelay,
		HistoryLimit:    c.Scheduler.HistoryLimit,
		StopGracePeriod: c.Scheduler.StopGracePeriod,
		CallTimeout:     time.Duration(c.Scheduler.CallTimeoutSeconds) * time.Second,
	}
}

// SourceTimeout converts the source timeout into a duration helper.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.Buddi.TimeoutSeconds) * time.Second
}
