package config

import (
	"fmt"
	"time"

	"github.com/rpattn/carbonsync/internal/db"
	"github.com/spf13/viper"
)

// SyncConfig tunes the ingestion framework.
type SyncConfig struct {
	MaxRetries   int
	FetchTimeout time.Duration
	BackoffBase  time.Duration
	ListenAddr   string
}

// DefaultSyncConfig returns the production defaults. The fetch timeout is
// minutes-scale because some sources serve gigabyte archives.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxRetries:   3,
		FetchTimeout: 5 * time.Minute,
		BackoffBase:  time.Second,
		ListenAddr:   ":8080",
	}
}

// Load reads config.yaml from configPath with environment overrides.
func Load(configPath string) (db.Config, SyncConfig, error) {
	// Start with defaults
	dbCfg := db.DefaultConfig()
	syncCfg := DefaultSyncConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()         // allow environment overrides
	v.SetEnvPrefix("CARBON") // map env vars like CARBON_DATABASE_HOST

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("sync.max_retries")
	v.BindEnv("sync.fetch_timeout")
	v.BindEnv("sync.backoff_base")
	v.BindEnv("sync.listen_addr")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	}

	if v.IsSet("database.host") {
		dbCfg.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		dbCfg.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		dbCfg.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		dbCfg.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		dbCfg.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		dbCfg.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("sync.max_retries") {
		syncCfg.MaxRetries = v.GetInt("sync.max_retries")
	}
	if v.IsSet("sync.fetch_timeout") {
		syncCfg.FetchTimeout = v.GetDuration("sync.fetch_timeout")
	}
	if v.IsSet("sync.backoff_base") {
		syncCfg.BackoffBase = v.GetDuration("sync.backoff_base")
	}
	if v.IsSet("sync.listen_addr") {
		syncCfg.ListenAddr = v.GetString("sync.listen_addr")
	}

	return dbCfg, syncCfg, nil
}
