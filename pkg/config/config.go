package config

// Package config provides a reusable loader for civicmesh configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"civicmesh/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a civicmesh node. It
// mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ID             string   `mapstructure:"id" json:"id"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Replication struct {
		Fanout           int `mapstructure:"fanout" json:"fanout"`
		RetryDeadlineSec int `mapstructure:"retry_deadline_sec" json:"retry_deadline_sec"`
	} `mapstructure:"replication" json:"replication"`

	VM struct {
		MaxValueBytes  int  `mapstructure:"max_value_bytes" json:"max_value_bytes"`
		MaxMemoryPages int  `mapstructure:"max_memory_pages" json:"max_memory_pages"`
		CallBudgetMS   int  `mapstructure:"call_budget_ms" json:"call_budget_ms"`
		OpcodeDebug    bool `mapstructure:"opcode_debug" json:"opcode_debug"`
	} `mapstructure:"vm" json:"vm"`

	Storage struct {
		DBPath    string `mapstructure:"db_path" json:"db_path"`
		QuotaMB   uint64 `mapstructure:"quota_mb" json:"quota_mb"`
		PruneDays int    `mapstructure:"prune_days" json:"prune_days"`
	} `mapstructure:"storage" json:"storage"`

	Identity struct {
		KeyDir string `mapstructure:"key_dir" json:"key_dir"`
	} `mapstructure:"identity" json:"identity"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CIVICMESH_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CIVICMESH_ENV", ""))
}
