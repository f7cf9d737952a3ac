package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/devgraph/devgraph-go/internal/errs"
)

// Config holds all recognized ingestion options. The option table in
// the docs is the authoritative schema; unknown keys are rejected at
// load time with a configuration error.
type Config struct {
	RepoPath string `mapstructure:"repo_path" yaml:"repo_path"`

	GraphStoreURL      string `mapstructure:"graph_store_url" yaml:"graph_store_url"`
	GraphStoreUser     string `mapstructure:"graph_store_user" yaml:"graph_store_user"`
	GraphStorePassword string `mapstructure:"graph_store_password" yaml:"graph_store_password"`
	GraphStoreDatabase string `mapstructure:"graph_store_database" yaml:"graph_store_database"`

	ResetGraph          bool     `mapstructure:"reset_graph" yaml:"reset_graph"`
	CommitLimit         int      `mapstructure:"commit_limit" yaml:"commit_limit"`
	DeriveRelationships bool     `mapstructure:"derive_relationships" yaml:"derive_relationships"`
	Subpath             string   `mapstructure:"subpath" yaml:"subpath"`
	MaxWorkers          int      `mapstructure:"max_workers" yaml:"max_workers"`
	ExcludePatterns     []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	DryRun              bool     `mapstructure:"dry_run" yaml:"dry_run"`

	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// Optional shared tier for the windowed-query result cache.
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`

	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// knownKeys mirrors the recognized options table. Anything else in a
// config file is a configuration error, not a silent ignore.
var knownKeys = map[string]bool{
	"repo_path":            true,
	"graph_store_url":      true,
	"graph_store_user":     true,
	"graph_store_password": true,
	"graph_store_database": true,
	"reset_graph":          true,
	"commit_limit":         true,
	"derive_relationships": true,
	"subpath":              true,
	"max_workers":          true,
	"exclude_patterns":     true,
	"dry_run":              true,
	"batch_size":           true,
	"redis_addr":           true,
	"redis_password":       true,
	"listen_addr":          true,
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		GraphStoreURL:       "bolt://localhost:7687",
		GraphStoreUser:      "neo4j",
		GraphStoreDatabase:  "neo4j",
		CommitLimit:         1000,
		DeriveRelationships: true,
		MaxWorkers:          runtime.NumCPU(),
		BatchSize:           500,
		ListenAddr:          ":8070",
	}
}

// Load reads configuration from an optional YAML file, .env files, and
// DEVGRAPH_-prefixed environment variables, in ascending precedence.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("graph_store_url", cfg.GraphStoreURL)
	v.SetDefault("graph_store_user", cfg.GraphStoreUser)
	v.SetDefault("graph_store_database", cfg.GraphStoreDatabase)
	v.SetDefault("commit_limit", cfg.CommitLimit)
	v.SetDefault("derive_relationships", cfg.DeriveRelationships)
	v.SetDefault("max_workers", cfg.MaxWorkers)
	v.SetDefault("batch_size", cfg.BatchSize)
	v.SetDefault("listen_addr", cfg.ListenAddr)

	v.SetEnvPrefix("DEVGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("devgraph")
		v.AddConfigPath(".")
		v.AddConfigPath(".devgraph")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if path != "" || !os.IsNotExist(err) {
				return nil, errs.Wrap(err, errs.KindConfig, "failed to read config file")
			}
		}
	}

	for _, key := range v.AllKeys() {
		if !knownKeys[key] {
			return nil, errs.Newf(errs.KindConfig, "unknown configuration option %q", key)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.Wrap(err, errs.KindConfig, "failed to unmarshal config")
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("NEO4J_URI"); url != "" {
		cfg.GraphStoreURL = url
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.GraphStoreUser = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		cfg.GraphStorePassword = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.GraphStoreDatabase = db
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.RedisPassword = pass
	}
	if workers := os.Getenv("DEVGRAPH_MAX_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			cfg.MaxWorkers = n
		}
	}
}

// Validate checks the loaded configuration before the pipeline starts.
// Failures here surface immediately; the pipeline is never launched on
// an invalid configuration.
func (c *Config) Validate() error {
	if c.RepoPath == "" {
		return errs.New(errs.KindConfig, "repo_path is required")
	}
	info, err := os.Stat(c.RepoPath)
	if err != nil {
		return errs.Wrapf(err, errs.KindConfig, "repo_path %q is not accessible", c.RepoPath)
	}
	if !info.IsDir() {
		return errs.Newf(errs.KindConfig, "repo_path %q is not a directory", c.RepoPath)
	}
	if c.GraphStoreURL == "" {
		return errs.New(errs.KindConfig, "graph_store_url is required")
	}
	if c.CommitLimit <= 0 {
		return errs.Newf(errs.KindConfig, "commit_limit must be positive, got %d", c.CommitLimit)
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = runtime.NumCPU()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	for _, pattern := range c.ExcludePatterns {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return errs.Newf(errs.KindConfig, "invalid exclude pattern %q: %v", pattern, err)
		}
	}
	if c.Subpath != "" {
		sub := filepath.Join(c.RepoPath, filepath.FromSlash(c.Subpath))
		if _, err := os.Stat(sub); err != nil {
			return errs.Wrapf(err, errs.KindConfig, "subpath %q does not exist under repo_path", c.Subpath)
		}
	}
	return nil
}

// String renders the configuration for stage-start logging with the
// password elided.
func (c *Config) String() string {
	return fmt.Sprintf("repo=%s store=%s db=%s workers=%d batch=%d limit=%d",
		c.RepoPath, c.GraphStoreURL, c.GraphStoreDatabase, c.MaxWorkers, c.BatchSize, c.CommitLimit)
}
