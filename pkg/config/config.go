// Package config loads baassist settings. Values are layered, later layers
// winning: built-in defaults, an optional TOML file, .env files, then the
// process environment. Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/papercomputeco/baassist/pkg/analyzer"
	"github.com/papercomputeco/baassist/pkg/ollama"
)

// Environment variables read by Load.
const (
	EnvPort        = "PORT"
	EnvHost        = "BA_HOST"
	EnvLLMEndpoint = "BA_LLM_ENDPOINT"
	EnvLLMModel    = "BA_LLM_MODEL"
	EnvLanguage    = "BA_LANGUAGE"
	EnvPromptsFile = "BA_PROMPTS_FILE"
	EnvSQLite      = "BA_SQLITE"
	EnvStaticDir   = "BA_STATIC_DIR"
)

type Config struct {
	Server   ServerConfig    `toml:"server"`
	LLM      ollama.Config   `toml:"llm"`
	Prompts  PromptsConfig   `toml:"prompts"`
	Analyzer analyzer.Config `toml:"analyzer"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// DBPath enables SQLite transcript storage. Empty keeps transcripts in
	// memory.
	DBPath string `toml:"db_path"`

	// StaticDir is served at / when set.
	StaticDir string `toml:"static_dir"`

	KeepAlive time.Duration `toml:"keep_alive"`

	// ComicURL is a format string taking the comic number.
	ComicURL string `toml:"comic_url"`

	// ProgressEvery is the commit-progress interval for repository stats.
	ProgressEvery int `toml:"progress_every"`
}

// ListenAddr joins Host and Port.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type PromptsConfig struct {
	// File is the TOML prompt library. Empty keeps prompts in memory.
	File string `toml:"file"`

	// Watch reloads File when it changes on disk.
	Watch bool `toml:"watch"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:          8080,
			KeepAlive:     30 * time.Second,
			ComicURL:      "https://xkcd.com/%d/info.0.json",
			ProgressEvery: 500,
		},
		LLM:      ollama.DefaultConfig(),
		Prompts:  PromptsConfig{Watch: true},
		Analyzer: analyzer.DefaultConfig(),
	}
}

// Load builds the configuration. path names a TOML file and may be empty;
// a named file that does not exist is an error. envFiles that do not exist
// are skipped, and variables already set in the environment are not
// overridden by them.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		cfg.Server.Port = port
	}

	vars := map[string]*string{
		EnvHost:        &cfg.Server.Host,
		EnvLLMEndpoint: &cfg.LLM.Endpoint,
		EnvLLMModel:    &cfg.LLM.Model,
		EnvPromptsFile: &cfg.Prompts.File,
		EnvSQLite:      &cfg.Server.DBPath,
		EnvStaticDir:   &cfg.Server.StaticDir,
	}
	for key, dst := range vars {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup(EnvLanguage); ok && v != "" {
		cfg.LLM.Language = v
		cfg.Analyzer.Language = v
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.LLM.Endpoint == "" {
		return errors.New("llm endpoint is required")
	}
	if c.LLM.Model == "" {
		return errors.New("llm model is required")
	}
	if c.LLM.RetryAttempts < 1 {
		return fmt.Errorf("llm retry_attempts must be at least 1, got %d", c.LLM.RetryAttempts)
	}
	return nil
}
