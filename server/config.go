package server

import (
	"time"

	"github.com/papercomputeco/baassist/pkg/analyzer"
	"github.com/papercomputeco/baassist/pkg/ollama"
	"github.com/papercomputeco/baassist/pkg/sse"
)

// Config is the server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// DBPath is the path to the SQLite transcript database.
	// Empty keeps transcripts in memory.
	DBPath string

	// StaticDir holds the web client. Nothing is served at / when empty.
	StaticDir string

	// KeepAlive is the event stream keep-alive interval. Zero uses the
	// default, negative disables keep-alives.
	KeepAlive time.Duration

	// ComicURL is a format string taking the comic number.
	ComicURL string

	// ProgressEvery is how many commits are read between commit-progress
	// events.
	ProgressEvery int

	// PromptsFile backs the prompt library. Empty keeps it in memory.
	PromptsFile string

	LLM      ollama.Config
	Analyzer analyzer.Config
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = sse.DefaultKeepAlive
	}
	if c.ComicURL == "" {
		c.ComicURL = "https://xkcd.com/%d/info.0.json"
	}
	if c.Analyzer.Language == "" {
		c.Analyzer.Language = c.LLM.Language
	}
	return c
}
