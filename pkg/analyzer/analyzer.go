// Package analyzer turns a repository diff into a business-level feature
// list and a project summary using a text generation model.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/ollama"
)

// ErrAborted is returned when generation was cancelled before the analysis
// finished.
var ErrAborted = errors.New("analysis aborted")

// DefaultMaxSegmentTokens keeps each prompt well inside a small model's
// context window.
const DefaultMaxSegmentTokens = 6000

// Generator produces streamed text for a prompt. *ollama.Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, onChunk ollama.ChunkFunc) (*ollama.Completion, error)
}

// Config tunes the analyzer.
type Config struct {
	MaxSegmentTokens int    `toml:"max_segment_tokens"`
	MaxTokens        int    `toml:"max_tokens"`
	Language         string `toml:"language"`
}

func DefaultConfig() Config {
	return Config{
		MaxSegmentTokens: DefaultMaxSegmentTokens,
		Language:         "English",
	}
}

// Analyzer runs feature analysis over diffs.
type Analyzer struct {
	gen    Generator
	config Config
	logger *zap.Logger
}

func New(gen Generator, config Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultConfig()
	if config.MaxSegmentTokens <= 0 {
		config.MaxSegmentTokens = d.MaxSegmentTokens
	}
	if config.Language == "" {
		config.Language = d.Language
	}
	return &Analyzer{gen: gen, config: config, logger: logger}
}

// AnalyzeDiff describes the features found in diff, one generation per
// segment. Fragments are passed to onFeature as they stream in. The returned
// slice holds the full text of each segment's analysis.
func (a *Analyzer) AnalyzeDiff(ctx context.Context, diff string, onFeature ollama.ChunkFunc) ([]string, error) {
	if strings.TrimSpace(diff) == "" {
		return []string{}, nil
	}

	segments, err := Segment(diff, a.config.MaxSegmentTokens)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("analyzing diff", zap.Int("segments", len(segments)), zap.Int("diff_size", len(diff)))

	features := make([]string, 0, len(segments))
	for i, seg := range segments {
		text, err := a.generate(ctx, featurePrompt(a.config.Language, seg), onFeature)
		if err != nil {
			return features, fmt.Errorf("analyze segment %d/%d: %w", i+1, len(segments), err)
		}
		features = append(features, text)
	}

	return features, nil
}

// Summarize writes a project overview from the collected features.
func (a *Analyzer) Summarize(ctx context.Context, features []string, onSummary ollama.ChunkFunc) (string, error) {
	if len(features) == 0 {
		return "", nil
	}
	text, err := a.generate(ctx, summaryPrompt(a.config.Language, features), onSummary)
	if err != nil {
		return "", fmt.Errorf("summarize features: %w", err)
	}
	return text, nil
}

func (a *Analyzer) generate(ctx context.Context, prompt string, onChunk ollama.ChunkFunc) (string, error) {
	res, err := a.gen.Generate(ctx, prompt, a.config.MaxTokens, onChunk)
	if err != nil {
		return "", err
	}
	if res.Aborted {
		return res.Text, ErrAborted
	}
	return res.Text, nil
}

func featurePrompt(language, segment string) string {
	return fmt.Sprintf(`You are a business analyst reviewing source code changes.
Read the git diff below and list the user-facing features it implements.
For each feature give a short title and one or two sentences on what a user can do with it.
Ignore formatting, build configuration and dependency changes.
Respond in %s using markdown bullet points.

`+"```diff\n%s\n```", language, strings.TrimRight(segment, "\n"))
}

func summaryPrompt(language string, features []string) string {
	return fmt.Sprintf(`You are a business analyst.
Below are feature notes collected from every part of a software project.
Merge duplicates and write a concise project overview in markdown:
a one-paragraph description, then a "Key features" list grouped by area.
Respond in %s.

%s`, language, strings.Join(features, "\n\n---\n\n"))
}
