package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/analyzer"
	"github.com/papercomputeco/baassist/pkg/gitquery"
	"github.com/papercomputeco/baassist/pkg/sse"
)

// handleRepoStats streams commit-progress while the history is read, then
// commits, tags and success.
func (s *Server) handleRepoStats(c *fiber.Ctx) error {
	path := c.Query("path")

	return s.stream(c, "repo-stats", func(ctx context.Context, st *sse.Stream) {
		repo, ok := s.open(st, path)
		if !ok {
			return
		}

		commits, err := repo.Commits(ctx, func(loaded int) {
			s.send(st, sse.CommitProgress{Loaded: loaded})
		})
		if err != nil {
			s.repoFailed(ctx, st, path, err)
			return
		}
		s.send(st, sse.Commits{Commits: commitEvents(commits)})

		tags, err := repo.Tags()
		if err != nil {
			s.repoFailed(ctx, st, path, err)
			return
		}
		events := make([]sse.Tag, len(tags))
		for i, t := range tags {
			events[i] = sse.Tag{Name: t.Name, Hash: t.Hash}
		}
		s.send(st, sse.Tags{Tags: events})

		s.send(st, sse.Success{})
	})
}

// handleRepoFeatures analyses the whole repository content, streaming
// feature fragments, then a summary, then success.
func (s *Server) handleRepoFeatures(c *fiber.Ctx) error {
	path := c.Query("path")

	return s.stream(c, "repo-features", func(ctx context.Context, st *sse.Stream) {
		repo, ok := s.open(st, path)
		if !ok {
			return
		}

		diff, err := repo.FullDiff(ctx)
		if err != nil {
			s.repoFailed(ctx, st, path, err)
			return
		}

		features, err := s.analyzer.AnalyzeDiff(ctx, diff, func(fragment string) {
			s.send(st, sse.Feature{Content: fragment})
		})
		if err != nil {
			s.repoFailed(ctx, st, path, err)
			return
		}

		_, err = s.analyzer.Summarize(ctx, features, func(fragment string) {
			s.send(st, sse.Summary{Content: fragment})
		})
		if err != nil {
			s.repoFailed(ctx, st, path, err)
			return
		}

		s.send(st, sse.Success{})
	})
}

func (s *Server) open(st *sse.Stream, path string) (*gitquery.Repo, bool) {
	repo, err := s.openRepo(path)
	if err != nil {
		s.logger.Info("cannot open repository", zap.String("path", path), zap.Error(err))
		s.fail(st, err.Error())
		return nil, false
	}
	if s.config.ProgressEvery > 0 {
		repo.ProgressEvery = s.config.ProgressEvery
	}
	return repo, true
}

// repoFailed reports err unless the work was cancelled, in which case the
// stream ends as a stopped generation does.
func (s *Server) repoFailed(ctx context.Context, st *sse.Stream, path string, err error) {
	if ctx.Err() != nil || errors.Is(err, analyzer.ErrAborted) {
		s.logger.Info("repository analysis aborted", zap.String("path", path))
		s.stopped(st)
		return
	}
	s.logger.Error("repository analysis failed", zap.String("path", path), zap.Error(err))
	s.fail(st, err.Error())
}

func commitEvents(commits []gitquery.Commit) []sse.Commit {
	out := make([]sse.Commit, len(commits))
	for i, c := range commits {
		out[i] = sse.Commit{
			Hash:    c.Hash,
			Date:    c.Date.Format(time.RFC3339),
			Author:  c.Author,
			Message: c.Message,
		}
	}
	return out
}
