// Package gitquery reads commit history, tags and diffs from a local git
// repository.
package gitquery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	ErrPathRequired  = errors.New("repository path is required")
	ErrNotRepository = errors.New("not a git repository")
	ErrNoCommits     = errors.New("repository has no commits")
)

// DefaultProgressEvery is how many commits are read between progress calls.
const DefaultProgressEvery = 500

// Commit is a summary of one commit.
type Commit struct {
	Hash    string
	Date    time.Time
	Author  string
	Message string
}

// Tag is a tag name and the commit it points at.
type Tag struct {
	Name string
	Hash string
}

// Repo is an open repository.
type Repo struct {
	path string
	repo *git.Repository

	// ProgressEvery controls how often Commits reports progress.
	ProgressEvery int
}

// Open opens the repository containing path. Subdirectories of a work tree
// are accepted.
func Open(path string) (*Repo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	return &Repo{path: path, repo: repo, ProgressEvery: DefaultProgressEvery}, nil
}

// Path is the path the repository was opened with.
func (r *Repo) Path() string { return r.path }

// Commits returns the history reachable from HEAD, newest first. progress,
// when non-nil, is called with the running count every ProgressEvery commits.
// A repository without commits yields an empty slice.
func (r *Repo) Commits(ctx context.Context, progress func(loaded int)) ([]Commit, error) {
	head, err := r.head()
	if errors.Is(err, ErrNoCommits) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, err
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	commits := []Commit{}
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Date:    c.Author.When,
			Author:  c.Author.Name,
			Message: strings.TrimSpace(c.Message),
		})
		if progress != nil && r.ProgressEvery > 0 && len(commits)%r.ProgressEvery == 0 {
			progress(len(commits))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk log: %w", err)
	}

	return commits, nil
}

// Tags returns every tag sorted by name. Annotated tags are resolved to the
// commit they point at.
func (r *Repo) Tags() ([]Tag, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer iter.Close()

	tags := []Tag{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		hash := ref.Hash()
		if obj, err := r.repo.TagObject(hash); err == nil {
			if c, err := obj.Commit(); err == nil {
				hash = c.Hash
			}
		}
		tags = append(tags, Tag{Name: ref.Name().Short(), Hash: hash.String()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk tags: %w", err)
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// FullDiff returns the unified diff from the empty tree to HEAD, i.e. the
// whole content of the repository as additions.
func (r *Repo) FullDiff(ctx context.Context) (string, error) {
	head, err := r.head()
	if err != nil {
		return "", err
	}

	commit, err := r.repo.CommitObject(head)
	if err != nil {
		return "", fmt.Errorf("read HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("read HEAD tree: %w", err)
	}

	var empty *object.Tree
	changes, err := object.DiffTreeWithOptions(ctx, empty, tree, nil)
	if err != nil {
		return "", fmt.Errorf("diff tree: %w", err)
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return "", fmt.Errorf("build patch: %w", err)
	}

	return patch.String(), nil
}

func (r *Repo) head() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, ErrNoCommits
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash(), nil
}
