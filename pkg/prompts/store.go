package prompts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type file struct {
	Prompts []Prompt `toml:"prompt"`
}

// Store holds the prompt library. With a path it is backed by a TOML file
// that is rewritten on every change; without one it lives in memory. A
// missing file starts from Defaults.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	prompts []Prompt
}

// NewStore loads the library at path. An empty path keeps it in memory.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}

	if path == "" {
		s.prompts = Defaults()
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path is the backing file, empty for in-memory stores.
func (s *Store) Path() string { return s.path }

// Reload rereads the backing file.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	var f file
	_, err := toml.DecodeFile(s.path, &f)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.Prompts = Defaults()
	case err != nil:
		return fmt.Errorf("load prompts from %s: %w", s.path, err)
	}

	for i := range f.Prompts {
		if f.Prompts[i].ID == "" {
			f.Prompts[i].ID = uuid.NewString()
		}
	}

	s.mu.Lock()
	s.prompts = f.Prompts
	s.mu.Unlock()
	return nil
}

func (s *Store) List() []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Prompt, len(s.prompts))
	copy(out, s.prompts)
	return out
}

func (s *Store) Get(id string) (Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.prompts[i], nil
	}
	return Prompt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create adds a prompt with a new ID.
func (s *Store) Create(name, text string) (Prompt, error) {
	p := Prompt{ID: uuid.NewString(), Name: name, Text: text}
	if err := p.validate(); err != nil {
		return Prompt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	if err := s.save(); err != nil {
		s.prompts = s.prompts[:len(s.prompts)-1]
		return Prompt{}, err
	}
	return p, nil
}

// Update replaces the prompt with p.ID.
func (s *Store) Update(p Prompt) (Prompt, error) {
	if err := p.validate(); err != nil {
		return Prompt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(p.ID)
	if i < 0 {
		return Prompt{}, fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	old := s.prompts[i]
	s.prompts[i] = p
	if err := s.save(); err != nil {
		s.prompts[i] = old
		return Prompt{}, err
	}
	return p, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	old := s.prompts
	s.prompts = append(append([]Prompt{}, old[:i]...), old[i+1:]...)
	if err := s.save(); err != nil {
		s.prompts = old
		return err
	}
	return nil
}

// Render fills the prompt with id. See Prompt.Render.
func (s *Store) Render(id string, vars map[string]string, context string) (string, error) {
	p, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return p.Render(vars, context), nil
}

// Watch reloads the store whenever its file changes, until ctx is done.
// The directory is watched rather than the file so that editors which
// replace the file on save are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompts watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prompts directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("failed to reload prompts", zap.String("path", s.path), zap.Error(err))
				continue
			}
			s.logger.Info("prompts reloaded", zap.String("path", s.path), zap.Int("count", len(s.List())))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("prompts watcher error", zap.Error(err))
		}
	}
}

func (s *Store) index(id string) int {
	for i, p := range s.prompts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// save writes the library through a temp file and rename. Callers hold mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create prompts directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prompts-*.toml")
	if err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(file{Prompts: s.prompts}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode prompts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	return nil
}
