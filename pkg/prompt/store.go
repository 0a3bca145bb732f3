// Package prompt resolves versioned per-turn prompt template text, the
// second half of a two-level prompt architecture: the stable identity
// prompt lives at the model endpoint, out of this package's scope; this
// package owns the per-turn template an experiment is admitted against,
// fetched by its prompt_version.
//
// Follows the general centralized-template shape of a prompt-registry
// package, but adapted from a fixed set of Go string constants to files
// under a configured directory: prompt_version here is an open-ended
// experiment axis (a parameter sweep can introduce a new version at any
// time) rather than a handful of strategies baked into the binary, so
// templates have to be data, not code.
package prompt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mazerunner/harness/pkg/apperrors"
)

// Store resolves prompt_version strings to template text read from files
// named "<version>.tmpl" under Dir. Resolved templates are cached in
// memory after their first successful read — templates are immutable for
// the lifetime of the process once referenced by an admitted experiment.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

// NewStore builds a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, cache: make(map[string]string)}
}

// Resolve returns the template text for promptVersion, reading it from disk
// on first use and caching the result thereafter. A missing or unreadable
// template file fails with CONFIG_MISSING — prompt_version is chosen at
// admission time, so an unresolvable version means the experiment was
// admitted against a template that doesn't exist.
func (s *Store) Resolve(_ context.Context, promptVersion string) (string, error) {
	s.mu.RLock()
	text, ok := s.cache[promptVersion]
	s.mu.RUnlock()
	if ok {
		return text, nil
	}

	path := filepath.Join(s.dir, promptVersion+".tmpl")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.New(apperrors.KindConfigMissing,
			fmt.Errorf("resolving prompt_version %q: %w", promptVersion, err))
	}

	text = string(data)
	s.mu.Lock()
	s.cache[promptVersion] = text
	s.mu.Unlock()
	return text, nil
}
