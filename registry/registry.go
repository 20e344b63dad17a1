package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry errors
var (
	ErrAlreadyRegistered = errors.New("server already registered")
	ErrNotFound          = errors.New("server not found")
)

// Entry is the connection metadata recorded for one tool server.
type Entry struct {
	Description  string            `json:"description,omitempty"`
	URL          string            `json:"url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
}

// Registry is a durable name-to-metadata catalog of tool servers, persisted
// as a single JSON document. All operations are safe for concurrent use.
type Registry struct {
	logger *zap.Logger
	path   string

	mu      sync.RWMutex
	entries map[string]Entry
}

// Open loads the catalog from path, creating an empty one if the file does
// not exist yet.
func Open(logger *zap.Logger, path string) (*Registry, error) {
	r := &Registry{
		logger:  logger,
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run; the file appears on the first registration.
	case err != nil:
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &r.entries); err != nil {
			return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
		}
	}

	logger.Info("registry opened", zap.String("path", path), zap.Int("servers", len(r.entries)))
	return r, nil
}

// Register records a new server. A duplicate name is rejected, not
// overwritten.
func (r *Registry) Register(name string, entry Entry) error {
	if name == "" {
		return fmt.Errorf("server name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	if entry.RegisteredAt.IsZero() {
		entry.RegisteredAt = time.Now().UTC()
	}
	r.entries[name] = entry

	if err := r.persist(); err != nil {
		delete(r.entries, name)
		return err
	}

	r.logger.Info("server registered", zap.String("name", name), zap.String("url", entry.URL))
	return nil
}

// Deregister removes a server from the catalog.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.entries, name)

	if err := r.persist(); err != nil {
		r.entries[name] = entry
		return err
	}

	r.logger.Info("server deregistered", zap.String("name", name))
	return nil
}

// Get returns the entry for a registered server.
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[name]
	if !exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return entry, nil
}

// List returns the registered server names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the whole catalog.
func (r *Registry) Snapshot() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Entry, len(r.entries))
	for name, entry := range r.entries {
		out[name] = entry
	}
	return out
}

// persist writes the document atomically: temp file in the same directory,
// then rename. Callers hold the write lock.
func (r *Registry) persist() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close registry file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	return nil
}
