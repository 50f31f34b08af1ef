// Package project manages the durable project registry (config.json):
// which directories the operator has registered and which tools each one
// enables. The file is written with the same temp-file-and-rename
// discipline as the snapshot store.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/pkg/models"
)

const configVersion = 1

var nameRe = regexp.MustCompile(`^[a-z0-9_-]{1,40}$`)

// Store is the project registry backed by a single JSON file.
type Store struct {
	mu    sync.Mutex
	path  string
	cfg   models.OwnerConfig
	clock func() time.Time
}

// Load opens (or initializes) the registry at path.
func Load(path string) (*Store, error) {
	s := &Store{path: path, clock: time.Now}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.cfg = models.OwnerConfig{Version: configVersion, Projects: map[string]models.ProjectConfig{}}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.cfg.Version != configVersion {
		return nil, fmt.Errorf("%s: version %d not supported", path, s.cfg.Version)
	}
	if s.cfg.Projects == nil {
		s.cfg.Projects = map[string]models.ProjectConfig{}
	}
	return s, nil
}

// OwnerID returns the configured operator identity.
func (s *Store) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.OwnerID
}

// SetOwnerID records the operator identity and persists it.
func (s *Store) SetOwnerID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.OwnerID = id
	return s.saveLocked()
}

// Create validates and registers a new project.
func (s *Store) Create(name, path string, tools []models.Tool, defaultTool models.Tool, defaultArgs map[models.Tool][]string) (models.ProjectConfig, error) {
	if !nameRe.MatchString(name) {
		return models.ProjectConfig{}, fault.Newf(fault.CodeInvalidPath,
			"project name %q must match [a-z0-9_-]{1,40}", name)
	}
	if !filepath.IsAbs(path) {
		return models.ProjectConfig{}, fault.Newf(fault.CodeInvalidPath, "path %q is not absolute", path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return models.ProjectConfig{}, fault.Newf(fault.CodeInvalidPath, "path %q is not an existing directory", path)
	}
	if err := validateToolset(tools, defaultTool, defaultArgs); err != nil {
		return models.ProjectConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cfg.Projects[name]; exists {
		return models.ProjectConfig{}, fault.Newf(fault.CodeProjectExists, "project %q already exists", name)
	}

	now := s.clock().UTC()
	p := models.ProjectConfig{
		Name:         name,
		Path:         path,
		EnabledTools: append([]models.Tool(nil), tools...),
		DefaultTool:  defaultTool,
		DefaultArgs:  defaultArgs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.cfg.Projects[name] = p
	if err := s.saveLocked(); err != nil {
		delete(s.cfg.Projects, name)
		return models.ProjectConfig{}, err
	}
	return p, nil
}

func validateToolset(tools []models.Tool, defaultTool models.Tool, defaultArgs map[models.Tool][]string) error {
	if len(tools) == 0 {
		return fault.New(fault.CodeInvalidToolset, "at least one tool must be enabled")
	}
	seen := map[models.Tool]bool{}
	for _, t := range tools {
		if !t.Valid() {
			return fault.Newf(fault.CodeInvalidToolset, "unknown tool %q", t)
		}
		if seen[t] {
			return fault.Newf(fault.CodeInvalidToolset, "tool %q listed twice", t)
		}
		seen[t] = true
	}
	if !seen[defaultTool] {
		return fault.Newf(fault.CodeInvalidToolset, "default tool %q is not enabled", defaultTool)
	}
	for t := range defaultArgs {
		if !seen[t] {
			return fault.Newf(fault.CodeInvalidToolset, "default args given for disabled tool %q", t)
		}
	}
	return nil
}

// Get returns the named project.
func (s *Store) Get(name string) (models.ProjectConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.cfg.Projects[name]
	return p, ok
}

// List returns all projects ordered by name.
func (s *Store) List() []models.ProjectConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProjectConfig, 0, len(s.cfg.Projects))
	for _, p := range s.cfg.Projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
