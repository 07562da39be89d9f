// Package agents knows which agent apps exist, where each one expects skill
// folders, and which of them are installed on this machine.
//
// The compiled built-in table is merged with user-defined entries stored as a
// JSON array in the config directory. A user entry replaces any built-in that
// shares its id or its global path.
package agents

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/store"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// UserFileName is the registry file for user-defined agent apps.
const UserFileName = "user_agent_apps.json"

var (
	// ErrInternalAgent is returned when a built-in agent is updated or removed.
	ErrInternalAgent = errors.New("cannot modify internal agent apps")
	// ErrAgentNotFound is returned for unknown agent ids.
	ErrAgentNotFound = errors.New("agent app not found")
	// ErrConflict is returned when a display name or global path is already taken.
	ErrConflict = errors.New("agent app conflicts with an installed agent")
	// ErrInvalidAgent is returned for empty fields or a missing global path folder.
	ErrInvalidAgent = errors.New("invalid agent app")
)

// App describes an agent app and where it keeps skills.
type App struct {
	ID           string `json:"id" yaml:"id"`
	DisplayName  string `json:"displayName" yaml:"displayName"`
	ProjectPath  string `json:"projectPath,omitempty" yaml:"projectPath,omitempty"`
	GlobalPath   string `json:"globalPath,omitempty" yaml:"globalPath,omitempty"`
	IsUserCustom bool   `json:"isUserCustom" yaml:"isUserCustom"`
}

// IsInternal reports whether the app comes from the built-in table.
func (a App) IsInternal() bool {
	return !a.IsUserCustom
}

// Paths is the pair of skill directories an agent declares.
type Paths struct {
	GlobalPath  string `json:"globalPath,omitempty"`
	ProjectPath string `json:"projectPath,omitempty"`
}

// userEntry is the on-disk form of a user-defined agent app.
type userEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	GlobalPath  string `json:"globalPath"`
	ProjectPath string `json:"projectPath,omitempty"`
}

func (e userEntry) app() App {
	return App{
		ID:           e.ID,
		DisplayName:  e.DisplayName,
		GlobalPath:   e.GlobalPath,
		ProjectPath:  e.ProjectPath,
		IsUserCustom: true,
	}
}

// Registry merges built-in and user agent apps and memoises which of them
// are installed. The memo is only ever replaced wholesale by Refresh.
type Registry struct {
	homeDir   string
	configDir string

	mu        sync.RWMutex
	installed []App
	loaded    bool
}

// Option configures a Registry.
type Option func(*Registry) error

// WithHomeDir sets the directory "~" expands to.
func WithHomeDir(dir string) Option {
	return func(r *Registry) error {
		if dir == "" {
			return errors.New("home directory cannot be empty")
		}
		r.homeDir = dir
		return nil
	}
}

// WithConfigDir sets the directory holding the user registry file.
func WithConfigDir(dir string) Option {
	return func(r *Registry) error {
		if dir == "" {
			return errors.New("config directory cannot be empty")
		}
		r.configDir = dir
		return nil
	}
}

// NewRegistry creates a registry. Without options it uses the user's home
// directory and <UserConfigDir>/skillkit.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.homeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user home directory")
		}
		r.homeDir = home
	}
	if r.configDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user config directory")
		}
		r.configDir = filepath.Join(dir, "skillkit")
	}
	return r, nil
}

// HomeDir returns the directory "~" expands to.
func (r *Registry) HomeDir() string {
	return r.homeDir
}

// UserFilePath returns the location of the user registry file.
func (r *Registry) UserFilePath() string {
	return filepath.Join(r.configDir, UserFileName)
}

// ExpandPath expands a leading "~" against the registry home directory.
func (r *Registry) ExpandPath(path string) string {
	return fsutil.ExpandHome(path, r.homeDir)
}

// All returns the merged agent table, built-ins first in table order,
// followed by user entries in file order.
func (r *Registry) All() ([]App, error) {
	users, err := r.loadUserEntries()
	if err != nil {
		return nil, err
	}
	return r.merge(users), nil
}

func (r *Registry) merge(users []userEntry) []App {
	shadowedIDs := make(map[string]bool, len(users))
	shadowedPaths := make(map[string]bool, len(users))
	for _, u := range users {
		shadowedIDs[u.ID] = true
		if u.GlobalPath != "" {
			shadowedPaths[r.pathKey(u.GlobalPath)] = true
		}
	}

	apps := make([]App, 0, len(builtinApps)+len(users))
	for _, app := range builtinApps {
		if shadowedIDs[app.ID] || shadowedPaths[r.pathKey(app.GlobalPath)] {
			continue
		}
		apps = append(apps, app)
	}
	for _, u := range users {
		apps = append(apps, u.app())
	}
	return apps
}

// ResolvePaths returns the declared skill directories of every known agent.
func (r *Registry) ResolvePaths() (map[string]Paths, error) {
	apps, err := r.All()
	if err != nil {
		return nil, err
	}
	paths := make(map[string]Paths, len(apps))
	for _, app := range apps {
		paths[app.ID] = Paths{GlobalPath: app.GlobalPath, ProjectPath: app.ProjectPath}
	}
	return paths, nil
}

// Installed returns the agents whose expanded global path is an existing
// directory. The result is memoised until the next Refresh.
func (r *Registry) Installed() ([]App, error) {
	r.mu.RLock()
	if r.loaded {
		out := append([]App(nil), r.installed...)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	return r.Refresh()
}

// Refresh recomputes the installed set and replaces the memo.
func (r *Registry) Refresh() ([]App, error) {
	apps, err := r.All()
	if err != nil {
		return nil, err
	}

	installed := make([]App, 0, len(apps))
	for _, app := range apps {
		if app.GlobalPath == "" {
			continue
		}
		if fsutil.IsDir(r.ExpandPath(app.GlobalPath)) {
			installed = append(installed, app)
		}
	}

	r.mu.Lock()
	r.installed = installed
	r.loaded = true
	r.mu.Unlock()

	return append([]App(nil), installed...), nil
}

// Get returns the agent with the given id from the merged table.
func (r *Registry) Get(id string) (*App, error) {
	apps, err := r.All()
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].ID == id {
			return &apps[i], nil
		}
	}
	return nil, errors.Wrapf(ErrAgentNotFound, "agent app '%s'", id)
}

// SkillsDir returns the absolute directory an agent uses for scope. Project
// paths are resolved against projectRoot.
func (r *Registry) SkillsDir(app App, scope store.Scope, projectRoot string) (string, error) {
	switch scope {
	case store.ScopeProject:
		if app.ProjectPath == "" {
			return "", errors.Errorf("agent app '%s' has no project skills path", app.ID)
		}
		if projectRoot == "" {
			return "", errors.New("project scope requires a project root")
		}
		path := r.ExpandPath(app.ProjectPath)
		if filepath.IsAbs(path) {
			return path, nil
		}
		return filepath.Join(projectRoot, path), nil
	default:
		if app.GlobalPath == "" {
			return "", errors.Errorf("agent app '%s' has no global skills path", app.ID)
		}
		return r.ExpandPath(app.GlobalPath), nil
	}
}

// Add registers a user-defined agent app and refreshes the installed memo.
func (r *Registry) Add(displayName, globalPath, projectPath string) (*App, error) {
	entry := userEntry{
		ID:          uuid.NewString(),
		DisplayName: strings.TrimSpace(displayName),
		GlobalPath:  strings.TrimSpace(globalPath),
		ProjectPath: strings.TrimSpace(projectPath),
	}
	if err := r.validate(entry, ""); err != nil {
		return nil, err
	}

	err := r.transformUserEntries(func(entries []userEntry) ([]userEntry, error) {
		return append(entries, entry), nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := r.Refresh(); err != nil {
		return nil, err
	}
	app := entry.app()
	return &app, nil
}

// Update replaces the fields of a user-defined agent app.
func (r *Registry) Update(id, displayName, globalPath, projectPath string) (*App, error) {
	entry := userEntry{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		GlobalPath:  strings.TrimSpace(globalPath),
		ProjectPath: strings.TrimSpace(projectPath),
	}
	if err := r.requireUserEntry(id); err != nil {
		return nil, err
	}
	if err := r.validate(entry, id); err != nil {
		return nil, err
	}

	err := r.transformUserEntries(func(entries []userEntry) ([]userEntry, error) {
		for i := range entries {
			if entries[i].ID == id {
				entries[i] = entry
				return entries, nil
			}
		}
		return nil, errors.Wrapf(ErrAgentNotFound, "agent app '%s'", id)
	})
	if err != nil {
		return nil, err
	}

	if _, err := r.Refresh(); err != nil {
		return nil, err
	}
	app := entry.app()
	return &app, nil
}

// Remove deletes a user-defined agent app.
func (r *Registry) Remove(id string) error {
	if err := r.requireUserEntry(id); err != nil {
		return err
	}

	err := r.transformUserEntries(func(entries []userEntry) ([]userEntry, error) {
		out := entries[:0]
		for _, e := range entries {
			if e.ID != id {
				out = append(out, e)
			}
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	_, err = r.Refresh()
	return err
}

func (r *Registry) requireUserEntry(id string) error {
	users, err := r.loadUserEntries()
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.ID == id {
			return nil
		}
	}
	if isBuiltinID(id) {
		return errors.Wrapf(ErrInternalAgent, "agent app '%s'", id)
	}
	return errors.Wrapf(ErrAgentNotFound, "agent app '%s'", id)
}

// validate checks e against every installed agent except currentID.
func (r *Registry) validate(e userEntry, currentID string) error {
	if e.DisplayName == "" {
		return errors.Wrap(ErrInvalidAgent, "display name is required")
	}
	if e.GlobalPath == "" {
		return errors.Wrap(ErrInvalidAgent, "global path is required")
	}

	installed, err := r.Installed()
	if err != nil {
		return err
	}

	name := strings.ToLower(e.DisplayName)
	path := r.pathKey(e.GlobalPath)
	for _, app := range installed {
		if app.ID == currentID {
			continue
		}
		if strings.ToLower(app.DisplayName) == name {
			return errors.Wrapf(ErrConflict, "display name '%s' is already used by '%s'", e.DisplayName, app.ID)
		}
		if app.GlobalPath != "" && r.pathKey(app.GlobalPath) == path {
			return errors.Wrapf(ErrConflict, "global path '%s' is already used by '%s'", e.GlobalPath, app.ID)
		}
	}

	if !fsutil.IsDir(r.ExpandPath(e.GlobalPath)) {
		return errors.Wrapf(ErrInvalidAgent, "global path '%s' does not exist", e.GlobalPath)
	}
	return nil
}

// pathKey normalises a global path for case-insensitive comparison.
func (r *Registry) pathKey(path string) string {
	return strings.ToLower(filepath.Clean(r.ExpandPath(path)))
}

func (r *Registry) loadUserEntries() ([]userEntry, error) {
	data, err := lockedfile.Read(r.UserFilePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read user agent apps")
	}
	return decodeUserEntries(data)
}

func (r *Registry) transformUserEntries(fn func([]userEntry) ([]userEntry, error)) error {
	if err := os.MkdirAll(r.configDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	return lockedfile.Transform(r.UserFilePath(), func(data []byte) ([]byte, error) {
		entries, err := decodeUserEntries(data)
		if err != nil {
			return nil, err
		}
		entries, err = fn(entries)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []userEntry{}
		}
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal user agent apps")
		}
		return out, nil
	})
}

func decodeUserEntries(data []byte) ([]userEntry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []userEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse user agent apps")
	}
	return entries, nil
}
