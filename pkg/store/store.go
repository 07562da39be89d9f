// Package store resolves the canonical skill store: one folder per skill name
// under <root>/.agents/skills, with a global root in the user's home and an
// optional per-project root.
package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/pkg/errors"
)

// Scope selects which canonical store an operation targets.
type Scope string

// Scopes
const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

const (
	// AgentsDir is the directory holding the canonical store and the global lock.
	AgentsDir = ".agents"
	// SkillsDir is the canonical store directory inside AgentsDir.
	SkillsDir = "skills"

	unnamedSkill  = "unnamed-skill"
	maxNameLength = 255
)

// ParseScope converts user input into a Scope; empty input means global.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeProject:
		return ScopeProject, nil
	default:
		return "", errors.Errorf("invalid scope %q: must be global or project", s)
	}
}

// Store locates canonical skill folders.
type Store struct {
	HomeDir     string
	ProjectRoot string
}

// New returns a Store rooted at home, with an optional project root.
func New(home, projectRoot string) *Store {
	return &Store{HomeDir: home, ProjectRoot: projectRoot}
}

// Root returns the canonical store directory for scope.
func (s *Store) Root(scope Scope) (string, error) {
	switch scope {
	case ScopeGlobal, "":
		if s.HomeDir == "" {
			return "", errors.New("home directory is not set")
		}
		return filepath.Join(s.HomeDir, AgentsDir, SkillsDir), nil
	case ScopeProject:
		if s.ProjectRoot == "" {
			return "", errors.New("project scope requires a project root")
		}
		return filepath.Join(s.ProjectRoot, AgentsDir, SkillsDir), nil
	default:
		return "", errors.Errorf("unknown scope %q", scope)
	}
}

// HasScope reports whether scope can be resolved by this store.
func (s *Store) HasScope(scope Scope) bool {
	_, err := s.Root(scope)
	return err == nil
}

// SkillPath returns the canonical folder for name in scope. The name is
// sanitised before it becomes a path component.
func (s *Store) SkillPath(name string, scope Scope) (string, error) {
	root, err := s.Root(scope)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, SanitizeName(name)), nil
}

// EnsureRoot creates the canonical store directory for scope.
func (s *Store) EnsureRoot(scope Scope) (string, error) {
	root, err := s.Root(scope)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create canonical store %s", root)
	}
	return root, nil
}

// Contains reports whether path lies under the canonical root of scope once
// symlinks on both sides are resolved.
func (s *Store) Contains(scope Scope, path string) bool {
	root, err := s.Root(scope)
	if err != nil {
		return false
	}
	return fsutil.IsWithin(path, root)
}

// SanitizeName turns an arbitrary skill name into a safe folder name:
// lowercase ASCII letters, digits, '.', '_' and '-' are kept, everything else
// becomes '-'. Leading and trailing dots and dashes are trimmed.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	out := strings.Trim(b.String(), ".-")
	if out == "" {
		return unnamedSkill
	}
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
	}
	return out
}
