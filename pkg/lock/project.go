package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

const (
	// ProjectFileName is the lock file at a project root.
	ProjectFileName = "skills-lock.json"
	// ProjectVersion is the current project lock format.
	ProjectVersion = 1
)

// ProjectEntry is the provenance of one project-scoped skill.
type ProjectEntry struct {
	Source       string     `json:"source" yaml:"source"`
	SourceType   SourceType `json:"sourceType" yaml:"sourceType" jsonschema:"enum=github,enum=native,enum=unknown"`
	ComputedHash string     `json:"computedHash" yaml:"computedHash" jsonschema:"description=SHA-256 of the skill folder"`
}

// ProjectFile is the on-disk project lock document. encoding/json writes map
// keys sorted, which keeps the file diff-friendly in version control.
type ProjectFile struct {
	Version int                     `json:"version" yaml:"version"`
	Skills  map[string]ProjectEntry `json:"skills" yaml:"skills"`
}

func newProjectFile() *ProjectFile {
	return &ProjectFile{Version: ProjectVersion, Skills: map[string]ProjectEntry{}}
}

// ProjectStore reads and writes <project>/skills-lock.json.
type ProjectStore struct {
	root string
}

// NewProjectStore returns the lock store for a project root.
func NewProjectStore(projectRoot string) *ProjectStore {
	return &ProjectStore{root: projectRoot}
}

// Path returns the lock file location.
func (s *ProjectStore) Path() string {
	return filepath.Join(s.root, ProjectFileName)
}

// Read returns the project lock. Missing, unparsable or outdated files read
// as an empty document.
func (s *ProjectStore) Read() (*ProjectFile, error) {
	data, err := lockedfile.Read(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newProjectFile(), nil
		}
		return nil, errors.Wrap(err, "failed to read project lock file")
	}
	return decodeProject(data), nil
}

// Get returns the entry for name, or nil.
func (s *ProjectStore) Get(name string) (*ProjectEntry, error) {
	f, err := s.Read()
	if err != nil {
		return nil, err
	}
	entry, ok := f.Skills[name]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Add records name with the hash of skillDir.
func (s *ProjectStore) Add(name, source string, sourceType SourceType, skillDir string) error {
	hash, err := HashFolder(skillDir)
	if err != nil {
		return err
	}
	if sourceType == "" {
		sourceType = SourceUnknown
	}

	return s.transform(func(f *ProjectFile) bool {
		f.Skills[name] = ProjectEntry{
			Source:       source,
			SourceType:   sourceType,
			ComputedHash: hash,
		}
		return true
	})
}

// Remove deletes the entry for name and reports whether one existed.
func (s *ProjectStore) Remove(name string) (bool, error) {
	if _, err := os.Stat(s.Path()); os.IsNotExist(err) {
		return false, nil
	}

	removed := false
	err := s.transform(func(f *ProjectFile) bool {
		if _, ok := f.Skills[name]; !ok {
			return false
		}
		delete(f.Skills, name)
		removed = true
		return true
	})
	return removed, err
}

// Drift recomputes the hash of dir and compares it with the recorded one.
func (s *ProjectStore) Drift(name, dir string) (bool, string, error) {
	entry, err := s.Get(name)
	if err != nil {
		return false, "", err
	}
	current, err := HashFolder(dir)
	if err != nil {
		return false, "", err
	}
	if entry == nil || entry.ComputedHash == "" {
		return false, current, nil
	}
	return entry.ComputedHash != current, current, nil
}

// GitHubSource returns the recorded owner/repo for a GitHub-sourced skill.
func (f *ProjectFile) GitHubSource(name string) (string, bool) {
	entry, ok := f.Skills[name]
	if !ok || entry.SourceType != SourceGitHub || entry.Source == "" {
		return "", false
	}
	return entry.Source, true
}

func (s *ProjectStore) transform(fn func(*ProjectFile) bool) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return errors.Wrap(err, "failed to create project directory")
	}

	return lockedfile.Transform(s.Path(), func(data []byte) ([]byte, error) {
		f := decodeProject(data)
		if !fn(f) {
			return data, nil
		}
		f.Version = ProjectVersion
		out, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to serialize project lock file")
		}
		return out, nil
	})
}

func decodeProject(data []byte) *ProjectFile {
	if len(bytes.TrimSpace(data)) == 0 {
		return newProjectFile()
	}
	f := newProjectFile()
	if err := json.Unmarshal(data, f); err != nil {
		logger.G(context.Background()).WithError(err).Warn("failed to parse project lock file, starting fresh")
		return newProjectFile()
	}
	if f.Version < ProjectVersion || f.Skills == nil {
		return newProjectFile()
	}
	for name, entry := range f.Skills {
		entry.SourceType = ParseSourceType(string(entry.SourceType))
		f.Skills[name] = entry
	}
	return f
}
