// Package lock persists where installed skills came from. The global lock
// lives next to the global canonical store; each project keeps its own
// skills-lock.json at the project root. The two are never merged.
package lock

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

const (
	// GlobalFileName is the global lock file inside <home>/.agents.
	GlobalFileName = ".skill-lock.json"
	// GlobalVersion is the current global lock format.
	GlobalVersion = 3
)

// SourceType classifies where a skill was installed from.
type SourceType string

// Source types
const (
	SourceGitHub  SourceType = "github"
	SourceNative  SourceType = "native"
	SourceUnknown SourceType = "unknown"
)

// ParseSourceType maps a stored value onto a SourceType.
func ParseSourceType(s string) SourceType {
	switch SourceType(s) {
	case SourceGitHub, SourceNative:
		return SourceType(s)
	default:
		return SourceUnknown
	}
}

// Entry is the provenance of one globally installed skill.
type Entry struct {
	Source          string     `json:"source" yaml:"source" jsonschema:"description=Normalized owner/repo or a local label"`
	SourceType      SourceType `json:"sourceType" yaml:"sourceType" jsonschema:"enum=github,enum=native,enum=unknown"`
	SourceURL       string     `json:"sourceUrl" yaml:"sourceUrl"`
	SkillPath       string     `json:"skillPath,omitempty" yaml:"skillPath,omitempty" jsonschema:"description=Sub-path of the skill inside a cloned repository"`
	SkillFolderHash string     `json:"skillFolderHash,omitempty" yaml:"skillFolderHash,omitempty" jsonschema:"description=SHA-256 of the skill folder"`
	InstalledAt     string     `json:"installedAt" yaml:"installedAt" jsonschema:"format=date-time"`
	UpdatedAt       string     `json:"updatedAt" yaml:"updatedAt" jsonschema:"format=date-time"`
}

// File is the on-disk global lock document.
type File struct {
	Version            int                    `json:"version" yaml:"version"`
	Skills             map[string]Entry       `json:"skills" yaml:"skills"`
	Dismissed          map[string]interface{} `json:"dismissed" yaml:"dismissed,omitempty"`
	LastSelectedAgents []string               `json:"lastSelectedAgents" yaml:"lastSelectedAgents,omitempty"`
}

func newFile() *File {
	return &File{
		Version:            GlobalVersion,
		Skills:             map[string]Entry{},
		Dismissed:          map[string]interface{}{},
		LastSelectedAgents: []string{},
	}
}

// GlobalStore reads and writes the global lock file.
type GlobalStore struct {
	path string
	now  func() time.Time
}

// NewGlobalStore returns the store for <home>/.agents/.skill-lock.json.
func NewGlobalStore(home string) *GlobalStore {
	return NewGlobalStoreAt(filepath.Join(home, ".agents", GlobalFileName))
}

// NewGlobalStoreAt returns a store backed by an explicit file path.
func NewGlobalStoreAt(path string) *GlobalStore {
	return &GlobalStore{path: path, now: time.Now}
}

// Path returns the lock file location.
func (s *GlobalStore) Path() string {
	return s.path
}

// Read returns the lock document. A missing file, or one written by an older
// format version, reads as an empty document.
func (s *GlobalStore) Read() (*File, error) {
	data, err := lockedfile.Read(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newFile(), nil
		}
		return nil, errors.Wrap(err, "failed to read lock file")
	}
	return decodeGlobal(data)
}

// Get returns the entry for name, or nil when there is none.
func (s *GlobalStore) Get(name string) (*Entry, error) {
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

// Add upserts the entry for name. The original installedAt survives updates
// and updatedAt is always refreshed.
func (s *GlobalStore) Add(name string, entry Entry) error {
	now := s.now().UTC().Format(time.RFC3339)
	return s.transform(func(f *File) (bool, error) {
		entry.InstalledAt = now
		if existing, ok := f.Skills[name]; ok && existing.InstalledAt != "" {
			entry.InstalledAt = existing.InstalledAt
		}
		entry.UpdatedAt = now
		if entry.SourceType == "" {
			entry.SourceType = SourceUnknown
		}
		f.Skills[name] = entry
		return true, nil
	})
}

// Remove deletes the entry for name and reports whether one existed.
func (s *GlobalStore) Remove(name string) (bool, error) {
	f, err := s.Read()
	if err != nil {
		return false, err
	}
	if _, ok := f.Skills[name]; !ok {
		return false, nil
	}

	removed := false
	err = s.transform(func(f *File) (bool, error) {
		if _, ok := f.Skills[name]; !ok {
			return false, nil
		}
		delete(f.Skills, name)
		removed = true
		return true, nil
	})
	return removed, err
}

// SetLastSelectedAgents records the agents chosen for the latest install.
func (s *GlobalStore) SetLastSelectedAgents(agentIDs []string) error {
	return s.transform(func(f *File) (bool, error) {
		f.LastSelectedAgents = append([]string{}, agentIDs...)
		return true, nil
	})
}

// CheckUpdate reports whether the recorded folder hash for name differs from
// remoteHash. Skills without a recorded hash never report an update.
func (s *GlobalStore) CheckUpdate(name, remoteHash string) (bool, error) {
	entry, err := s.Get(name)
	if err != nil {
		return false, err
	}
	if entry == nil || entry.SkillFolderHash == "" {
		return false, nil
	}
	return entry.SkillFolderHash != remoteHash, nil
}

// Drift recomputes the hash of dir and compares it with the recorded one.
// It returns the fresh hash alongside the verdict.
func (s *GlobalStore) Drift(name, dir string) (bool, string, error) {
	entry, err := s.Get(name)
	if err != nil {
		return false, "", err
	}
	current, err := HashFolder(dir)
	if err != nil {
		return false, "", err
	}
	if entry == nil || entry.SkillFolderHash == "" {
		return false, current, nil
	}
	return entry.SkillFolderHash != current, current, nil
}

// transform runs fn under the file lock. fn returns false to leave the file
// untouched.
func (s *GlobalStore) transform(fn func(*File) (bool, error)) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create lock file directory")
	}

	return lockedfile.Transform(s.path, func(data []byte) ([]byte, error) {
		f, err := decodeGlobal(data)
		if err != nil {
			return nil, err
		}
		changed, err := fn(f)
		if err != nil {
			return nil, err
		}
		if !changed {
			return data, nil
		}
		f.Version = GlobalVersion
		out, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to serialize lock file")
		}
		return out, nil
	})
}

func decodeGlobal(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return newFile(), nil
	}

	f := newFile()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "failed to parse lock file")
	}
	if f.Version < GlobalVersion {
		return newFile(), nil
	}
	if f.Skills == nil {
		f.Skills = map[string]Entry{}
	}
	if f.Dismissed == nil {
		f.Dismissed = map[string]interface{}{}
	}
	if f.LastSelectedAgents == nil {
		f.LastSelectedAgents = []string{}
	}
	return f, nil
}
