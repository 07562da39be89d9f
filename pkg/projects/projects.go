// Package projects keeps the list of project folders the user works with so
// commands can refer to a project by name instead of by path.
package projects

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// FileName is the registry file inside the config directory.
const FileName = "user_projects.json"

var (
	// ErrNotFound is returned for unknown project names.
	ErrNotFound = errors.New("project not found")
	// ErrConflict is returned when a name or path is already registered.
	ErrConflict = errors.New("project already registered")
	// ErrInvalid is returned for empty fields.
	ErrInvalid = errors.New("invalid project")
)

// Project is a named project root.
type Project struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// Registry reads and writes the project list.
type Registry struct {
	path    string
	homeDir string
}

// NewRegistry returns a registry stored in configDir. homeDir is used to
// expand "~" in project paths.
func NewRegistry(configDir, homeDir string) *Registry {
	return &Registry{
		path:    filepath.Join(configDir, FileName),
		homeDir: homeDir,
	}
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.path
}

// List returns every registered project in file order.
func (r *Registry) List() ([]Project, error) {
	data, err := lockedfile.Read(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Project{}, nil
		}
		return nil, errors.Wrap(err, "failed to read user projects")
	}
	return decode(data)
}

// Get returns the project with the given name, compared case-insensitively.
func (r *Registry) Get(name string) (*Project, error) {
	list, err := r.List()
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if strings.EqualFold(p.Name, name) {
			p := p
			return &p, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "project '%s'", name)
}

// Resolve turns a project reference into a directory. A registered name wins;
// otherwise the reference is treated as a path and must be a directory.
func (r *Registry) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.Wrap(ErrInvalid, "project reference is empty")
	}

	p, err := r.Get(ref)
	if err == nil {
		return r.expand(p.Path), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	path, err := filepath.Abs(r.expand(ref))
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve project path %s", ref)
	}
	if !fsutil.IsDir(path) {
		return "", errors.Wrapf(ErrNotFound, "'%s' is neither a registered project nor a directory", ref)
	}
	return path, nil
}

// Add registers a project.
func (r *Registry) Add(name, path string) (*Project, error) {
	p := Project{Name: strings.TrimSpace(name), Path: r.normalize(path)}
	err := r.transform(func(list []Project) ([]Project, error) {
		if err := validate(p, list, ""); err != nil {
			return nil, err
		}
		return append(list, p), nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update replaces the project registered under oldName.
func (r *Registry) Update(oldName, name, path string) (*Project, error) {
	p := Project{Name: strings.TrimSpace(name), Path: r.normalize(path)}
	err := r.transform(func(list []Project) ([]Project, error) {
		idx := indexOf(list, oldName)
		if idx < 0 {
			return nil, errors.Wrapf(ErrNotFound, "project '%s'", oldName)
		}
		if err := validate(p, list, list[idx].Name); err != nil {
			return nil, err
		}
		list[idx] = p
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Remove unregisters a project. The project folder is left alone.
func (r *Registry) Remove(name string) error {
	return r.transform(func(list []Project) ([]Project, error) {
		idx := indexOf(list, name)
		if idx < 0 {
			return nil, errors.Wrapf(ErrNotFound, "project '%s'", name)
		}
		return append(list[:idx], list[idx+1:]...), nil
	})
}

func (r *Registry) expand(path string) string {
	return fsutil.ExpandHome(path, r.homeDir)
}

func (r *Registry) normalize(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	expanded := r.expand(path)
	if abs, err := filepath.Abs(expanded); err == nil {
		return abs
	}
	return filepath.Clean(expanded)
}

func (r *Registry) transform(fn func([]Project) ([]Project, error)) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	return lockedfile.Transform(r.path, func(data []byte) ([]byte, error) {
		list, err := decode(data)
		if err != nil {
			return nil, err
		}
		list, err = fn(list)
		if err != nil {
			return nil, err
		}
		out, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal user projects")
		}
		return out, nil
	})
}

// validate checks p against every entry except the one named current.
func validate(p Project, list []Project, current string) error {
	if p.Name == "" {
		return errors.Wrap(ErrInvalid, "project name is required")
	}
	if p.Path == "" {
		return errors.Wrap(ErrInvalid, "project path is required")
	}
	for _, other := range list {
		if current != "" && strings.EqualFold(other.Name, current) {
			continue
		}
		if strings.EqualFold(other.Name, p.Name) {
			return errors.Wrapf(ErrConflict, "name '%s' is already used", p.Name)
		}
		if strings.EqualFold(filepath.Clean(other.Path), filepath.Clean(p.Path)) {
			return errors.Wrapf(ErrConflict, "path '%s' is already registered as '%s'", p.Path, other.Name)
		}
	}
	return nil
}

func indexOf(list []Project, name string) int {
	for i, p := range list {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

func decode(data []byte) ([]Project, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Project{}, nil
	}
	var list []Project
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "failed to parse user projects")
	}
	if list == nil {
		list = []Project{}
	}
	return list, nil
}
