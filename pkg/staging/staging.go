// Package staging turns an install source into a local folder holding one
// skill, ready to be handed to the link engine.
package staging

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jingkaihe/skillkit/pkg/descriptor"
	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/link"
	"github.com/jingkaihe/skillkit/pkg/lock"
	"github.com/pkg/errors"
)

// Staged is a skill folder ready to install. Call Cleanup once the folder
// has been copied.
type Staged struct {
	Dir        string
	Name       string
	Provenance *link.Provenance
	cleanup    func()
}

// Cleanup releases temporary files. Safe to call more than once.
func (s *Staged) Cleanup() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Stager resolves a source string into a staged skill folder.
type Stager interface {
	Stage(ctx context.Context, source string) (*Staged, error)
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// FindSkillDirs returns every directory under root holding a SKILL.md,
// sorted. Symlinks are not followed.
func FindSkillDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == descriptor.FileName {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search %s for skills", root)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// FolderStager stages a skill that already sits in a local folder. The folder
// is used in place.
type FolderStager struct {
	HomeDir string
}

// Stage implements Stager.
func (f *FolderStager) Stage(_ context.Context, source string) (*Staged, error) {
	path, err := filepath.Abs(fsutil.ExpandHome(source, f.HomeDir))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", source)
	}
	if !fsutil.IsDir(path) {
		return nil, errors.Wrapf(link.ErrNotFound, "source folder %s", path)
	}

	d, err := descriptor.Load(path)
	if err != nil {
		return nil, err
	}

	return &Staged{
		Dir:  path,
		Name: d.Name,
		Provenance: &link.Provenance{
			Source:     path,
			SourceType: lock.SourceNative,
		},
	}, nil
}

// IsLocal reports whether source names an existing local directory.
func IsLocal(source, home string) bool {
	if strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://") {
		return false
	}
	return fsutil.IsDir(fsutil.ExpandHome(source, home))
}

// Auto stages local folders with Folder and everything else with GitHub.
type Auto struct {
	Folder *FolderStager
	GitHub *GitHubStager
}

// Stage implements Stager.
func (a *Auto) Stage(ctx context.Context, source string) (*Staged, error) {
	if IsLocal(source, a.Folder.HomeDir) {
		return a.Folder.Stage(ctx, source)
	}
	if a.GitHub == nil {
		return nil, errors.Wrapf(link.ErrNotFound, "source folder %s", source)
	}
	return a.GitHub.Stage(ctx, source)
}

func removeAll(dir string) func() {
	return func() { _ = os.RemoveAll(dir) }
}
