// Package fsutil holds the filesystem primitives shared by the store, the
// scanner and the link engine: home expansion, recursive copies that keep
// relative structure, symlink inspection and safe removal.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ExpandHome expands a leading "~" or "~/" against home. Other paths are
// returned untouched.
func ExpandHome(path, home string) string {
	switch {
	case path == "~":
		return home
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(home, path[2:])
	default:
		return path
	}
}

// Exists reports whether path exists, following symlinks. A broken symlink
// does not exist.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LExists reports whether anything, including a broken symlink, sits at path.
func LExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir reports whether path is a directory, following symlinks.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsSymlink reports whether path itself is a symlink.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// IsSymlinkDir reports whether path is a symlink that resolves to a directory.
func IsSymlinkDir(path string) bool {
	return IsSymlink(path) && IsDir(path)
}

// Canonicalize resolves every symlink in path and returns an absolute path.
// When resolution fails the cleaned absolute form is returned instead, so
// callers can still compare paths that do not exist yet.
func Canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	// Resolve the deepest existing ancestor so /var vs /private/var style
	// aliases still line up for paths that are about to be created.
	dir, base := filepath.Split(abs)
	dir = filepath.Clean(dir)
	if dir == abs {
		return abs
	}
	return filepath.Join(Canonicalize(dir), base)
}

// ReadLinkTarget follows exactly one level of the symlink at linkPath and
// returns the absolute target; relative targets are joined to the link's
// parent directory.
func ReadLinkTarget(linkPath string) (string, error) {
	target, err := os.Readlink(linkPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read link %s", linkPath)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(linkPath), target)
	}
	return filepath.Clean(target), nil
}

// SamePath compares two paths after canonicalization.
func SamePath(a, b string) bool {
	return Canonicalize(a) == Canonicalize(b)
}

// SameLocation reports whether a and b name the same directory entry. Only
// the parent directories are resolved, so a symlink and its target differ.
func SameLocation(a, b string) bool {
	return location(a) == location(b)
}

func location(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return filepath.Join(Canonicalize(filepath.Dir(abs)), filepath.Base(abs))
}

// IsWithin reports whether path lies strictly under root once both sides are
// canonicalized.
func IsWithin(path, root string) bool {
	rel, err := filepath.Rel(Canonicalize(root), Canonicalize(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// RemovePath removes whatever sits at path. Symlinks are unlinked without
// touching their target, directories are removed recursively, and an absent
// path is not an error.
func RemovePath(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "failed to remove %s", path)
		}
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "failed to remove directory %s", path)
	}
	return nil
}

// CopyDir recursively copies src into dst, preserving the relative layout and
// file modes. A symlinked src is resolved first; symlinks inside the tree are
// recreated as symlinks.
func CopyDir(src, dst string) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create parent of %s", dst)
	}

	return filepath.Walk(resolved, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(dst, relPath)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return errors.Wrapf(err, "failed to read link %s", path)
			}
			return os.Symlink(target, destPath)
		case info.IsDir():
			return os.MkdirAll(destPath, info.Mode().Perm()|0o700)
		default:
			return CopyFile(path, destPath)
		}
	})
}

// CopyFile copies a single file, creating parent directories as needed.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// ListFiles returns the slash-separated relative paths of every regular file
// under root, sorted. Directories for which skip returns true are pruned.
// Symlinks inside the tree are not followed.
func ListFiles(root string, skip func(name string) bool) ([]string, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", root)
	}

	var files []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != resolved && skip != nil && skip(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}

	sort.Strings(files)
	return files, nil
}

// CreatedAt returns a best-effort creation timestamp for path. Go exposes no
// portable birth time, so the modification time stands in for it.
func CreatedAt(path string) *time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	t := info.ModTime()
	return &t
}
