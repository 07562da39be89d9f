// Package backup archives a canonical skill root into a timestamped ZIP file.
package backup

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNoSkills is returned when the root to archive does not exist.
var ErrNoSkills = errors.New("skills directory does not exist")

const (
	filePrefix  = "skills_backup_"
	stampLayout = "20060102150405"
)

// TimeLayout is how backup times are displayed and persisted.
const TimeLayout = "2006-01-02 15:04:05"

// FileName returns the archive name for a backup taken at t.
func FileName(t time.Time) string {
	return filePrefix + t.Format(stampLayout) + ".zip"
}

// Result describes a written archive.
type Result struct {
	Path  string    `json:"path" yaml:"path"`
	Root  string    `json:"root" yaml:"root"`
	Time  time.Time `json:"time" yaml:"time"`
	Files int       `json:"files" yaml:"files"`
}

// DisplayTime formats the backup time with TimeLayout.
func (r *Result) DisplayTime() string {
	return r.Time.Format(TimeLayout)
}

// Archive zips every file under root into dir/skills_backup_<stamp>.zip.
// Entry names are slash-separated paths relative to root; directories get
// their own entries. Symlinks are stored as the content they resolve to, and
// symlinked directories are skipped. A failed archive is removed.
func Archive(ctx context.Context, root, dir string, now time.Time) (*Result, error) {
	if !fsutil.IsDir(root) {
		return nil, errors.Wrapf(ErrNoSkills, "%s", root)
	}
	if fsutil.IsWithin(dir, root) || fsutil.SamePath(dir, root) {
		return nil, errors.Errorf("backup directory %s is inside %s", dir, root)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create backup directory %s", dir)
	}

	path := filepath.Join(dir, FileName(now))
	out, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create backup file %s", path)
	}

	files, err := writeArchive(ctx, out, root)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = errors.Wrap(closeErr, "failed to close backup file")
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"root":   root,
		"backup": path,
		"files":  files,
	}).Info("skills backed up")

	return &Result{Path: path, Root: root, Time: now, Files: files}, nil
}

func writeArchive(ctx context.Context, w io.Writer, root string) (int, error) {
	zw := zip.NewWriter(w)
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to resolve %s", root)
	}

	files := 0
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == resolved {
			return nil
		}

		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}

		info, err := os.Stat(path)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", path).Debug("skipping unreadable entry")
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		if err := addFile(zw, path, name, info); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, errors.Wrapf(err, "failed to archive %s", root)
	}
	if err := zw.Close(); err != nil {
		return 0, errors.Wrap(err, "failed to finish backup archive")
	}
	return files, nil
}

func addFile(zw *zip.Writer, path, name string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}
