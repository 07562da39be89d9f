package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/pkg/errors"
)

var hashSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// HashFolder returns the hex SHA-256 of a skill folder. Files are visited in
// sorted relative-path order and each contributes its slash-separated path
// followed by its bytes, so the digest depends only on names and content.
// Anything under a .git or node_modules segment is excluded.
func HashFolder(dir string) (string, error) {
	files, err := fsutil.ListFiles(dir, func(name string) bool {
		return hashSkipDirs[name]
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to list files in %s", dir)
	}

	h := sha256.New()
	for _, rel := range files {
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", errors.Wrapf(err, "failed to read %s", rel)
		}
		// No separator between path and content: hashes already stored in
		// lock files must keep matching, so this layout cannot change.
		h.Write([]byte(rel))
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
