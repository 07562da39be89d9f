package link

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/pkg/errors"
)

var diffSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Diff renders a unified diff of every file that differs between the
// canonical folder and another copy of the skill. Copy markers are ignored.
// An empty string means the two folders hold the same content.
func Diff(canonicalDir, otherDir string) (string, error) {
	skip := func(name string) bool { return diffSkipDirs[name] }

	oldFiles, err := listIfExists(canonicalDir, skip)
	if err != nil {
		return "", err
	}
	newFiles, err := listIfExists(otherDir, skip)
	if err != nil {
		return "", err
	}

	names := map[string]bool{}
	for _, f := range oldFiles {
		names[f] = true
	}
	for _, f := range newFiles {
		names[f] = true
	}
	delete(names, MarkerFileName)

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var b strings.Builder
	for _, rel := range sorted {
		oldContent, err := readIfExists(filepath.Join(canonicalDir, filepath.FromSlash(rel)))
		if err != nil {
			return "", err
		}
		newContent, err := readIfExists(filepath.Join(otherDir, filepath.FromSlash(rel)))
		if err != nil {
			return "", err
		}
		if oldContent == newContent {
			continue
		}
		b.WriteString(udiff.Unified("canonical/"+rel, "current/"+rel, oldContent, newContent))
	}
	return b.String(), nil
}

func listIfExists(dir string, skip func(string) bool) ([]string, error) {
	if !fsutil.Exists(dir) {
		return nil, nil
	}
	return fsutil.ListFiles(dir, skip)
}

func readIfExists(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return string(data), nil
}
