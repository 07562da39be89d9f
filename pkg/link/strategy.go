// Package link creates and tears down associations between canonical skill
// folders and agent skill directories.
//
// An association is either a directory symlink pointing at the canonical
// folder or a full copy that carries a marker file recording the canonical
// path it was copied from.
package link

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/pkg/errors"
)

// MarkerFileName is the hidden file written into copy-mode associations.
const MarkerFileName = ".skill-kit-link"

// Mode is how an association is materialised.
type Mode string

// Modes
const (
	ModeSymlink Mode = "symlink"
	ModeCopy    Mode = "copy"
)

var (
	// ErrUnsafeLinkState is returned when removing an entry would destroy
	// content that is not a verified association.
	ErrUnsafeLinkState = errors.New("unsafe link state")
	// ErrNotFound is returned when an explicitly targeted path is absent.
	ErrNotFound = errors.New("not found")
)

// Strategy materialises and removes one kind of association.
type Strategy interface {
	Mode() Mode
	// Create makes target an association of canonical, replacing whatever
	// is currently at target.
	Create(canonical, target string) error
	// Remove deletes the association at target.
	Remove(target string) error
	// IsOwnedBy reports whether target is an association of canonical.
	IsOwnedBy(target, canonical string) bool
}

// StrategyFor returns the strategy for mode; unknown modes fall back to symlinks.
func StrategyFor(mode Mode) Strategy {
	if mode == ModeCopy {
		return CopyStrategy{}
	}
	return SymlinkStrategy{}
}

// SymlinkStrategy links target to canonical with a directory symlink.
type SymlinkStrategy struct{}

// Mode implements Strategy.
func (SymlinkStrategy) Mode() Mode { return ModeSymlink }

// Create implements Strategy. An existing symlink that already points at
// canonical is left alone.
func (s SymlinkStrategy) Create(canonical, target string) error {
	if err := checkDistinct(canonical, target); err != nil {
		return err
	}
	if fsutil.LExists(target) {
		if s.pointsAt(target, canonical) {
			return nil
		}
		if err := fsutil.RemovePath(target); err != nil {
			return errors.Wrapf(err, "failed to replace %s", target)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(target))
	}
	if err := os.Symlink(canonical, target); err != nil {
		return errors.Wrapf(err, "failed to link %s", target)
	}
	return nil
}

// Remove implements Strategy. Only symlinks are removed.
func (SymlinkStrategy) Remove(target string) error {
	if !fsutil.IsSymlink(target) {
		return errors.Wrapf(ErrUnsafeLinkState, "%s is not a symlink", target)
	}
	if err := os.Remove(target); err != nil {
		return errors.Wrapf(err, "failed to remove link %s", target)
	}
	return nil
}

// IsOwnedBy implements Strategy. The link is followed one level and both
// sides are canonicalised before comparison.
func (s SymlinkStrategy) IsOwnedBy(target, canonical string) bool {
	if !fsutil.IsSymlink(target) {
		return false
	}
	resolved, err := fsutil.ReadLinkTarget(target)
	if err != nil {
		return false
	}
	return fsutil.SamePath(resolved, canonical)
}

func (s SymlinkStrategy) pointsAt(target, canonical string) bool {
	resolved, err := fsutil.ReadLinkTarget(target)
	if err != nil {
		return false
	}
	return filepath.Clean(resolved) == filepath.Clean(canonical)
}

// CopyStrategy copies canonical into target and drops a marker file in it.
type CopyStrategy struct{}

// Mode implements Strategy.
func (CopyStrategy) Mode() Mode { return ModeCopy }

// Create implements Strategy.
func (CopyStrategy) Create(canonical, target string) error {
	if err := checkDistinct(canonical, target); err != nil {
		return err
	}
	if err := fsutil.RemovePath(target); err != nil {
		return errors.Wrapf(err, "failed to replace %s", target)
	}
	if err := fsutil.CopyDir(canonical, target); err != nil {
		return errors.Wrapf(err, "failed to copy %s", canonical)
	}
	return WriteMarker(target, canonical)
}

// Remove implements Strategy.
func (CopyStrategy) Remove(target string) error {
	if err := fsutil.RemovePath(target); err != nil {
		return errors.Wrapf(err, "failed to remove copy %s", target)
	}
	return nil
}

// IsOwnedBy implements Strategy.
func (CopyStrategy) IsOwnedBy(target, canonical string) bool {
	if fsutil.IsSymlink(target) {
		return false
	}
	recorded, ok := ReadMarker(target)
	if !ok {
		return false
	}
	return fsutil.SamePath(recorded, canonical)
}

// WriteMarker records canonical as the origin of the copy at dir.
func WriteMarker(dir, canonical string) error {
	path := filepath.Join(dir, MarkerFileName)
	if err := os.WriteFile(path, []byte(canonical), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write copy marker %s", path)
	}
	return nil
}

// ReadMarker returns the canonical path recorded in dir's marker file.
func ReadMarker(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFileName))
	if err != nil {
		return "", false
	}
	recorded := strings.TrimSpace(string(data))
	if recorded == "" {
		return "", false
	}
	return recorded, true
}

// checkDistinct refuses a target that is the canonical folder itself.
func checkDistinct(canonical, target string) error {
	if fsutil.SameLocation(canonical, target) {
		return errors.Wrapf(ErrUnsafeLinkState, "%s is the canonical folder", target)
	}
	return nil
}

// IsAssociation reports whether target is a symlink or marked copy of
// canonical, whichever mode created it.
func IsAssociation(target, canonical string) bool {
	return SymlinkStrategy{}.IsOwnedBy(target, canonical) || CopyStrategy{}.IsOwnedBy(target, canonical)
}
