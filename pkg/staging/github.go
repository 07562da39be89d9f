package staging

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jingkaihe/skillkit/pkg/descriptor"
	"github.com/jingkaihe/skillkit/pkg/link"
	"github.com/jingkaihe/skillkit/pkg/lock"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/pkg/errors"
)

// GitHubSource is a parsed repository reference.
type GitHubSource struct {
	Owner   string
	Repo    string
	Ref     string
	SubPath string
}

// FullName returns "owner/repo".
func (s GitHubSource) FullName() string {
	return s.Owner + "/" + s.Repo
}

// URL returns the clone URL of the repository.
func (s GitHubSource) URL() string {
	return "https://github.com/" + s.FullName() + ".git"
}

// ParseGitHubSource accepts "owner/repo", "owner/repo@ref",
// "https://github.com/owner/repo(.git)" and
// "https://github.com/owner/repo/tree/<ref>/<path>".
func ParseGitHubSource(source string) (*GitHubSource, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("repository cannot be empty")
	}

	var segments []string
	var ref string

	if strings.Contains(source, "://") {
		u, err := url.Parse(source)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid repository url %q", source)
		}
		if !strings.EqualFold(u.Host, "github.com") {
			return nil, errors.Errorf("unsupported host %q: only github.com is supported", u.Host)
		}
		segments = splitPath(u.Path)
	} else {
		repoPart := strings.TrimPrefix(source, "github:")
		if at := strings.LastIndex(repoPart, "@"); at >= 0 {
			ref = repoPart[at+1:]
			repoPart = repoPart[:at]
		}
		segments = splitPath(repoPart)
	}

	if len(segments) < 2 {
		return nil, errors.Errorf("invalid repository format %q: expected 'owner/repo'", source)
	}

	s := &GitHubSource{
		Owner: segments[0],
		Repo:  strings.TrimSuffix(segments[1], ".git"),
		Ref:   ref,
	}
	rest := segments[2:]
	if len(rest) >= 2 && (rest[0] == "tree" || rest[0] == "blob") {
		s.Ref = rest[1]
		rest = rest[2:]
	}
	if len(rest) > 0 {
		s.SubPath = path.Join(rest...)
		s.SubPath = strings.TrimSuffix(s.SubPath, "/"+descriptor.FileName)
		if s.SubPath == descriptor.FileName {
			s.SubPath = ""
		}
	}
	if s.Owner == "" || s.Repo == "" {
		return nil, errors.Errorf("invalid repository format %q: owner and repo cannot be empty", source)
	}
	return s, nil
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// CloneFunc clones repo at ref (empty for the default branch) into dir.
type CloneFunc func(ctx context.Context, src GitHubSource, dir string) error

// GitHubStager clones a repository with the gh CLI and stages one skill
// from it.
type GitHubStager struct {
	// SkillPath selects a folder inside the repository. It overrides a path
	// embedded in the source.
	SkillPath string
	// Name selects a skill by descriptor name when the repository holds
	// several.
	Name string

	attempts uint
	delay    time.Duration
	clone    CloneFunc
}

// GitHubOption configures a GitHubStager.
type GitHubOption func(*GitHubStager)

// WithClone replaces the gh CLI clone.
func WithClone(fn CloneFunc) GitHubOption {
	return func(g *GitHubStager) {
		g.clone = fn
	}
}

// WithRetry sets the number of clone attempts and the initial backoff.
func WithRetry(attempts uint, delay time.Duration) GitHubOption {
	return func(g *GitHubStager) {
		g.attempts = attempts
		g.delay = delay
	}
}

// NewGitHubStager creates a stager cloning through gh.
func NewGitHubStager(opts ...GitHubOption) *GitHubStager {
	g := &GitHubStager{
		attempts: 3,
		delay:    time.Second,
		clone:    ghClone,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stage implements Stager.
func (g *GitHubStager) Stage(ctx context.Context, source string) (*Staged, error) {
	src, err := ParseGitHubSource(source)
	if err != nil {
		return nil, err
	}
	if g.SkillPath != "" {
		src.SubPath = strings.Trim(filepath.ToSlash(g.SkillPath), "/")
	}

	tempDir, err := os.MkdirTemp("", "skillkit-stage-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp directory")
	}
	cleanup := removeAll(tempDir)
	repoDir := filepath.Join(tempDir, "repo")

	log := logger.G(ctx).WithField("repo", src.FullName())
	err = retry.Do(
		func() error {
			if err := os.RemoveAll(repoDir); err != nil {
				return retry.Unrecoverable(errors.Wrap(err, "failed to reset clone directory"))
			}
			return g.clone(ctx, *src, repoDir)
		},
		retry.Attempts(g.attempts),
		retry.Delay(g.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).WithField("attempt", n+1).Warn("retrying repository clone")
		}),
	)
	if err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "failed to clone %s", src.FullName())
	}

	dir, d, err := g.pick(repoDir, src.SubPath)
	if err != nil {
		cleanup()
		return nil, err
	}

	rel, _ := filepath.Rel(repoDir, dir)
	skillPath := path.Join(filepath.ToSlash(rel), descriptor.FileName)
	if rel == "." {
		skillPath = descriptor.FileName
	}

	return &Staged{
		Dir:  dir,
		Name: d.Name,
		Provenance: &link.Provenance{
			Source:     src.FullName(),
			SourceType: lock.SourceGitHub,
			SourceURL:  src.URL(),
			SkillPath:  skillPath,
		},
		cleanup: cleanup,
	}, nil
}

// pick selects the skill folder to stage from a cloned repository.
func (g *GitHubStager) pick(repoDir, subPath string) (string, *descriptor.Descriptor, error) {
	root := repoDir
	if subPath != "" {
		root = filepath.Join(repoDir, filepath.FromSlash(subPath))
	}

	dirs, err := FindSkillDirs(root)
	if err != nil {
		return "", nil, err
	}

	type match struct {
		dir  string
		desc *descriptor.Descriptor
	}
	var candidates []string
	var matches []match
	for _, dir := range dirs {
		d, err := descriptor.Load(dir)
		if err != nil {
			continue
		}
		candidates = append(candidates, d.Name)
		if g.Name == "" || d.Name == g.Name {
			matches = append(matches, match{dir: dir, desc: d})
		}
	}

	switch {
	case len(matches) == 1:
		return matches[0].dir, matches[0].desc, nil
	case len(candidates) == 0:
		return "", nil, errors.Wrapf(link.ErrNotFound, "no %s with a name found", descriptor.FileName)
	case len(matches) == 0:
		return "", nil, errors.Wrapf(link.ErrNotFound, "skill '%s' not found, available: %s", g.Name, strings.Join(candidates, ", "))
	default:
		return "", nil, errors.Errorf("repository holds several skills, pick one with --name: %s", strings.Join(candidates, ", "))
	}
}

func ghClone(ctx context.Context, src GitHubSource, dir string) error {
	if _, err := exec.LookPath("gh"); err != nil {
		return retry.Unrecoverable(errors.New("gh CLI is required to install from GitHub: https://cli.github.com"))
	}

	args := []string{"repo", "clone", src.FullName(), dir, "--", "--depth", "1"}
	if src.Ref != "" {
		args = append(args, "--branch", src.Ref)
	}

	cmd := exec.CommandContext(ctx, "gh", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "gh repo clone: %s", strings.TrimSpace(string(output)))
	}
	return nil
}
