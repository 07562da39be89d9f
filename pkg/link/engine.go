package link

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/skillkit/pkg/agents"
	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/lock"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// AgentSource is the part of the agent registry the engine needs.
type AgentSource interface {
	Installed() ([]agents.App, error)
	SkillsDir(app agents.App, scope store.Scope, projectRoot string) (string, error)
}

// Engine mutates the canonical store and agent directories.
type Engine struct {
	store       *store.Store
	agents      AgentSource
	strategy    Strategy
	globalLock  *lock.GlobalStore
	projectLock *lock.ProjectStore
}

// Option configures an Engine.
type Option func(*Engine) error

// WithStrategy sets how new associations are created.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) error {
		if s == nil {
			return errors.New("strategy cannot be nil")
		}
		e.strategy = s
		return nil
	}
}

// WithGlobalLock records provenance of global installs in s.
func WithGlobalLock(s *lock.GlobalStore) Option {
	return func(e *Engine) error {
		e.globalLock = s
		return nil
	}
}

// WithProjectLock records provenance of project installs in s.
func WithProjectLock(s *lock.ProjectStore) Option {
	return func(e *Engine) error {
		e.projectLock = s
		return nil
	}
}

// NewEngine creates an engine over st and the installed agents of src.
// Without WithStrategy new associations are symlinks.
func NewEngine(st *store.Store, src AgentSource, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if src == nil {
		return nil, errors.New("agent source cannot be nil")
	}

	e := &Engine{
		store:    st,
		agents:   src,
		strategy: SymlinkStrategy{},
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Mode returns the mode used for new associations.
func (e *Engine) Mode() Mode {
	return e.strategy.Mode()
}

// Provenance describes where installed content came from.
type Provenance struct {
	Source     string
	SourceType lock.SourceType
	SourceURL  string
	SkillPath  string
}

// InstallRequest asks for a staged folder to become the canonical copy of
// Name and be associated with Agents.
type InstallRequest struct {
	Name       string
	SourceDir  string
	Scope      store.Scope
	Agents     []string
	Provenance *Provenance
}

// InstallResult reports what Install did. Warnings holds per-agent failures;
// the install itself succeeded once the canonical copy was written.
type InstallResult struct {
	Name          string   `json:"name"`
	CanonicalPath string   `json:"canonicalPath"`
	Mode          Mode     `json:"mode"`
	Linked        []string `json:"linked"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Install materialises the canonical copy and links it into the requested
// agents. Existing associations for the name in every installed agent are
// removed first so the name ends up linked exactly where requested.
func (e *Engine) Install(ctx context.Context, req InstallRequest) (*InstallResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("skill name is required")
	}
	if !fsutil.IsDir(req.SourceDir) {
		return nil, errors.Wrapf(ErrNotFound, "source folder %s", req.SourceDir)
	}

	log := logger.G(ctx).WithFields(logrus.Fields{"skill": req.Name, "scope": req.Scope})

	canonical, err := e.materialize(req.SourceDir, req.Name, req.Scope)
	if err != nil {
		return nil, err
	}
	log.WithField("canonical", canonical).Info("canonical copy written")

	result := &InstallResult{
		Name:          req.Name,
		CanonicalPath: canonical,
		Mode:          e.strategy.Mode(),
		Linked:        []string{},
	}

	installed, err := e.agents.Installed()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list installed agents")
	}

	var merr *multierror.Error
	for _, app := range installed {
		if e.readsCanonical(app, req.Scope) {
			continue
		}
		target, err := e.targetPath(app, req.Name, req.Scope)
		if err != nil {
			continue
		}
		if IsAssociation(target, canonical) {
			if err := fsutil.RemovePath(target); err != nil {
				merr = multierror.Append(merr, errors.Wrapf(err, "%s: failed to remove existing association", app.ID))
			}
		}
	}

	byID := make(map[string]agents.App, len(installed))
	for _, app := range installed {
		byID[app.ID] = app
	}

	for _, id := range dedupe(req.Agents) {
		app, ok := byID[id]
		if !ok {
			merr = multierror.Append(merr, errors.Wrapf(agents.ErrAgentNotFound, "%s: not installed", id))
			continue
		}
		if e.readsCanonical(app, req.Scope) {
			log.WithField("agent", id).Debug("agent reads the canonical store directly")
			result.Linked = append(result.Linked, id)
			continue
		}
		target, err := e.targetPath(app, req.Name, req.Scope)
		if err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, id))
			continue
		}
		if err := e.strategy.Create(canonical, target); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, id))
			continue
		}
		log.WithFields(logrus.Fields{"agent": id, "target": target}).Debug("association created")
		result.Linked = append(result.Linked, id)
	}

	if err := e.recordProvenance(req, canonical); err != nil {
		merr = multierror.Append(merr, err)
	}

	result.Warnings = warnings(merr)
	for _, w := range result.Warnings {
		log.Warn(w)
	}
	return result, nil
}

// materialize writes source into the canonical folder for name, replacing
// any previous content. A source that already is the canonical folder is
// left untouched.
func (e *Engine) materialize(source, name string, scope store.Scope) (string, error) {
	if _, err := e.store.EnsureRoot(scope); err != nil {
		return "", err
	}
	canonical, err := e.store.SkillPath(name, scope)
	if err != nil {
		return "", err
	}
	if fsutil.SamePath(source, canonical) {
		return canonical, nil
	}
	if fsutil.IsWithin(canonical, source) || fsutil.IsWithin(source, canonical) {
		return "", errors.Errorf("source %s overlaps canonical folder %s", source, canonical)
	}

	if err := fsutil.RemovePath(canonical); err != nil {
		return "", errors.Wrapf(err, "failed to remove previous canonical copy of %s", name)
	}
	if err := fsutil.CopyDir(source, canonical); err != nil {
		return "", errors.Wrapf(err, "failed to copy %s into the canonical store", source)
	}
	return canonical, nil
}

func (e *Engine) recordProvenance(req InstallRequest, canonical string) error {
	if req.Provenance == nil {
		return nil
	}
	p := req.Provenance

	switch req.Scope {
	case store.ScopeProject:
		if e.projectLock == nil {
			return nil
		}
		return errors.Wrap(e.projectLock.Add(req.Name, p.Source, p.SourceType, canonical), "failed to update project lock")
	default:
		if e.globalLock == nil {
			return nil
		}
		hash, err := lock.HashFolder(canonical)
		if err != nil {
			return errors.Wrap(err, "failed to hash canonical folder")
		}
		err = e.globalLock.Add(req.Name, lock.Entry{
			Source:          p.Source,
			SourceType:      p.SourceType,
			SourceURL:       p.SourceURL,
			SkillPath:       p.SkillPath,
			SkillFolderHash: hash,
		})
		if err != nil {
			return errors.Wrap(err, "failed to update lock")
		}
		if len(req.Agents) > 0 {
			return errors.Wrap(e.globalLock.SetLastSelectedAgents(req.Agents), "failed to update lock")
		}
		return nil
	}
}

// SetAgentLink links or unlinks name for one agent. Unlinking refuses to
// delete anything that is not a verified association of the canonical
// folder; an absent target is already unlinked.
func (e *Engine) SetAgentLink(ctx context.Context, name, agentID string, scope store.Scope, linked bool) error {
	canonical, err := e.store.SkillPath(name, scope)
	if err != nil {
		return err
	}
	app, err := e.installedAgent(agentID)
	if err != nil {
		return err
	}
	if e.readsCanonical(app, scope) {
		if !linked {
			return errors.Wrapf(ErrUnsafeLinkState, "%s reads the canonical store directly, cannot unlink", agentID)
		}
		if !fsutil.IsDir(canonical) {
			return errors.Wrapf(ErrNotFound, "canonical skill %s", canonical)
		}
		return nil
	}
	target, err := e.targetPath(app, name, scope)
	if err != nil {
		return err
	}

	log := logger.G(ctx).WithFields(logrus.Fields{"skill": name, "agent": agentID, "target": target})

	if linked {
		if !fsutil.IsDir(canonical) {
			return errors.Wrapf(ErrNotFound, "canonical skill %s", canonical)
		}
		if err := e.strategy.Create(canonical, target); err != nil {
			return err
		}
		log.Info("skill linked")
		return nil
	}

	if !fsutil.LExists(target) {
		return nil
	}
	if err := e.unlink(target, canonical); err != nil {
		log.WithError(err).Warn("unlink refused")
		return err
	}
	log.Info("skill unlinked")
	return nil
}

func (e *Engine) unlink(target, canonical string) error {
	if fsutil.SameLocation(target, canonical) {
		return errors.Wrapf(ErrUnsafeLinkState, "%s is the canonical folder", target)
	}
	if fsutil.IsSymlink(target) {
		links := SymlinkStrategy{}
		if !links.IsOwnedBy(target, canonical) {
			resolved, _ := fsutil.ReadLinkTarget(target)
			return errors.Wrapf(ErrUnsafeLinkState, "link points elsewhere, aborted (link -> %s, expected %s)",
				fsutil.Canonicalize(resolved), fsutil.Canonicalize(canonical))
		}
		return links.Remove(target)
	}

	copies := CopyStrategy{}
	if fsutil.IsDir(target) && (e.strategy.Mode() == ModeCopy || copies.IsOwnedBy(target, canonical)) {
		return copies.Remove(target)
	}
	return errors.Wrapf(ErrUnsafeLinkState, "not a managed link, aborted (%s)", target)
}

// Prefer selects the authoritative side of a unify.
type Prefer string

// Unify preferences
const (
	PreferCanonical Prefer = "canonical"
	PreferCurrent   Prefer = "current"
)

// ParsePrefer validates a unify preference.
func ParsePrefer(s string) (Prefer, error) {
	switch Prefer(strings.ToLower(strings.TrimSpace(s))) {
	case PreferCanonical:
		return PreferCanonical, nil
	case PreferCurrent:
		return PreferCurrent, nil
	default:
		return "", errors.Errorf("invalid preference %q: must be canonical or current", s)
	}
}

// UnifyRequest asks for the folder at CurrentPath to be reconciled with the
// canonical copy of Name.
type UnifyRequest struct {
	Name        string
	Scope       store.Scope
	CurrentPath string
	Prefer      Prefer
}

// UnifyResult reports the outcome of Unify.
type UnifyResult struct {
	Name          string `json:"name"`
	CanonicalPath string `json:"canonicalPath"`
	Path          string `json:"path"`
	Prefer        Prefer `json:"prefer"`
	Mode          Mode   `json:"mode"`
	Message       string `json:"message"`
}

// Unify makes CurrentPath a managed association of the canonical folder,
// keeping whichever content Prefer selects. Afterwards exactly one canonical
// copy exists.
func (e *Engine) Unify(ctx context.Context, req UnifyRequest) (*UnifyResult, error) {
	if _, err := ParsePrefer(string(req.Prefer)); err != nil {
		return nil, err
	}
	current, err := filepath.Abs(req.CurrentPath)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid path %s", req.CurrentPath)
	}
	if !fsutil.LExists(current) {
		return nil, errors.Wrapf(ErrNotFound, "skill path %s", current)
	}

	if _, err := e.store.EnsureRoot(req.Scope); err != nil {
		return nil, err
	}
	canonical, err := e.store.SkillPath(req.Name, req.Scope)
	if err != nil {
		return nil, err
	}
	if fsutil.SameLocation(current, canonical) {
		return nil, errors.Wrapf(ErrUnsafeLinkState, "%s is the canonical folder itself", current)
	}

	result := &UnifyResult{
		Name:          req.Name,
		CanonicalPath: canonical,
		Path:          current,
		Prefer:        req.Prefer,
		Mode:          e.strategy.Mode(),
	}

	if IsAssociation(current, canonical) {
		result.Message = "already linked to the canonical copy"
		return result, nil
	}

	switch req.Prefer {
	case PreferCanonical:
		if !fsutil.Exists(canonical) {
			if err := fsutil.CopyDir(current, canonical); err != nil {
				return nil, errors.Wrap(err, "failed to seed canonical copy")
			}
		}
		result.Message = "kept the canonical version"
	case PreferCurrent:
		if err := fsutil.RemovePath(canonical); err != nil {
			return nil, errors.Wrap(err, "failed to remove canonical copy")
		}
		if err := fsutil.CopyDir(current, canonical); err != nil {
			return nil, errors.Wrap(err, "failed to replace canonical copy")
		}
		result.Message = "replaced the canonical version with the current one"
	}

	if err := fsutil.RemovePath(current); err != nil {
		return nil, errors.Wrapf(err, "failed to remove %s", current)
	}
	if err := e.strategy.Create(canonical, current); err != nil {
		return nil, err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"skill":  req.Name,
		"path":   current,
		"prefer": req.Prefer,
	}).Info("skill unified")
	return result, nil
}

// DeleteResult reports what Delete removed.
type DeleteResult struct {
	Name             string   `json:"name"`
	CanonicalRemoved bool     `json:"canonicalRemoved"`
	RemovedPaths     []string `json:"removedPaths"`
	LockRemoved      bool     `json:"lockRemoved"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Delete removes the canonical folder, every same-named entry in the
// installed agents' directories and the lock entry. Deleting an absent skill
// succeeds without effect.
func (e *Engine) Delete(ctx context.Context, name string, scope store.Scope) (*DeleteResult, error) {
	canonical, err := e.store.SkillPath(name, scope)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{Name: name, RemovedPaths: []string{}}

	if fsutil.LExists(canonical) {
		if err := fsutil.RemovePath(canonical); err != nil {
			return nil, errors.Wrapf(err, "failed to remove canonical folder %s", canonical)
		}
		result.CanonicalRemoved = true
	}

	installed, err := e.agents.Installed()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list installed agents")
	}

	var merr *multierror.Error
	seen := map[string]bool{}
	for _, app := range installed {
		if e.readsCanonical(app, scope) {
			continue
		}
		target, err := e.targetPath(app, name, scope)
		if err != nil || seen[target] {
			continue
		}
		seen[target] = true
		if !fsutil.LExists(target) {
			continue
		}
		if err := fsutil.RemovePath(target); err != nil {
			merr = multierror.Append(merr, errors.Wrapf(err, "%s: failed to remove %s", app.ID, target))
			continue
		}
		result.RemovedPaths = append(result.RemovedPaths, target)
	}

	removed, err := e.removeLock(name, scope)
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	result.LockRemoved = removed
	result.Warnings = warnings(merr)

	logger.G(ctx).WithFields(logrus.Fields{
		"skill":   name,
		"scope":   scope,
		"removed": len(result.RemovedPaths),
	}).Info("skill deleted")
	return result, nil
}

func (e *Engine) removeLock(name string, scope store.Scope) (bool, error) {
	switch scope {
	case store.ScopeProject:
		if e.projectLock == nil {
			return false, nil
		}
		removed, err := e.projectLock.Remove(name)
		return removed, errors.Wrap(err, "failed to update project lock")
	default:
		if e.globalLock == nil {
			return false, nil
		}
		removed, err := e.globalLock.Remove(name)
		return removed, errors.Wrap(err, "failed to update lock")
	}
}

// CanonicalCheck tells whether a canonical folder exists for a name.
type CanonicalCheck struct {
	Exists        bool   `json:"exists"`
	CanonicalPath string `json:"canonicalPath"`
}

// CheckCanonical resolves the canonical folder of name in scope.
func (e *Engine) CheckCanonical(name string, scope store.Scope) (*CanonicalCheck, error) {
	canonical, err := e.store.SkillPath(name, scope)
	if err != nil {
		return nil, err
	}
	return &CanonicalCheck{Exists: fsutil.IsDir(canonical), CanonicalPath: canonical}, nil
}

func (e *Engine) installedAgent(id string) (agents.App, error) {
	installed, err := e.agents.Installed()
	if err != nil {
		return agents.App{}, errors.Wrap(err, "failed to list installed agents")
	}
	for _, app := range installed {
		if app.ID == id {
			return app, nil
		}
	}
	return agents.App{}, errors.Wrapf(agents.ErrAgentNotFound, "agent app '%s' is not installed", id)
}

// readsCanonical reports whether app's skills directory for scope is the
// canonical root itself. Such an agent sees every canonical skill without an
// association.
func (e *Engine) readsCanonical(app agents.App, scope store.Scope) bool {
	dir, err := e.agents.SkillsDir(app, scope, e.store.ProjectRoot)
	if err != nil {
		return false
	}
	root, err := e.store.Root(scope)
	if err != nil {
		return false
	}
	return fsutil.SamePath(dir, root)
}

// targetPath is <agent skills dir>/<sanitised name>.
func (e *Engine) targetPath(app agents.App, name string, scope store.Scope) (string, error) {
	dir, err := e.agents.SkillsDir(app, scope, e.store.ProjectRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, store.SanitizeName(name)), nil
}

func warnings(merr *multierror.Error) []string {
	if merr == nil {
		return nil
	}
	out := make([]string, 0, len(merr.Errors))
	for _, err := range merr.Errors {
		out = append(out, err.Error())
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
