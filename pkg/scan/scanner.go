// Package scan rebuilds the skill inventory from the filesystem. Every call
// walks the canonical stores and the skill directories of installed agents
// again; nothing is cached between scans.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"github.com/jingkaihe/skillkit/pkg/agents"
	"github.com/jingkaihe/skillkit/pkg/descriptor"
	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/link"
	"github.com/jingkaihe/skillkit/pkg/lock"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultMaxDepth bounds the walk of scan roots.
const DefaultMaxDepth = 5

// DefaultIgnore are directory-name patterns skipped under scan roots.
var DefaultIgnore = []string{"node_modules", ".git", "target", "dist"}

// AgentSource is the part of the agent registry the scanner needs.
type AgentSource interface {
	Installed() ([]agents.App, error)
	SkillsDir(app agents.App, scope store.Scope, projectRoot string) (string, error)
}

// Key identifies a managed skill.
type Key struct {
	Scope store.Scope
	Name  string
}

// Result is the inventory produced by Scan. Managed records are keyed by
// (scope, name); unmanaged records stay distinct even when names collide.
type Result struct {
	Managed   map[Key]*Skill
	Unmanaged []*Skill
}

// All returns every record sorted by status, scope, name and path.
func (r *Result) All() []*Skill {
	all := make([]*Skill, 0, len(r.Managed)+len(r.Unmanaged))
	for _, s := range r.Managed {
		all = append(all, s)
	}
	all = append(all, r.Unmanaged...)

	order := map[Status]int{StatusManaged: 0, StatusMixed: 1, StatusUnmanaged: 2}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if order[a.Status()] != order[b.Status()] {
			return order[a.Status()] < order[b.Status()]
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Path < b.Path
	})
	return all
}

// Find returns every record with the given name.
func (r *Result) Find(name string) []*Skill {
	var out []*Skill
	for _, s := range r.All() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Scanner discovers skills. Configure it with options; the zero set of
// scan roots disables the general walk.
type Scanner struct {
	store   *store.Store
	agents  AgentSource
	global  bool
	project bool

	roots      []string
	maxDepth   int
	ignore     []glob.Glob
	ignorePath []string

	globalLock  *lock.GlobalStore
	projectLock *lock.ProjectStore
}

// Option configures a Scanner.
type Option func(*Scanner) error

// WithScopes selects which canonical scopes are scanned. Project scope is
// only scanned when the store has a project root.
func WithScopes(global, project bool) Option {
	return func(s *Scanner) error {
		s.global = global
		s.project = project
		return nil
	}
}

// WithScanRoots enables the general walk of extra directories. Ignore
// patterns without a slash match directory names; patterns with one match
// the directory path relative to the scan root and may use "**".
func WithScanRoots(roots []string, maxDepth int, ignore []string) Option {
	return func(s *Scanner) error {
		if maxDepth <= 0 {
			maxDepth = DefaultMaxDepth
		}
		if len(ignore) == 0 {
			ignore = DefaultIgnore
		}
		var globs []glob.Glob
		var paths []string
		for _, pattern := range ignore {
			if strings.Contains(pattern, "/") {
				if !doublestar.ValidatePattern(pattern) {
					return errors.Errorf("invalid ignore pattern %q", pattern)
				}
				paths = append(paths, filepath.FromSlash(pattern))
				continue
			}
			g, err := glob.Compile(pattern)
			if err != nil {
				return errors.Wrapf(err, "invalid ignore pattern %q", pattern)
			}
			globs = append(globs, g)
		}
		s.roots = append([]string(nil), roots...)
		s.maxDepth = maxDepth
		s.ignore = globs
		s.ignorePath = paths
		return nil
	}
}

// WithLocks enriches managed records with provenance from the lock stores.
// Either store may be nil.
func WithLocks(global *lock.GlobalStore, project *lock.ProjectStore) Option {
	return func(s *Scanner) error {
		s.globalLock = global
		s.projectLock = project
		return nil
	}
}

// NewScanner creates a scanner over st and src. Both scopes are enabled by
// default.
func NewScanner(st *store.Store, src AgentSource, opts ...Option) (*Scanner, error) {
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if src == nil {
		return nil, errors.New("agent source cannot be nil")
	}

	s := &Scanner{
		store:    st,
		agents:   src,
		global:   true,
		project:  true,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// run holds the state of one scan.
type run struct {
	ctx        context.Context
	log        *logrus.Entry
	managed    map[Key]*Skill
	candidates []*Skill
	byPath     map[string]*Skill
	seen       map[string]bool
}

// Scan walks the filesystem and classifies every skill folder it finds.
// Missing directories and unreadable or nameless descriptors are skipped.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	r := &run{
		ctx:     ctx,
		log:     logger.G(ctx).WithField("component", "scan"),
		managed: map[Key]*Skill{},
		byPath:  map[string]*Skill{},
		seen:    map[string]bool{},
	}

	scopes := s.scopes()
	for _, scope := range scopes {
		root, _ := s.store.Root(scope)
		s.collectCanonical(r, root, scope)
	}

	installed, err := s.agents.Installed()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list installed agents")
	}
	for _, scope := range scopes {
		root, _ := s.store.Root(scope)
		for _, app := range installed {
			dir, err := s.agents.SkillsDir(app, scope, s.store.ProjectRoot)
			if err != nil {
				continue
			}
			s.collectAgent(r, dir, root, scope, app.ID)
		}
	}

	for _, root := range s.roots {
		s.collectCustom(r, root)
	}

	result := &Result{Managed: r.managed, Unmanaged: r.candidates}
	classify(result)
	s.enrich(r, result)
	return result, nil
}

func (s *Scanner) scopes() []store.Scope {
	var scopes []store.Scope
	if s.global && s.store.HasScope(store.ScopeGlobal) {
		scopes = append(scopes, store.ScopeGlobal)
	}
	if s.project && s.store.HasScope(store.ScopeProject) {
		scopes = append(scopes, store.ScopeProject)
	}
	return scopes
}

// collectCanonical registers every skill folder directly under root as managed.
func (s *Scanner) collectCanonical(r *run, root string, scope store.Scope) {
	for _, dir := range skillDirs(r, root) {
		d, ok := parse(r, dir)
		if !ok {
			continue
		}
		key := Key{Scope: scope, Name: d.Name}
		if _, exists := r.managed[key]; exists {
			continue
		}
		r.managed[key] = newSkill(d, scope, dir, Managed{Agents: []string{}})
		r.markSeen(dir)
	}
}

// collectAgent classifies the skill folders in one agent directory. Entries
// that are associations of the canonical root count towards the managed
// record; everything else becomes an unmanaged candidate.
func (s *Scanner) collectAgent(r *run, dir, canonicalRoot string, scope store.Scope, agentID string) {
	agentIsCanonical := fsutil.SamePath(dir, canonicalRoot)

	for _, path := range skillDirs(r, dir) {
		d, ok := parse(r, path)
		if !ok {
			continue
		}

		if agentIsCanonical || isManagedEvidence(path, canonicalRoot) {
			key := Key{Scope: scope, Name: d.Name}
			skill, exists := r.managed[key]
			if !exists {
				skill = newSkill(d, scope, fsutil.Canonicalize(path), Managed{Agents: []string{}})
				r.managed[key] = skill
			}
			st := skill.State.(Managed)
			st.Agents = appendUnique(st.Agents, agentID)
			skill.State = st
			r.markSeen(path)
			continue
		}

		r.addCandidate(d, scope, path, agentID)
	}
}

// collectCustom walks a scan root looking for SKILL.md folders and directory
// symlinks that hold one.
func (s *Scanner) collectCustom(r *run, root string) {
	if !fsutil.IsDir(root) {
		return
	}
	root = filepath.Clean(root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.log.WithError(err).WithField("path", path).Debug("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		depth := pathDepth(root, path)

		switch {
		case d.IsDir():
			if path != root && s.ignored(root, path, d.Name()) {
				return filepath.SkipDir
			}
			if depth >= s.maxDepth {
				return filepath.SkipDir
			}
		case d.Type()&fs.ModeSymlink != 0:
			if fsutil.IsSymlinkDir(path) && fsutil.Exists(filepath.Join(path, descriptor.FileName)) {
				s.addCustom(r, path)
			}
		case d.Name() == descriptor.FileName && d.Type().IsRegular():
			s.addCustom(r, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).WithField("root", root).Debug("scan root walk aborted")
	}
}

func (s *Scanner) addCustom(r *run, dir string) {
	if r.isSeen(dir) {
		return
	}
	d, ok := parse(r, dir)
	if !ok {
		return
	}
	r.addCandidate(d, ScopeCustom, dir, "")
}

func (s *Scanner) ignored(root, path, name string) bool {
	for _, g := range s.ignore {
		if g.Match(name) {
			return true
		}
	}
	if len(s.ignorePath) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, pattern := range s.ignorePath {
		if ok, _ := doublestar.PathMatch(pattern, rel); ok {
			return true
		}
	}
	return false
}

// enrich attaches lock entries to managed records. Lock read failures only
// drop the enrichment.
func (s *Scanner) enrich(r *run, result *Result) {
	var global *lock.File
	if s.globalLock != nil {
		f, err := s.globalLock.Read()
		if err != nil {
			r.log.WithError(err).Debug("ignoring unreadable lock file")
		}
		global = f
	}
	var project *lock.ProjectFile
	if s.projectLock != nil {
		f, err := s.projectLock.Read()
		if err != nil {
			r.log.WithError(err).Debug("ignoring unreadable project lock file")
		}
		project = f
	}

	for key, skill := range result.Managed {
		switch key.Scope {
		case store.ScopeGlobal:
			if global == nil {
				continue
			}
			if e, ok := global.Skills[key.Name]; ok {
				skill.Provenance = &Provenance{
					Source:      e.Source,
					SourceType:  string(e.SourceType),
					SourceURL:   e.SourceURL,
					SkillPath:   e.SkillPath,
					Hash:        e.SkillFolderHash,
					InstalledAt: e.InstalledAt,
					UpdatedAt:   e.UpdatedAt,
				}
			}
		case store.ScopeProject:
			if project == nil {
				continue
			}
			if e, ok := project.Skills[key.Name]; ok {
				skill.Provenance = &Provenance{
					Source:     e.Source,
					SourceType: string(e.SourceType),
					Hash:       e.ComputedHash,
				}
			}
		}
	}
}

// classify tags unmanaged candidates: a name that is also managed makes the
// record Mixed, and a name shared by several unmanaged records sets
// NameConflict. Only names are compared.
func classify(result *Result) {
	managedNames := map[string]bool{}
	for key := range result.Managed {
		managedNames[key.Name] = true
	}

	counts := map[string]int{}
	for _, skill := range result.Unmanaged {
		counts[skill.Name]++
	}

	for _, skill := range result.Unmanaged {
		agentIDs := skill.Agents()
		conflict := counts[skill.Name] > 1
		if managedNames[skill.Name] {
			skill.State = Mixed{Agents: agentIDs, NameConflict: conflict}
		} else {
			skill.State = Unmanaged{Agents: agentIDs, NameConflict: conflict}
		}
	}
}

// isManagedEvidence reports whether path is a symlink resolving under the
// canonical root, or a copy whose marker records a path under it.
func isManagedEvidence(path, canonicalRoot string) bool {
	if canonicalRoot == "" {
		return false
	}
	if fsutil.IsSymlink(path) {
		return fsutil.IsWithin(path, canonicalRoot)
	}
	recorded, ok := link.ReadMarker(path)
	if !ok {
		return false
	}
	return fsutil.IsWithin(recorded, canonicalRoot)
}

// skillDirs lists the immediate children of dir that are directories, or
// directory symlinks, containing a SKILL.md.
func skillDirs(r *run, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.WithError(err).WithField("dir", dir).Debug("skipping unreadable directory")
		}
		return nil
	}

	var dirs []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if !entry.IsDir() && entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if !fsutil.IsDir(path) {
			continue
		}
		if !fsutil.Exists(filepath.Join(path, descriptor.FileName)) {
			continue
		}
		dirs = append(dirs, path)
	}
	return dirs
}

func parse(r *run, dir string) (*descriptor.Descriptor, bool) {
	d, err := descriptor.ParseFile(filepath.Join(dir, descriptor.FileName))
	if err != nil {
		r.log.WithError(err).WithField("dir", dir).Debug("skipping unparsable skill")
		return nil, false
	}
	if !d.HasName() {
		r.log.WithField("dir", dir).Debug("skipping skill without a name")
		return nil, false
	}
	return d, true
}

func newSkill(d *descriptor.Descriptor, scope store.Scope, path string, state State) *Skill {
	return &Skill{
		Name:          d.Name,
		Description:   d.Description,
		Scope:         scope,
		Path:          path,
		CanonicalPath: fsutil.Canonicalize(path),
		CreatedAt:     fsutil.CreatedAt(path),
		State:         state,
	}
}

// addCandidate records an unmanaged folder. A folder reached through several
// agents sharing one directory becomes a single record listing all of them.
func (r *run) addCandidate(d *descriptor.Descriptor, scope store.Scope, path, agentID string) {
	// distinct symlinks to the same folder stay distinct records
	key := fsutil.Canonicalize(path)
	if fsutil.IsSymlink(path) {
		key = filepath.Clean(path)
	}

	if existing, ok := r.byPath[key]; ok {
		if agentID != "" {
			st := existing.State.(Unmanaged)
			st.Agents = appendUnique(st.Agents, agentID)
			existing.State = st
		}
		return
	}

	agentIDs := []string{}
	if agentID != "" {
		agentIDs = append(agentIDs, agentID)
	}
	skill := newSkill(d, scope, path, Unmanaged{Agents: agentIDs})
	r.candidates = append(r.candidates, skill)
	r.byPath[key] = skill
	r.markSeen(path)
}

func (r *run) markSeen(path string) {
	r.seen[filepath.Clean(path)] = true
	r.seen[fsutil.Canonicalize(path)] = true
}

func (r *run) isSeen(path string) bool {
	return r.seen[filepath.Clean(path)] || r.seen[fsutil.Canonicalize(path)]
}

func pathDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
