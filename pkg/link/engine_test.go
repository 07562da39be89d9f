package link

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jingkaihe/skillkit/pkg/agents"
	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/lock"
	"github.com/jingkaihe/skillkit/pkg/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	home     string
	store    *store.Store
	registry *agents.Registry
	lock     *lock.GlobalStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".claude", "skills"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".codex", "skills"), 0o755))

	registry, err := agents.NewRegistry(agents.WithHomeDir(home), agents.WithConfigDir(filepath.Join(home, "config")))
	require.NoError(t, err)

	return &testEnv{
		home:     home,
		store:    store.New(home, ""),
		registry: registry,
		lock:     lock.NewGlobalStore(home),
	}
}

func (env *testEnv) engine(t *testing.T, mode Mode) *Engine {
	t.Helper()
	e, err := NewEngine(env.store, env.registry, WithStrategy(StrategyFor(mode)), WithGlobalLock(env.lock))
	require.NoError(t, err)
	return e
}

func (env *testEnv) agentPath(agent, name string) string {
	dirs := map[string]string{
		"claude-code": filepath.Join(env.home, ".claude", "skills"),
		"codex":       filepath.Join(env.home, ".codex", "skills"),
	}
	return filepath.Join(dirs[agent], name)
}

func (env *testEnv) canonical(name string) string {
	return filepath.Join(env.home, ".agents", "skills", name)
}

func writeSkill(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\nname: "+name+"\n---\n"), 0o644))
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func canonicalEntries(t *testing.T, env *testEnv) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(env.home, ".agents", "skills"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestInstallLinksRequestedAgents(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeSymlink)
	src := writeSkill(t, filepath.Join(t.TempDir(), "foo"), "foo", map[string]string{"notes.txt": "v1"})

	result, err := e.Install(context.Background(), InstallRequest{
		Name:      "foo",
		SourceDir: src,
		Scope:     store.ScopeGlobal,
		Agents:    []string{"claude-code", "codex"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.ElementsMatch(t, []string{"claude-code", "codex"}, result.Linked)
	assert.Equal(t, env.canonical("foo"), result.CanonicalPath)

	assert.Equal(t, []string{"foo"}, canonicalEntries(t, env))
	for _, agent := range []string{"claude-code", "codex"} {
		target, err := os.Readlink(env.agentPath(agent, "foo"))
		require.NoError(t, err)
		assert.Equal(t, env.canonical("foo"), target)
	}
	assert.FileExists(t, filepath.Join(src, "notes.txt"), "source is copied, not moved")
}

func TestReinstallReplacesCanonicalContent(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeSymlink)
	ctx := context.Background()

	first := writeSkill(t, filepath.Join(t.TempDir(), "one"), "foo", map[string]string{"old.txt": "old"})
	_, err := e.Install(ctx, InstallRequest{Name: "foo", SourceDir: first, Scope: store.ScopeGlobal, Agents: []string{"claude-code", "codex"}})
	require.NoError(t, err)

	second := writeSkill(t, filepath.Join(t.TempDir(), "two"), "foo", map[string]string{"new.txt": "new"})
	_, err = e.Install(ctx, InstallRequest{Name: "foo", SourceDir: second, Scope: store.ScopeGlobal, Agents: []string{"claude-code"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"foo"}, canonicalEntries(t, env))
	assert.NoFileExists(t, filepath.Join(env.canonical("foo"), "old.txt"))
	assert.FileExists(t, filepath.Join(env.canonical("foo"), "new.txt"))

	assert.FileExists(t, filepath.Join(env.agentPath("claude-code", "foo"), "new.txt"))
	_, err = os.Lstat(env.agentPath("codex", "foo"))
	assert.True(t, os.IsNotExist(err), "associations not requested again are removed")
}

func TestInstallFromCanonicalPathKeepsContent(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeSymlink)
	canonical := writeSkill(t, env.canonical("foo"), "foo", map[string]string{"keep.txt": "keep"})

	_, err := e.Install(context.Background(), InstallRequest{Name: "foo", SourceDir: canonical, Scope: store.ScopeGlobal, Agents: []string{"codex"}})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(canonical, "keep.txt"))
	assert.True(t, SymlinkStrategy{}.IsOwnedBy(env.agentPath("codex", "foo"), canonical))
}

func TestInstallCopyModeWritesMarker(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeCopy)
	src := writeSkill(t, filepath.Join(t.TempDir(), "foo"), "foo", nil)

	result, err := e.Install(context.Background(), InstallRequest{Name: "foo", SourceDir: src, Scope: store.ScopeGlobal, Agents: []string{"codex"}})
	require.NoError(t, err)
	assert.Equal(t, ModeCopy, result.Mode)

	target := env.agentPath("codex", "foo")
	info, err := os.Lstat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	recorded, ok := ReadMarker(target)
	require.True(t, ok)
	assert.Equal(t, env.canonical("foo"), recorded)
	assert.True(t, IsAssociation(target, env.canonical("foo")))
}

func TestInstallPartialFailureIsWarning(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeSymlink)
	src := writeSkill(t, filepath.Join(t.TempDir(), "foo"), "foo", nil)

	result, err := e.Install(context.Background(), InstallRequest{
		Name:      "foo",
		SourceDir: src,
		Scope:     store.ScopeGlobal,
		Agents:    []string{"cursor", "codex"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"codex"}, result.Linked)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "cursor")
}

func TestInstallMissingSource(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeSymlink)

	_, err := e.Install(context.Background(), InstallRequest{Name: "foo", SourceDir: filepath.Join(env.home, "missing"), Scope: store.ScopeGlobal})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, canonicalEntries(t, env))
}

func TestInstallRecordsProvenance(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeSymlink)
	src := writeSkill(t, filepath.Join(t.TempDir(), "foo"), "foo", nil)

	_, err := e.Install(context.Background(), InstallRequest{
		Name:      "foo",
		SourceDir: src,
		Scope:     store.ScopeGlobal,
		Agents:    []string{"codex"},
		Provenance: &Provenance{
			Source:     "acme/skills",
			SourceType: lock.SourceGitHub,
			SourceURL:  "https://github.com/acme/skills.git",
			SkillPath:  "skills/foo",
		},
	})
	require.NoError(t, err)

	entry, err := env.lock.Get("foo")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "acme/skills", entry.Source)
	assert.Equal(t, "skills/foo", entry.SkillPath)

	hash, err := lock.HashFolder(env.canonical("foo"))
	require.NoError(t, err)
	assert.Equal(t, hash, entry.SkillFolderHash)

	f, err := env.lock.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"codex"}, f.LastSelectedAgents)
}

func TestInstallProjectScope(t *testing.T) {
	env := newTestEnv(t)
	project := t.TempDir()
	st := store.New(env.home, project)
	projectLock := lock.NewProjectStore(project)
	e, err := NewEngine(st, env.registry, WithProjectLock(projectLock))
	require.NoError(t, err)

	src := writeSkill(t, filepath.Join(t.TempDir(), "foo"), "foo", nil)
	_, err = e.Install(context.Background(), InstallRequest{
		Name:       "foo",
		SourceDir:  src,
		Scope:      store.ScopeProject,
		Agents:     []string{"claude-code"},
		Provenance: &Provenance{Source: "local", SourceType: lock.SourceNative},
	})
	require.NoError(t, err)

	canonical := filepath.Join(project, ".agents", "skills", "foo")
	assert.DirExists(t, canonical)
	assert.True(t, SymlinkStrategy{}.IsOwnedBy(filepath.Join(project, ".claude", "skills", "foo"), canonical))

	entry, err := projectLock.Get("foo")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, lock.SourceNative, entry.SourceType)
	assert.NotEmpty(t, entry.ComputedHash)
}

func TestAgentReadingCanonicalRootKeepsContent(t *testing.T) {
	for _, mode := range []Mode{ModeSymlink, ModeCopy} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			require.NoError(t, os.MkdirAll(filepath.Join(env.home, ".config", "agents", "skills"), 0o755))
			_, err := env.registry.Refresh()
			require.NoError(t, err)

			project := t.TempDir()
			st := store.New(env.home, project)
			e, err := NewEngine(st, env.registry, WithStrategy(StrategyFor(mode)))
			require.NoError(t, err)

			src := writeSkill(t, filepath.Join(t.TempDir(), "notes"), "notes", map[string]string{"body.md": "keep me"})
			result, err := e.Install(ctx, InstallRequest{
				Name:      "notes",
				SourceDir: src,
				Scope:     store.ScopeProject,
				Agents:    []string{"amp", "claude-code"},
			})
			require.NoError(t, err)
			assert.Empty(t, result.Warnings)
			assert.ElementsMatch(t, []string{"amp", "claude-code"}, result.Linked)

			canonical := filepath.Join(project, ".agents", "skills", "notes")
			assertIntact := func() {
				t.Helper()
				assert.False(t, fsutil.IsSymlink(canonical))
				body, err := os.ReadFile(filepath.Join(canonical, "body.md"))
				require.NoError(t, err)
				assert.Equal(t, "keep me", string(body))
			}
			assertIntact()

			require.NoError(t, e.SetAgentLink(ctx, "notes", "amp", store.ScopeProject, true))
			assertIntact()

			err = e.SetAgentLink(ctx, "notes", "amp", store.ScopeProject, false)
			assert.True(t, errors.Is(err, ErrUnsafeLinkState))
			assertIntact()

			_, err = e.Unify(ctx, UnifyRequest{Name: "notes", Scope: store.ScopeProject, CurrentPath: canonical, Prefer: PreferCurrent})
			assert.True(t, errors.Is(err, ErrUnsafeLinkState))
			assertIntact()
		})
	}
}

func TestStrategyRefusesCanonicalTarget(t *testing.T) {
	dir := writeSkill(t, filepath.Join(t.TempDir(), "foo"), "foo", nil)
	for _, s := range []Strategy{SymlinkStrategy{}, CopyStrategy{}} {
		err := s.Create(dir, dir)
		assert.True(t, errors.Is(err, ErrUnsafeLinkState))
		assert.FileExists(t, filepath.Join(dir, "SKILL.md"))
	}
}

func TestSetAgentLink(t *testing.T) {
	ctx := context.Background()

	t.Run("link and unlink a managed symlink", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		writeSkill(t, env.canonical("foo"), "foo", nil)

		require.NoError(t, e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, true))
		assert.True(t, IsAssociation(env.agentPath("codex", "foo"), env.canonical("foo")))

		require.NoError(t, e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, false))
		_, err := os.Lstat(env.agentPath("codex", "foo"))
		assert.True(t, os.IsNotExist(err))
		assert.DirExists(t, env.canonical("foo"))
	})

	t.Run("unlink of absent target succeeds", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		assert.NoError(t, e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, false))
	})

	t.Run("unlink refuses a symlink pointing elsewhere", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		writeSkill(t, env.canonical("foo"), "foo", nil)
		elsewhere := writeSkill(t, filepath.Join(env.home, "elsewhere", "foo"), "foo", nil)
		target := env.agentPath("codex", "foo")
		require.NoError(t, os.Symlink(elsewhere, target))

		err := e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsafeLinkState))
		assert.Contains(t, err.Error(), "link points elsewhere, aborted")

		got, err := os.Readlink(target)
		require.NoError(t, err)
		assert.Equal(t, elsewhere, got)
	})

	t.Run("unlink accepts a relative link through an aliased path", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		writeSkill(t, env.canonical("foo"), "foo", nil)
		target := env.agentPath("codex", "foo")
		require.NoError(t, os.Symlink(filepath.Join("..", "..", ".agents", "skills", "foo"), target))

		require.NoError(t, e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, false))
		_, err := os.Lstat(target)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("unlink refuses an unmarked directory in symlink mode", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		writeSkill(t, env.canonical("foo"), "foo", nil)
		target := writeSkill(t, env.agentPath("codex", "foo"), "foo", map[string]string{"mine.txt": "user data"})

		err := e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsafeLinkState))
		assert.Contains(t, err.Error(), "not a managed link, aborted")
		assert.FileExists(t, filepath.Join(target, "mine.txt"))
	})

	t.Run("unlink removes a marked copy in symlink mode", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		writeSkill(t, env.canonical("foo"), "foo", nil)
		target := writeSkill(t, env.agentPath("codex", "foo"), "foo", nil)
		require.NoError(t, WriteMarker(target, env.canonical("foo")))

		require.NoError(t, e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, false))
		assert.NoDirExists(t, target)
	})

	t.Run("unlink removes an unmarked directory in copy mode", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeCopy)
		writeSkill(t, env.canonical("foo"), "foo", nil)
		target := writeSkill(t, env.agentPath("codex", "foo"), "foo", nil)

		require.NoError(t, e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, false))
		assert.NoDirExists(t, target)
	})

	t.Run("link requires a canonical folder", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		err := e.SetAgentLink(ctx, "foo", "codex", store.ScopeGlobal, true)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("unknown agent", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		err := e.SetAgentLink(ctx, "foo", "cursor", store.ScopeGlobal, true)
		assert.True(t, errors.Is(err, agents.ErrAgentNotFound))
	})
}

func TestUnify(t *testing.T) {
	ctx := context.Background()

	t.Run("prefer canonical seeds a missing canonical copy", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		current := writeSkill(t, env.agentPath("codex", "foo"), "foo", map[string]string{"a.txt": "current"})

		result, err := e.Unify(ctx, UnifyRequest{Name: "foo", Scope: store.ScopeGlobal, CurrentPath: current, Prefer: PreferCanonical})
		require.NoError(t, err)
		assert.Equal(t, env.canonical("foo"), result.CanonicalPath)

		content, err := os.ReadFile(filepath.Join(env.canonical("foo"), "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "current", string(content))
		assert.True(t, SymlinkStrategy{}.IsOwnedBy(current, env.canonical("foo")))
		assert.Equal(t, []string{"foo"}, canonicalEntries(t, env))
	})

	t.Run("prefer canonical keeps existing canonical content", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		writeSkill(t, env.canonical("foo"), "foo", map[string]string{"a.txt": "canonical"})
		current := writeSkill(t, env.agentPath("codex", "foo"), "foo", map[string]string{"a.txt": "current"})

		_, err := e.Unify(ctx, UnifyRequest{Name: "foo", Scope: store.ScopeGlobal, CurrentPath: current, Prefer: PreferCanonical})
		require.NoError(t, err)

		content, err := os.ReadFile(filepath.Join(current, "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "canonical", string(content))
	})

	t.Run("prefer current replaces canonical content", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeCopy)
		writeSkill(t, env.canonical("foo"), "foo", map[string]string{"old.txt": "canonical"})
		current := writeSkill(t, env.agentPath("codex", "foo"), "foo", map[string]string{"new.txt": "current"})

		result, err := e.Unify(ctx, UnifyRequest{Name: "foo", Scope: store.ScopeGlobal, CurrentPath: current, Prefer: PreferCurrent})
		require.NoError(t, err)
		assert.Equal(t, ModeCopy, result.Mode)

		assert.NoFileExists(t, filepath.Join(env.canonical("foo"), "old.txt"))
		assert.FileExists(t, filepath.Join(env.canonical("foo"), "new.txt"))
		assert.True(t, CopyStrategy{}.IsOwnedBy(current, env.canonical("foo")))
	})

	t.Run("missing current path", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		_, err := e.Unify(ctx, UnifyRequest{Name: "foo", Scope: store.ScopeGlobal, CurrentPath: env.agentPath("codex", "foo"), Prefer: PreferCanonical})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("invalid preference", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		_, err := e.Unify(ctx, UnifyRequest{Name: "foo", Scope: store.ScopeGlobal, CurrentPath: env.home, Prefer: "both"})
		assert.Error(t, err)
	})

	t.Run("already managed path is left alone", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		writeSkill(t, env.canonical("foo"), "foo", nil)
		current := env.agentPath("codex", "foo")
		require.NoError(t, os.Symlink(env.canonical("foo"), current))

		result, err := e.Unify(ctx, UnifyRequest{Name: "foo", Scope: store.ScopeGlobal, CurrentPath: current, Prefer: PreferCurrent})
		require.NoError(t, err)
		assert.Contains(t, result.Message, "already linked")
		assert.FileExists(t, filepath.Join(env.canonical("foo"), "SKILL.md"))
	})

	t.Run("canonical folder itself is refused", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.engine(t, ModeSymlink)
		writeSkill(t, env.canonical("foo"), "foo", nil)

		_, err := e.Unify(ctx, UnifyRequest{Name: "foo", Scope: store.ScopeGlobal, CurrentPath: env.canonical("foo"), Prefer: PreferCurrent})
		assert.True(t, errors.Is(err, ErrUnsafeLinkState))
		assert.FileExists(t, filepath.Join(env.canonical("foo"), "SKILL.md"))
	})
}

func TestDeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeSymlink)
	ctx := context.Background()

	src := writeSkill(t, filepath.Join(t.TempDir(), "foo"), "foo", nil)
	_, err := e.Install(ctx, InstallRequest{
		Name:       "foo",
		SourceDir:  src,
		Scope:      store.ScopeGlobal,
		Agents:     []string{"claude-code", "codex"},
		Provenance: &Provenance{Source: "local", SourceType: lock.SourceNative},
	})
	require.NoError(t, err)

	result, err := e.Delete(ctx, "foo", store.ScopeGlobal)
	require.NoError(t, err)
	assert.True(t, result.CanonicalRemoved)
	assert.True(t, result.LockRemoved)
	assert.Len(t, result.RemovedPaths, 2)
	assert.Empty(t, result.Warnings)

	assert.NoDirExists(t, env.canonical("foo"))
	for _, agent := range []string{"claude-code", "codex"} {
		_, err := os.Lstat(env.agentPath(agent, "foo"))
		assert.True(t, os.IsNotExist(err))
	}
	entry, err := env.lock.Get("foo")
	require.NoError(t, err)
	assert.Nil(t, entry)

	again, err := e.Delete(ctx, "foo", store.ScopeGlobal)
	require.NoError(t, err)
	assert.False(t, again.CanonicalRemoved)
	assert.False(t, again.LockRemoved)
	assert.Empty(t, again.RemovedPaths)
}

func TestCheckCanonical(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine(t, ModeSymlink)

	check, err := e.CheckCanonical("Foo Bar", store.ScopeGlobal)
	require.NoError(t, err)
	assert.False(t, check.Exists)
	assert.Equal(t, env.canonical("foo-bar"), check.CanonicalPath)

	writeSkill(t, env.canonical("foo-bar"), "Foo Bar", nil)
	check, err = e.CheckCanonical("Foo Bar", store.ScopeGlobal)
	require.NoError(t, err)
	assert.True(t, check.Exists)
}
