package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jingkaihe/skillkit/pkg/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	home := t.TempDir()
	r, err := NewRegistry(WithHomeDir(home), WithConfigDir(filepath.Join(home, ".config", "skillkit")))
	require.NoError(t, err)
	return r, home
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}

func writeUserFile(t *testing.T, r *Registry, content string) {
	t.Helper()
	mkdir(t, filepath.Dir(r.UserFilePath()))
	require.NoError(t, os.WriteFile(r.UserFilePath(), []byte(content), 0o644))
}

func ids(apps []App) []string {
	out := make([]string, 0, len(apps))
	for _, app := range apps {
		out = append(out, app.ID)
	}
	return out
}

func TestBuiltins(t *testing.T) {
	apps := Builtins()
	assert.Len(t, apps, 21)

	seen := map[string]bool{}
	for _, app := range apps {
		assert.False(t, seen[app.ID], "duplicate id %s", app.ID)
		seen[app.ID] = true
		assert.True(t, app.IsInternal())
		assert.NotEmpty(t, app.GlobalPath)
		assert.NotEmpty(t, app.ProjectPath)
	}
}

func TestAllMergesUserEntries(t *testing.T) {
	r, _ := newTestRegistry(t)
	writeUserFile(t, r, `[
  {"id": "codex", "displayName": "My Codex", "globalPath": "~/codex-skills"},
  {"id": "mine", "displayName": "Mine", "globalPath": "~/.claude/skills"},
  {"id": "extra", "displayName": "Extra", "globalPath": "/opt/extra/skills", "projectPath": ".extra/skills"}
]`)

	apps, err := r.All()
	require.NoError(t, err)

	got := ids(apps)
	assert.NotContains(t, got, "claude-code", "built-in with same global path is replaced")
	assert.Contains(t, got, "codex")
	assert.Contains(t, got, "mine")
	assert.Contains(t, got, "extra")
	assert.Len(t, apps, 21-2+3)

	codex, err := r.Get("codex")
	require.NoError(t, err)
	assert.Equal(t, "My Codex", codex.DisplayName)
	assert.True(t, codex.IsUserCustom)

	paths, err := r.ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, Paths{GlobalPath: "/opt/extra/skills", ProjectPath: ".extra/skills"}, paths["extra"])
}

func TestInstalledIsMemoised(t *testing.T) {
	r, home := newTestRegistry(t)
	mkdir(t, filepath.Join(home, ".claude", "skills"))

	installed, err := r.Installed()
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-code"}, ids(installed))

	mkdir(t, filepath.Join(home, ".codex", "skills"))

	installed, err = r.Installed()
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-code"}, ids(installed), "memo is not invalidated implicitly")

	installed, err = r.Refresh()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"claude-code", "codex"}, ids(installed))
}

func TestInstalledIgnoresFiles(t *testing.T) {
	r, home := newTestRegistry(t)
	mkdir(t, filepath.Join(home, ".cursor"))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".cursor", "skills"), []byte("x"), 0o644))

	installed, err := r.Refresh()
	require.NoError(t, err)
	assert.Empty(t, installed)
}

func TestAddUpdateRemove(t *testing.T) {
	r, home := newTestRegistry(t)
	mkdir(t, filepath.Join(home, ".claude", "skills"))
	mkdir(t, filepath.Join(home, "tools", "skills"))
	mkdir(t, filepath.Join(home, "tools", "other"))

	app, err := r.Add("  My Tool ", "~/tools/skills", ".tool/skills")
	require.NoError(t, err)
	_, err = uuid.Parse(app.ID)
	assert.NoError(t, err)
	assert.Equal(t, "My Tool", app.DisplayName)
	assert.True(t, app.IsUserCustom)

	installed, err := r.Installed()
	require.NoError(t, err)
	assert.Contains(t, ids(installed), app.ID, "add refreshes the memo")

	updated, err := r.Update(app.ID, "My Tool", "~/tools/other", "")
	require.NoError(t, err)
	assert.Equal(t, "~/tools/other", updated.GlobalPath)

	got, err := r.Get(app.ID)
	require.NoError(t, err)
	assert.Equal(t, "~/tools/other", got.GlobalPath)
	assert.Empty(t, got.ProjectPath)

	require.NoError(t, r.Remove(app.ID))
	_, err = r.Get(app.ID)
	assert.True(t, errors.Is(err, ErrAgentNotFound))

	installed, err = r.Installed()
	require.NoError(t, err)
	assert.NotContains(t, ids(installed), app.ID)
}

func TestValidation(t *testing.T) {
	r, home := newTestRegistry(t)
	mkdir(t, filepath.Join(home, ".claude", "skills"))
	mkdir(t, filepath.Join(home, "tools", "skills"))

	tests := []struct {
		name        string
		displayName string
		globalPath  string
		expected    error
	}{
		{"empty name", " ", "~/tools/skills", ErrInvalidAgent},
		{"empty path", "Tool", "", ErrInvalidAgent},
		{"name collides case-insensitively", "claude code", "~/tools/skills", ErrConflict},
		{"path collides", "Tool", filepath.Join(home, ".claude", "skills"), ErrConflict},
		{"path does not exist", "Tool", "~/missing", ErrInvalidAgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Add(tt.displayName, tt.globalPath, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expected), "got %v", err)
		})
	}
}

func TestUpdateAllowsOwnValues(t *testing.T) {
	r, home := newTestRegistry(t)
	mkdir(t, filepath.Join(home, "tools", "skills"))

	app, err := r.Add("Tool", "~/tools/skills", "")
	require.NoError(t, err)

	_, err = r.Update(app.ID, "TOOL", "~/tools/skills", ".tool/skills")
	assert.NoError(t, err)
}

func TestInternalAgentsAreImmutable(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.Remove("claude-code")
	assert.True(t, errors.Is(err, ErrInternalAgent))

	_, err = r.Update("codex", "Codex", "~/.codex/skills", "")
	assert.True(t, errors.Is(err, ErrInternalAgent))

	err = r.Remove("does-not-exist")
	assert.True(t, errors.Is(err, ErrAgentNotFound))
}

func TestCorruptUserFile(t *testing.T) {
	r, _ := newTestRegistry(t)
	writeUserFile(t, r, "{not json")

	_, err := r.All()
	assert.Error(t, err)
}

func TestSkillsDir(t *testing.T) {
	r, home := newTestRegistry(t)
	app := App{ID: "x", GlobalPath: "~/.x/skills", ProjectPath: ".x/skills"}

	dir, err := r.SkillsDir(app, store.ScopeGlobal, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".x", "skills"), dir)

	dir, err = r.SkillsDir(app, store.ScopeProject, "/work/proj")
	require.NoError(t, err)
	assert.Equal(t, "/work/proj/.x/skills", dir)

	_, err = r.SkillsDir(App{ID: "g", GlobalPath: "~/g"}, store.ScopeProject, "/work/proj")
	assert.Error(t, err)

	_, err = r.SkillsDir(app, store.ScopeProject, "")
	assert.Error(t, err)
}
