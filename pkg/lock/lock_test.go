package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGlobalStore(t *testing.T) (*GlobalStore, *time.Time) {
	t.Helper()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewGlobalStore(t.TempDir())
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestGlobalStoreReadMissing(t *testing.T) {
	s, _ := newTestGlobalStore(t)

	f, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, GlobalVersion, f.Version)
	assert.Empty(t, f.Skills)

	entry, err := s.Get("notes")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestGlobalStoreAddPreservesInstalledAt(t *testing.T) {
	s, clock := newTestGlobalStore(t)

	require.NoError(t, s.Add("notes", Entry{
		Source:     "acme/skills",
		SourceType: SourceGitHub,
		SourceURL:  "https://github.com/acme/skills.git",
		SkillPath:  "skills/notes",
	}))

	first, err := s.Get("notes")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "2026-01-02T03:04:05Z", first.InstalledAt)
	assert.Equal(t, first.InstalledAt, first.UpdatedAt)

	*clock = clock.Add(time.Hour)
	require.NoError(t, s.Add("notes", Entry{
		Source:          "acme/skills",
		SourceType:      SourceGitHub,
		SkillFolderHash: "abc",
	}))

	second, err := s.Get("notes")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05Z", second.InstalledAt)
	assert.Equal(t, "2026-01-02T04:04:05Z", second.UpdatedAt)
	assert.Equal(t, "abc", second.SkillFolderHash)
	assert.Empty(t, second.SkillPath, "entries are replaced, not merged")
}

func TestGlobalStoreRemove(t *testing.T) {
	s, _ := newTestGlobalStore(t)

	removed, err := s.Remove("notes")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoFileExists(t, s.Path(), "removing from a missing lock does not create it")

	require.NoError(t, s.Add("notes", Entry{Source: "local", SourceType: SourceNative}))

	removed, err = s.Remove("notes")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove("notes")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestGlobalStoreOnDiskFormat(t *testing.T) {
	s, _ := newTestGlobalStore(t)
	require.NoError(t, s.Add("notes", Entry{Source: "acme/skills", SourceType: SourceGitHub, SourceURL: "u"}))
	require.NoError(t, s.SetLastSelectedAgents([]string{"claude-code", "codex"}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(3), raw["version"])
	assert.Equal(t, []interface{}{"claude-code", "codex"}, raw["lastSelectedAgents"])

	skills := raw["skills"].(map[string]interface{})
	notes := skills["notes"].(map[string]interface{})
	assert.Equal(t, "github", notes["sourceType"])
	assert.Equal(t, "u", notes["sourceUrl"])
	assert.NotContains(t, notes, "skillPath")
}

func TestGlobalStoreOlderVersionReadsEmpty(t *testing.T) {
	s, _ := newTestGlobalStore(t)
	writeFile(t, s.Path(), `{"version": 2, "skills": {"old": {"source": "x", "sourceType": "github", "sourceUrl": "", "installedAt": "", "updatedAt": ""}}}`)

	f, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, f.Skills)

	require.NoError(t, s.Add("new", Entry{Source: "y"}))
	f, err = s.Read()
	require.NoError(t, err)
	assert.Len(t, f.Skills, 1)
	assert.Contains(t, f.Skills, "new")
}

func TestGlobalStoreCorruptFile(t *testing.T) {
	s, _ := newTestGlobalStore(t)
	writeFile(t, s.Path(), "{broken")

	_, err := s.Read()
	assert.Error(t, err)
}

func TestGlobalStoreCheckUpdateAndDrift(t *testing.T) {
	s, _ := newTestGlobalStore(t)
	dir := filepath.Join(t.TempDir(), "notes")
	writeFile(t, filepath.Join(dir, "SKILL.md"), "---\nname: notes\n---\n")

	hash, err := HashFolder(dir)
	require.NoError(t, err)

	update, err := s.CheckUpdate("notes", "anything")
	require.NoError(t, err)
	assert.False(t, update, "no lock entry means no update")

	require.NoError(t, s.Add("notes", Entry{Source: "acme/skills", SourceType: SourceGitHub, SkillFolderHash: hash}))

	update, err = s.CheckUpdate("notes", hash)
	require.NoError(t, err)
	assert.False(t, update)

	update, err = s.CheckUpdate("notes", "other")
	require.NoError(t, err)
	assert.True(t, update)

	drift, current, err := s.Drift("notes", dir)
	require.NoError(t, err)
	assert.False(t, drift)
	assert.Equal(t, hash, current)

	writeFile(t, filepath.Join(dir, "SKILL.md"), "---\nname: notes\n---\nedited\n")
	drift, _, err = s.Drift("notes", dir)
	require.NoError(t, err)
	assert.True(t, drift)
}
