package lock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectStoreAddAndRemove(t *testing.T) {
	root := t.TempDir()
	s := NewProjectStore(root)

	skill := filepath.Join(root, ".agents", "skills", "notes")
	writeFile(t, filepath.Join(skill, "SKILL.md"), "---\nname: notes\n---\n")

	require.NoError(t, s.Add("notes", "acme/skills", SourceGitHub, skill))

	entry, err := s.Get("notes")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "acme/skills", entry.Source)
	assert.Equal(t, SourceGitHub, entry.SourceType)

	hash, err := HashFolder(skill)
	require.NoError(t, err)
	assert.Equal(t, hash, entry.ComputedHash)

	f, err := s.Read()
	require.NoError(t, err)
	source, ok := f.GitHubSource("notes")
	assert.True(t, ok)
	assert.Equal(t, "acme/skills", source)

	removed, err := s.Remove("notes")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove("notes")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestProjectStoreSortedKeys(t *testing.T) {
	root := t.TempDir()
	s := NewProjectStore(root)
	skill := filepath.Join(root, "skill")
	writeFile(t, filepath.Join(skill, "SKILL.md"), "x")

	require.NoError(t, s.Add("zeta", "local", SourceNative, skill))
	require.NoError(t, s.Add("alpha", "local", SourceNative, skill))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	content := string(data)
	assert.Less(t, strings.Index(content, `"alpha"`), strings.Index(content, `"zeta"`))
}

func TestProjectStoreToleratesGarbage(t *testing.T) {
	root := t.TempDir()
	s := NewProjectStore(root)
	writeFile(t, s.Path(), "not json at all")

	f, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, f.Skills)
	assert.Equal(t, ProjectVersion, f.Version)
}

func TestProjectStoreUnknownSourceType(t *testing.T) {
	root := t.TempDir()
	s := NewProjectStore(root)
	writeFile(t, s.Path(), `{"version": 1, "skills": {"notes": {"source": "x", "sourceType": "zip", "computedHash": "h"}}}`)

	entry, err := s.Get("notes")
	require.NoError(t, err)
	assert.Equal(t, SourceUnknown, entry.SourceType)

	f, err := s.Read()
	require.NoError(t, err)
	_, ok := f.GitHubSource("notes")
	assert.False(t, ok)
}
