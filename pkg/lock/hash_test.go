package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHashFolderIsOrderIndependent(t *testing.T) {
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")

	writeFile(t, filepath.Join(a, "SKILL.md"), "---\nname: notes\n---\n")
	writeFile(t, filepath.Join(a, "scripts", "run.sh"), "echo run")
	writeFile(t, filepath.Join(a, "z.txt"), "z")

	// same content written in a different order
	writeFile(t, filepath.Join(b, "z.txt"), "z")
	writeFile(t, filepath.Join(b, "scripts", "run.sh"), "echo run")
	writeFile(t, filepath.Join(b, "SKILL.md"), "---\nname: notes\n---\n")

	ha, err := HashFolder(a)
	require.NoError(t, err)
	hb, err := HashFolder(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestHashFolderIgnoresMetadata(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "SKILL.md")
	writeFile(t, file, "content")

	before, err := HashFolder(dir)
	require.NoError(t, err)

	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(file, past, past))
	require.NoError(t, os.Chmod(file, 0o600))

	after, err := HashFolder(dir)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHashFolderChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "SKILL.md"), "one")

	before, err := HashFolder(dir)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "SKILL.md"), "two")
	after, err := HashFolder(dir)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	writeFile(t, filepath.Join(dir, "extra.md"), "")
	withExtra, err := HashFolder(dir)
	require.NoError(t, err)
	assert.NotEqual(t, after, withExtra, "an empty file still changes the hash")
}

func TestHashFolderSkipsVCSAndDeps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "SKILL.md"), "content")

	before, err := HashFolder(dir)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: main")
	writeFile(t, filepath.Join(dir, "lib", "node_modules", "x", "index.js"), "x")

	after, err := HashFolder(dir)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHashFolderMissing(t *testing.T) {
	_, err := HashFolder(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestHashFolderLayoutMatchesStoredHashes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "SKILL.md"), "x")
	writeFile(t, filepath.Join(dir, "sub", "a"), "bc")

	sum := sha256.Sum256([]byte("SKILL.md" + "x" + "sub/a" + "bc"))
	got, err := HashFolder(dir)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}
