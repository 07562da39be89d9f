package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("home_dir", t.TempDir())
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newViper(t)

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, SyncModeSymlink, s.SyncMode)
	assert.Equal(t, 5, s.ScanDepth)
	assert.Equal(t, DefaultScanIgnore, s.ScanIgnore)
	assert.Empty(t, s.ScanRoots)
	assert.NotEmpty(t, s.ConfigDir)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, filepath.Join(v.GetString("home_dir"), ".skillkit", "backups"), s.BackupDir)
	assert.Empty(t, s.LastBackupTime)
}

func TestLoadOverrides(t *testing.T) {
	v := newViper(t)
	home := v.GetString("home_dir")
	v.Set("sync_mode", "COPY")
	v.Set("scan_roots", "~/work, /srv/skills")
	v.Set("scan_depth", "3")
	v.Set("config_dir", "/etc/skillkit")
	v.Set("backup_dir", "~/archive")

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "archive"), s.BackupDir)

	assert.Equal(t, SyncModeCopy, s.SyncMode)
	assert.Equal(t, []string{filepath.Join(home, "work"), "/srv/skills"}, s.ScanRoots)
	assert.Equal(t, 3, s.ScanDepth)
	assert.Equal(t, "/etc/skillkit", s.ConfigDir)
}

func TestLoadRejectsUnknownSyncMode(t *testing.T) {
	v := newViper(t)
	v.Set("sync_mode", "hardlink")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sync mode")
}

func TestParseSyncMode(t *testing.T) {
	tests := []struct {
		in       string
		expected SyncMode
		wantErr  bool
	}{
		{"", SyncModeSymlink, false},
		{"symlink", SyncModeSymlink, false},
		{" Copy ", SyncModeCopy, false},
		{"rsync", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := ParseSyncMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SKILLKIT_SYNC_MODE", "copy")
	t.Setenv("HOME", t.TempDir())

	v := viper.New()
	require.NoError(t, Init(v))

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, SyncModeCopy, s.SyncMode)
}

func TestPersist(t *testing.T) {
	v := newViper(t)
	home := v.GetString("home_dir")

	path, err := Persist(v, home, "sync_mode", "copy")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".skillkit", "config.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sync_mode: copy")
}

func TestScanRootHelpers(t *testing.T) {
	roots := AddScanRoot(nil, "/a")
	roots = AddScanRoot(roots, "/b")
	roots = AddScanRoot(roots, "/a")
	assert.Equal(t, []string{"/a", "/b"}, roots)

	assert.Equal(t, []string{"/b"}, RemoveScanRoot(roots, "/a"))
	assert.Equal(t, []string{"/a", "/b"}, RemoveScanRoot(roots, "/missing"))
}
