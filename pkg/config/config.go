// Package config loads skillkit settings from viper (config file, SKILLKIT_*
// environment variables and bound CLI flags) into a typed Settings value.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// SyncMode selects how new associations are materialised.
type SyncMode string

// Sync modes
const (
	SyncModeSymlink SyncMode = "symlink"
	SyncModeCopy    SyncMode = "copy"
)

const (
	// EnvPrefix is the prefix for environment overrides, e.g. SKILLKIT_SYNC_MODE.
	EnvPrefix = "SKILLKIT"
	// AppName names the per-user config directory.
	AppName = "skillkit"

	defaultScanDepth = 5
)

// DefaultScanIgnore lists the directory names skipped while walking scan roots.
var DefaultScanIgnore = []string{"node_modules", ".git", "target", "dist"}

// Settings is the effective configuration.
type Settings struct {
	SyncMode       SyncMode `mapstructure:"sync_mode" json:"syncMode" yaml:"sync_mode"`
	ScanRoots      []string `mapstructure:"scan_roots" json:"scanRoots" yaml:"scan_roots"`
	ScanDepth      int      `mapstructure:"scan_depth" json:"scanDepth" yaml:"scan_depth"`
	ScanIgnore     []string `mapstructure:"scan_ignore" json:"scanIgnore" yaml:"scan_ignore"`
	BackupDir      string   `mapstructure:"backup_dir" json:"backupDir" yaml:"backup_dir"`
	LastBackupTime string   `mapstructure:"last_backup_time" json:"lastBackupTime,omitempty" yaml:"last_backup_time,omitempty"`
	HomeDir        string   `mapstructure:"home_dir" json:"homeDir" yaml:"home_dir"`
	ConfigDir      string   `mapstructure:"config_dir" json:"configDir" yaml:"config_dir"`
	LogLevel       string   `mapstructure:"log_level" json:"logLevel" yaml:"log_level"`
	LogFormat      string   `mapstructure:"log_format" json:"logFormat" yaml:"log_format"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sync_mode", string(SyncModeSymlink))
	v.SetDefault("scan_roots", []string{})
	v.SetDefault("scan_depth", defaultScanDepth)
	v.SetDefault("scan_ignore", DefaultScanIgnore)
	v.SetDefault("backup_dir", "")
	v.SetDefault("last_backup_time", "")
	v.SetDefault("home_dir", "")
	v.SetDefault("config_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "fmt")
}

// Init wires env and config-file lookup into v the way the CLI expects.
// A missing config file is not an error.
func Init(v *viper.Viper) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join("$HOME", "."+AppName))
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load decodes the current viper state into Settings and fills in derived
// defaults such as the home and config directories.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create settings decoder")
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}

	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) normalize() error {
	mode, err := ParseSyncMode(string(s.SyncMode))
	if err != nil {
		return err
	}
	s.SyncMode = mode

	if s.ScanDepth <= 0 {
		s.ScanDepth = defaultScanDepth
	}
	if len(s.ScanIgnore) == 0 {
		s.ScanIgnore = append([]string(nil), DefaultScanIgnore...)
	}

	if s.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		s.HomeDir = home
	}

	if s.ConfigDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = filepath.Join(s.HomeDir, ".config")
		}
		s.ConfigDir = filepath.Join(dir, AppName)
	}

	roots := make([]string, 0, len(s.ScanRoots))
	for _, root := range s.ScanRoots {
		if root = strings.TrimSpace(root); root != "" {
			roots = append(roots, NormalizePath(root, s.HomeDir))
		}
	}
	s.ScanRoots = roots

	if s.BackupDir = strings.TrimSpace(s.BackupDir); s.BackupDir == "" {
		s.BackupDir = filepath.Join(s.HomeDir, "."+AppName, "backups")
	} else {
		s.BackupDir = NormalizePath(s.BackupDir, s.HomeDir)
	}
	return nil
}

// ParseSyncMode validates a sync mode string; empty means symlink.
func ParseSyncMode(mode string) (SyncMode, error) {
	switch SyncMode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", SyncModeSymlink:
		return SyncModeSymlink, nil
	case SyncModeCopy:
		return SyncModeCopy, nil
	default:
		return "", errors.Errorf("invalid sync mode %q: must be one of symlink, copy", mode)
	}
}

// NormalizePath expands "~" and cleans the path so scan roots compare equal
// regardless of how the user typed them.
func NormalizePath(path, home string) string {
	switch {
	case path == "~":
		path = home
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(home, path[2:])
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Persist stores key=value in v and writes the config file back. When no
// config file has been read yet it is created under ~/.skillkit.
func Persist(v *viper.Viper, home, key string, value any) (string, error) {
	v.Set(key, value)

	path := v.ConfigFileUsed()
	if path == "" {
		path = filepath.Join(home, "."+AppName, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create config directory")
	}
	if err := v.WriteConfigAs(path); err != nil {
		return "", errors.Wrapf(err, "failed to write config file %s", path)
	}
	return path, nil
}

// AddScanRoot returns roots with root appended unless already present.
func AddScanRoot(roots []string, root string) []string {
	for _, r := range roots {
		if r == root {
			return roots
		}
	}
	return append(roots, root)
}

// RemoveScanRoot returns roots without root.
func RemoveScanRoot(roots []string, root string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if r != root {
			out = append(out, r)
		}
	}
	return out
}
