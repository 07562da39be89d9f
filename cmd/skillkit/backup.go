package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jingkaihe/skillkit/pkg/backup"
	"github.com/jingkaihe/skillkit/pkg/config"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BackupConfig holds configuration for the backup command
type BackupConfig struct {
	Dir string
}

// NewBackupConfig creates a new BackupConfig with default values
func NewBackupConfig() *BackupConfig {
	return &BackupConfig{}
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the canonical skills directory into a ZIP file",
	Long: `Write the whole canonical skills directory to skills_backup_<yyyyMMddHHmmss>.zip
in the backup directory (backup_dir, ~/.skillkit/backups by default) and record
the time of the backup in the config file.

Examples:
  skillkit backup
  skillkit backup --dir ~/Dropbox/skills
  skillkit backup --project web -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := getOutputFormat(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		config := getBackupConfigFromFlags(cmd)

		result, err := runBackup(cmd, a, config)
		if err != nil {
			return err
		}

		if format != formatTable {
			return writeStructured(os.Stdout, format, result)
		}
		presenter.Success(fmt.Sprintf("Backed up %d files to %s", result.Files, result.Path))
		return nil
	},
}

func init() {
	backupCmd.Flags().String("dir", "", "Directory to write the archive to (defaults to backup_dir)")
	addOutputFlag(backupCmd, formatTable)
}

func getBackupConfigFromFlags(cmd *cobra.Command) *BackupConfig {
	config := NewBackupConfig()
	if dir, err := cmd.Flags().GetString("dir"); err == nil {
		config.Dir = strings.TrimSpace(dir)
	}
	return config
}

func runBackup(cmd *cobra.Command, a *app, cfg *BackupConfig) (*backup.Result, error) {
	root, err := a.store.Root(a.scope())
	if err != nil {
		return nil, err
	}
	dir := a.settings.BackupDir
	if cfg.Dir != "" {
		dir = config.NormalizePath(cfg.Dir, a.settings.HomeDir)
	}

	result, err := backup.Archive(cmd.Context(), root, dir, time.Now())
	if err != nil {
		return nil, err
	}

	if _, err := config.Persist(viper.GetViper(), a.settings.HomeDir, "last_backup_time", result.DisplayTime()); err != nil {
		presenter.Warning(fmt.Sprintf("Backup written but the backup time was not saved: %v", err))
	}
	return result, nil
}
