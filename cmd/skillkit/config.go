package main

import (
	"fmt"
	"os"

	"github.com/jingkaihe/skillkit/pkg/config"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change skillkit settings",
	Long: `Show the effective settings or persist changes to the config file
(~/.skillkit/config.yaml unless another file is in use).`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := getOutputFormat(cmd)
		if err != nil {
			return err
		}
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if format == formatTable {
			format = formatYAML
		}
		if path := viper.ConfigFileUsed(); path != "" && format == formatYAML {
			presenter.Info(fmt.Sprintf("# %s", path))
		}
		return writeStructured(os.Stdout, format, settings)
	},
}

var configSetSyncModeCmd = &cobra.Command{
	Use:   "set-sync-mode <symlink|copy>",
	Short: "Choose how new associations are created",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		mode, err := config.ParseSyncMode(args[0])
		if err != nil {
			return err
		}
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		path, err := config.Persist(viper.GetViper(), settings.HomeDir, "sync_mode", string(mode))
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Sync mode set to %s in %s", mode, path))
		return nil
	},
}

var configSetBackupDirCmd = &cobra.Command{
	Use:   "set-backup-dir <dir>",
	Short: "Choose where skillkit backup writes archives",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		dir := config.NormalizePath(args[0], settings.HomeDir)
		path, err := config.Persist(viper.GetViper(), settings.HomeDir, "backup_dir", dir)
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Backup directory set to %s in %s", dir, path))
		return nil
	},
}

var configScanRootCmd = &cobra.Command{
	Use:   "scan-root",
	Short: "Manage extra directories walked by scan --general",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var configScanRootAddCmd = &cobra.Command{
	Use:   "add <dir>",
	Short: "Add a scan root",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return updateScanRoots(args[0], true)
	},
}

var configScanRootRemoveCmd = &cobra.Command{
	Use:   "remove <dir>",
	Short: "Remove a scan root",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return updateScanRoots(args[0], false)
	},
}

func init() {
	addOutputFlag(configShowCmd, formatYAML)

	configScanRootCmd.AddCommand(configScanRootAddCmd)
	configScanRootCmd.AddCommand(configScanRootRemoveCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetSyncModeCmd)
	configCmd.AddCommand(configSetBackupDirCmd)
	configCmd.AddCommand(configScanRootCmd)
}

func updateScanRoots(dir string, add bool) error {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	root := config.NormalizePath(dir, settings.HomeDir)

	var roots []string
	if add {
		roots = config.AddScanRoot(settings.ScanRoots, root)
	} else {
		roots = config.RemoveScanRoot(settings.ScanRoots, root)
	}

	path, err := config.Persist(viper.GetViper(), settings.HomeDir, "scan_roots", roots)
	if err != nil {
		return err
	}
	if add {
		presenter.Success(fmt.Sprintf("Added scan root %s in %s", root, path))
	} else {
		presenter.Success(fmt.Sprintf("Removed scan root %s in %s", root, path))
	}
	return nil
}
