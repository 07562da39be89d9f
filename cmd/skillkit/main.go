package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jingkaihe/skillkit/pkg/config"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "skillkit",
	Short: "Keep one canonical set of agent skills and link it into every agent app",
	Long: `skillkit keeps a canonical copy of each skill under ~/.agents/skills (or
<project>/.agents/skills) and projects it into the skill directories of every
installed agent app, either as a symlink or as a tracked copy.

It can also discover skills that were dropped into agent directories by hand
and adopt them into the canonical store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		return logger.Configure(settings.LogLevel, settings.LogFormat, os.Stderr)
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func init() {
	if err := config.Init(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "fmt", "Log format (fmt, text, json)")
	flags.String("home-dir", "", "Override the home directory used for global skills and agent paths")
	flags.String("config-dir", "", "Directory holding the user agent and project registries")
	flags.StringP("project", "p", "", "Project name or path; switches commands to project scope")

	bindFlags(flags, map[string]string{
		"log_level":  "log-level",
		"log_format": "log-format",
		"home_dir":   "home-dir",
		"config_dir": "config-dir",
	})

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
	rootCmd.AddCommand(unifyCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// bindFlags binds viper keys to flags of the same meaning.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to bind flag %s: %v\n", name, err)
		}
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
