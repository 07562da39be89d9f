package main

import (
	"os"
	"strings"

	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/scan"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type ScanConfig struct {
	GlobalOnly  bool
	ProjectOnly bool
	General     bool
	Name        string
}

func NewScanConfig() *ScanConfig {
	return &ScanConfig{}
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List managed, unmanaged and mixed skills",
	Long: `Scan the canonical skill stores and the skill directories of every installed
agent app and classify each skill folder:

  managed    the canonical copy, with the agents that hold a link to it
  unmanaged  a standalone folder in an agent directory
  mixed      an unmanaged folder whose name is also a managed skill

With --general the configured scan roots are walked as well.

Examples:
  skillkit scan
  skillkit scan --project web -o json
  skillkit scan --general --name notes`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getScanConfigFromFlags(cmd)
		format, err := getOutputFormat(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		return runScan(cmd, a, config, format)
	},
}

func init() {
	defaults := NewScanConfig()
	scanCmd.Flags().Bool("global-only", defaults.GlobalOnly, "Only scan the global scope")
	scanCmd.Flags().Bool("project-only", defaults.ProjectOnly, "Only scan the project scope (requires --project)")
	scanCmd.Flags().Bool("general", defaults.General, "Also walk the configured scan roots")
	scanCmd.Flags().String("name", defaults.Name, "Only show skills with this name")
	addOutputFlag(scanCmd, formatTable)
}

func getScanConfigFromFlags(cmd *cobra.Command) *ScanConfig {
	config := NewScanConfig()
	if v, err := cmd.Flags().GetBool("global-only"); err == nil {
		config.GlobalOnly = v
	}
	if v, err := cmd.Flags().GetBool("project-only"); err == nil {
		config.ProjectOnly = v
	}
	if v, err := cmd.Flags().GetBool("general"); err == nil {
		config.General = v
	}
	if v, err := cmd.Flags().GetString("name"); err == nil {
		config.Name = v
	}
	return config
}

func runScan(cmd *cobra.Command, a *app, config *ScanConfig, format outputFormat) error {
	if config.GlobalOnly && config.ProjectOnly {
		return errors.New("--global-only and --project-only cannot be used together")
	}
	if config.ProjectOnly && a.store.ProjectRoot == "" {
		return errors.New("--project-only requires --project")
	}

	opts := []scan.Option{scan.WithScopes(!config.ProjectOnly, !config.GlobalOnly)}
	if config.General {
		opts = append(opts, scan.WithScanRoots(a.settings.ScanRoots, a.settings.ScanDepth, a.settings.ScanIgnore))
	}
	scanner, err := a.scanner(opts...)
	if err != nil {
		return err
	}

	result, err := scanner.Scan(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "scan failed")
	}

	skills := result.All()
	if config.Name != "" {
		skills = result.Find(config.Name)
	}

	if format != formatTable {
		if skills == nil {
			skills = []*scan.Skill{}
		}
		return writeStructured(os.Stdout, format, skills)
	}

	if len(skills) == 0 {
		presenter.Info("No skills found")
		return nil
	}

	rows := make([][]string, 0, len(skills))
	for _, s := range skills {
		rows = append(rows, []string{
			s.Name,
			string(s.Status()),
			string(s.Scope),
			dash(strings.Join(s.Agents(), ",")),
			dash(skillFlags(s)),
			s.Path,
		})
	}
	presenter.Table([]string{"NAME", "STATUS", "SCOPE", "AGENTS", "FLAGS", "PATH"}, rows)
	return nil
}

func skillFlags(s *scan.Skill) string {
	var flags []string
	if s.NameConflict() {
		flags = append(flags, "name-conflict")
	}
	if s.ConflictWithManaged() {
		flags = append(flags, "conflicts-with-managed")
	}
	if s.Provenance != nil && s.Provenance.SourceType != "" {
		flags = append(flags, s.Provenance.SourceType)
	}
	return strings.Join(flags, ",")
}
