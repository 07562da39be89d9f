package main

import (
	"fmt"
	"os"

	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/link"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type UnifyConfig struct {
	Path   string
	Prefer string
	DryRun bool
}

func NewUnifyConfig() *UnifyConfig {
	return &UnifyConfig{
		Prefer: string(link.PreferCanonical),
	}
}

var unifyCmd = &cobra.Command{
	Use:   "unify <skill>",
	Short: "Replace an unmanaged copy with a link to the canonical skill",
	Long: `Adopt an unmanaged or mixed skill folder into the canonical store.

  --prefer canonical  keep the canonical copy (seeded from the folder if missing)
  --prefer current    replace the canonical copy with the folder's content

The folder is then replaced by a managed association. Use --dry-run to see
the content difference first.

Examples:
  skillkit unify notes --path ~/.codex/skills/notes
  skillkit unify notes --path ~/.codex/skills/notes --prefer current --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		return runUnify(cmd, a, args[0], getUnifyConfigFromFlags(cmd))
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <skill>",
	Short: "Show how a skill folder differs from the canonical copy",
	Long: `Print a unified diff between the canonical copy of a skill and another folder
holding the same skill.

Example:
  skillkit diff notes --path ~/.codex/skills/notes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		path, err := cmd.Flags().GetString("path")
		if err != nil {
			return err
		}
		return runDiff(a, args[0], path)
	},
}

func init() {
	defaults := NewUnifyConfig()
	unifyCmd.Flags().String("path", defaults.Path, "Path of the folder to unify")
	unifyCmd.Flags().String("prefer", defaults.Prefer, "Which content wins (canonical, current)")
	unifyCmd.Flags().Bool("dry-run", defaults.DryRun, "Show the diff without changing anything")
	unifyCmd.MarkFlagRequired("path")

	diffCmd.Flags().String("path", "", "Path of the folder to compare")
	diffCmd.MarkFlagRequired("path")
}

func getUnifyConfigFromFlags(cmd *cobra.Command) *UnifyConfig {
	config := NewUnifyConfig()
	if v, err := cmd.Flags().GetString("path"); err == nil {
		config.Path = v
	}
	if v, err := cmd.Flags().GetString("prefer"); err == nil {
		config.Prefer = v
	}
	if v, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = v
	}
	return config
}

func runUnify(cmd *cobra.Command, a *app, name string, config *UnifyConfig) error {
	prefer, err := link.ParsePrefer(config.Prefer)
	if err != nil {
		return err
	}
	current := fsutil.ExpandHome(config.Path, a.settings.HomeDir)

	if config.DryRun {
		presenter.Info(fmt.Sprintf("Dry run: unify %s from %s preferring %s", name, current, prefer))
		return runDiff(a, name, config.Path)
	}

	engine, err := a.engine()
	if err != nil {
		return err
	}
	result, err := engine.Unify(cmd.Context(), link.UnifyRequest{
		Name:        name,
		Scope:       a.scope(),
		CurrentPath: current,
		Prefer:      prefer,
	})
	if err != nil {
		return err
	}

	presenter.Success(fmt.Sprintf("%s: %s", result.Name, result.Message))
	presenter.Info(fmt.Sprintf("Canonical: %s", result.CanonicalPath))
	return nil
}

func runDiff(a *app, name, path string) error {
	canonical, err := a.store.SkillPath(name, a.scope())
	if err != nil {
		return err
	}
	other := fsutil.ExpandHome(path, a.settings.HomeDir)
	if !fsutil.IsDir(other) {
		return errors.Wrapf(link.ErrNotFound, "folder %s", other)
	}
	if !fsutil.IsDir(canonical) {
		presenter.Warning(fmt.Sprintf("No canonical copy of %s yet; every file would be added", name))
	}

	diff, err := link.Diff(canonical, other)
	if err != nil {
		return err
	}
	if diff == "" {
		presenter.Success("No differences")
		return nil
	}
	fmt.Fprint(os.Stdout, diff)
	return nil
}
