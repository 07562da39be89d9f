package main

import (
	"fmt"
	"strings"

	"github.com/jingkaihe/skillkit/pkg/link"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/staging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type InstallConfig struct {
	Dir       string
	Name      string
	Agents    []string
	AllAgents bool
}

func NewInstallConfig() *InstallConfig {
	return &InstallConfig{}
}

var installCmd = &cobra.Command{
	Use:   "install <source>",
	Short: "Install a skill into the canonical store and link it to agents",
	Long: `Install a skill from a local folder or a GitHub repository. The skill is copied
into the canonical store and linked into the selected agent apps using the
configured sync mode.

Sources:
  ./path/to/skill                         a local folder with a SKILL.md
  owner/repo                              a repository holding one skill
  owner/repo@v1.0 --name notes            pick a skill by name at a ref
  https://github.com/owner/repo/tree/main/skills/notes

Without --agent the agents selected by the previous install are used; if
there are none, every installed agent is linked.

Examples:
  skillkit install ./notes --agent claude-code --agent codex
  skillkit install acme/skills --dir skills/notes --all-agents
  skillkit install acme/skills --name lint --project web`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		return runInstall(cmd, a, args[0], getInstallConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewInstallConfig()
	installCmd.Flags().StringP("dir", "d", defaults.Dir, "Path to the skill folder inside the repository")
	installCmd.Flags().String("name", defaults.Name, "Pick the skill with this name when the repository holds several")
	installCmd.Flags().StringSliceP("agent", "a", defaults.Agents, "Agent app ids to link (repeatable)")
	installCmd.Flags().Bool("all-agents", defaults.AllAgents, "Link every installed agent app")
}

func getInstallConfigFromFlags(cmd *cobra.Command) *InstallConfig {
	config := NewInstallConfig()
	if v, err := cmd.Flags().GetString("dir"); err == nil {
		config.Dir = v
	}
	if v, err := cmd.Flags().GetString("name"); err == nil {
		config.Name = v
	}
	if v, err := cmd.Flags().GetStringSlice("agent"); err == nil {
		config.Agents = v
	}
	if v, err := cmd.Flags().GetBool("all-agents"); err == nil {
		config.AllAgents = v
	}
	return config
}

func runInstall(cmd *cobra.Command, a *app, source string, config *InstallConfig) error {
	ctx := cmd.Context()

	github := staging.NewGitHubStager()
	github.SkillPath = config.Dir
	github.Name = config.Name
	stager := &staging.Auto{
		Folder: &staging.FolderStager{HomeDir: a.settings.HomeDir},
		GitHub: github,
	}

	staged, err := stager.Stage(ctx, source)
	if err != nil {
		return errors.Wrapf(err, "failed to stage %s", source)
	}
	defer staged.Cleanup()

	agentIDs, err := selectAgents(a, config)
	if err != nil {
		return err
	}

	engine, err := a.engine()
	if err != nil {
		return err
	}

	result, err := engine.Install(ctx, link.InstallRequest{
		Name:       staged.Name,
		SourceDir:  staged.Dir,
		Scope:      a.scope(),
		Agents:     agentIDs,
		Provenance: staged.Provenance,
	})
	if err != nil {
		return err
	}

	presenter.Success(fmt.Sprintf("Installed %s to %s (%s)", result.Name, result.CanonicalPath, result.Mode))
	if len(result.Linked) > 0 {
		presenter.Info(fmt.Sprintf("Linked: %s", strings.Join(result.Linked, ", ")))
	} else {
		presenter.Info("No agent apps linked")
	}
	for _, w := range result.Warnings {
		presenter.Warning(w)
	}
	return nil
}

// selectAgents resolves which agents an install links.
func selectAgents(a *app, config *InstallConfig) ([]string, error) {
	if config.AllAgents || len(config.Agents) == 0 {
		if !config.AllAgents {
			file, err := a.globalLock.Read()
			if err == nil && len(file.LastSelectedAgents) > 0 {
				return file.LastSelectedAgents, nil
			}
		}
		installed, err := a.agents.Installed()
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(installed))
		for _, app := range installed {
			ids = append(ids, app.ID)
		}
		return ids, nil
	}
	return config.Agents, nil
}
