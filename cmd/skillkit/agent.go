package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/jingkaihe/skillkit/pkg/agents"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/spf13/cobra"
)

type AgentConfig struct {
	DisplayName string
	GlobalPath  string
	ProjectPath string
}

func NewAgentConfig() *AgentConfig {
	return &AgentConfig{}
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agent apps",
	Long:  `List the agent apps skillkit knows about and register custom ones.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent apps",
	Long:  `List agent apps. By default only installed apps are shown; use --all for every known app.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := getOutputFormat(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		var apps []agents.App
		if all {
			apps, err = a.agents.All()
		} else {
			apps, err = a.agents.Installed()
		}
		if err != nil {
			return err
		}
		sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })

		if format != formatTable {
			return writeStructured(os.Stdout, format, apps)
		}

		installed, err := a.agents.Installed()
		if err != nil {
			return err
		}
		isInstalled := map[string]bool{}
		for _, app := range installed {
			isInstalled[app.ID] = true
		}

		rows := make([][]string, 0, len(apps))
		for _, app := range apps {
			kind := "built-in"
			if app.IsUserCustom {
				kind = "custom"
			}
			state := "no"
			if isInstalled[app.ID] {
				state = "yes"
			}
			rows = append(rows, []string{app.ID, app.DisplayName, kind, state, dash(app.GlobalPath), dash(app.ProjectPath)})
		}
		presenter.Table([]string{"ID", "NAME", "KIND", "INSTALLED", "GLOBAL PATH", "PROJECT PATH"}, rows)
		return nil
	},
}

var agentPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show the skill paths of every known agent app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := getOutputFormat(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		paths, err := a.agents.ResolvePaths()
		if err != nil {
			return err
		}
		if format != formatTable {
			return writeStructured(os.Stdout, format, paths)
		}

		ids := make([]string, 0, len(paths))
		for id := range paths {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, []string{id, dash(paths[id].GlobalPath), dash(paths[id].ProjectPath)})
		}
		presenter.Table([]string{"ID", "GLOBAL PATH", "PROJECT PATH"}, rows)
		return nil
	},
}

var agentAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a custom agent app",
	Long: `Register a custom agent app. The global path must already exist.

Example:
  skillkit agent add --name "My Agent" --global-path ~/.myagent/skills --project-path .myagent/skills`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		config := getAgentConfigFromFlags(cmd)
		app, err := a.agents.Add(config.DisplayName, config.GlobalPath, config.ProjectPath)
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Added agent app %s (%s)", app.DisplayName, app.ID))
		return nil
	},
}

var agentUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a custom agent app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		current, err := a.agents.Get(args[0])
		if err != nil {
			return err
		}

		config := getAgentConfigFromFlags(cmd)
		if !cmd.Flags().Changed("name") {
			config.DisplayName = current.DisplayName
		}
		if !cmd.Flags().Changed("global-path") {
			config.GlobalPath = current.GlobalPath
		}
		if !cmd.Flags().Changed("project-path") {
			config.ProjectPath = current.ProjectPath
		}

		app, err := a.agents.Update(args[0], config.DisplayName, config.GlobalPath, config.ProjectPath)
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Updated agent app %s", app.ID))
		return nil
	},
}

var agentRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a custom agent app",
	Long:  `Remove a custom agent app from the registry. Its skill folders are left untouched.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.agents.Remove(args[0]); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Removed agent app %s", args[0]))
		return nil
	},
}

func init() {
	agentListCmd.Flags().Bool("all", false, "Include agent apps that are not installed")
	addOutputFlag(agentListCmd, formatTable)
	addOutputFlag(agentPathsCmd, formatTable)

	defaults := NewAgentConfig()
	for _, cmd := range []*cobra.Command{agentAddCmd, agentUpdateCmd} {
		cmd.Flags().String("name", defaults.DisplayName, "Display name")
		cmd.Flags().String("global-path", defaults.GlobalPath, "Global skills directory, e.g. ~/.myagent/skills")
		cmd.Flags().String("project-path", defaults.ProjectPath, "Skills directory relative to a project root")
	}

	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentPathsCmd)
	agentCmd.AddCommand(agentAddCmd)
	agentCmd.AddCommand(agentUpdateCmd)
	agentCmd.AddCommand(agentRemoveCmd)
}

func getAgentConfigFromFlags(cmd *cobra.Command) *AgentConfig {
	config := NewAgentConfig()
	if v, err := cmd.Flags().GetString("name"); err == nil {
		config.DisplayName = v
	}
	if v, err := cmd.Flags().GetString("global-path"); err == nil {
		config.GlobalPath = v
	}
	if v, err := cmd.Flags().GetString("project-path"); err == nil {
		config.ProjectPath = v
	}
	return config
}
