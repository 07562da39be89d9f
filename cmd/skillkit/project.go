package main

import (
	"fmt"
	"os"

	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage named projects",
	Long: `Register project folders under a name so that --project accepts the name
instead of a path.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
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
		list, err := a.projects.List()
		if err != nil {
			return err
		}
		if format != formatTable {
			return writeStructured(os.Stdout, format, list)
		}
		if len(list) == 0 {
			presenter.Info("No projects registered")
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, p := range list {
			rows = append(rows, []string{p.Name, p.Path})
		}
		presenter.Table([]string{"NAME", "PATH"}, rows)
		return nil
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name> <path>",
	Short: "Register a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		p, err := a.projects.Add(args[0], args[1])
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Added project %s at %s", p.Name, p.Path))
		return nil
	},
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Rename a project or change its path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		current, err := a.projects.Get(args[0])
		if err != nil {
			return err
		}
		name, path := current.Name, current.Path
		if cmd.Flags().Changed("name") {
			name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("path") {
			path, _ = cmd.Flags().GetString("path")
		}
		p, err := a.projects.Update(args[0], name, path)
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Updated project %s at %s", p.Name, p.Path))
		return nil
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Unregister a project",
	Long:  `Unregister a project. The project folder and its skills are left untouched.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.projects.Remove(args[0]); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Removed project %s", args[0]))
		return nil
	},
}

func init() {
	addOutputFlag(projectListCmd, formatTable)
	projectUpdateCmd.Flags().String("name", "", "New project name")
	projectUpdateCmd.Flags().String("path", "", "New project path")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectUpdateCmd)
	projectCmd.AddCommand(projectRemoveCmd)
}
