package main

import (
	"fmt"

	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <skill>",
	Short: "Delete a skill everywhere",
	Long: `Remove the canonical copy of a skill, every folder or link with the same name in
the installed agent apps, and its lock entry. Deleting a skill that does not
exist succeeds.

Examples:
  skillkit delete notes
  skillkit delete notes --project web --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		name := args[0]

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !presenter.Confirm(fmt.Sprintf("Delete %s from the %s scope and every agent app?", name, a.scope())) {
			presenter.Info("Aborted")
			return nil
		}

		engine, err := a.engine()
		if err != nil {
			return err
		}
		result, err := engine.Delete(cmd.Context(), name, a.scope())
		if err != nil {
			return err
		}

		if !result.CanonicalRemoved && len(result.RemovedPaths) == 0 && !result.LockRemoved {
			presenter.Info(fmt.Sprintf("Nothing to delete for %s", name))
		} else {
			presenter.Success(fmt.Sprintf("Deleted %s", name))
			for _, p := range result.RemovedPaths {
				presenter.Info(fmt.Sprintf("  removed %s", p))
			}
		}
		for _, w := range result.Warnings {
			presenter.Warning(w)
		}
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
