package main

import (
	"fmt"

	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:   "link <skill> <agent>",
	Short: "Link a managed skill into an agent app",
	Long: `Create an association between the canonical copy of a skill and one agent app,
using the configured sync mode.

Example:
  skillkit link notes codex`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAgentLink(cmd, args[0], args[1], true)
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <skill> <agent>",
	Short: "Remove a skill's association from an agent app",
	Long: `Remove the association of a skill from one agent app. Only symlinks pointing at
the canonical copy and tracked copies are removed; anything else is left alone
and reported.

Example:
  skillkit unlink notes codex`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAgentLink(cmd, args[0], args[1], false)
	},
}

func setAgentLink(cmd *cobra.Command, name, agentID string, linked bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}

	if err := engine.SetAgentLink(cmd.Context(), name, agentID, a.scope(), linked); err != nil {
		return err
	}

	if linked {
		presenter.Success(fmt.Sprintf("Linked %s to %s", name, agentID))
	} else {
		presenter.Success(fmt.Sprintf("Unlinked %s from %s", name, agentID))
	}
	return nil
}
