package main

import (
	"fmt"

	"github.com/jingkaihe/skillkit/pkg/version"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information of skillkit in JSON format.`,
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		info := version.Get()
		json, err := info.JSON()
		if err != nil {
			return errors.Wrap(err, "failed to format version info")
		}
		fmt.Println(json)
		return nil
	},
}
