package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

func addOutputFlag(cmd *cobra.Command, def outputFormat) {
	cmd.Flags().StringP("output", "o", string(def), "Output format (table, json, yaml)")
}

func getOutputFormat(cmd *cobra.Command) (outputFormat, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		return formatTable, nil
	}
	switch f := outputFormat(strings.ToLower(value)); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	default:
		return "", errors.Errorf("invalid output format %q: must be one of table, json, yaml", value)
	}
}

// writeStructured renders v as JSON or YAML.
func writeStructured(w io.Writer, format outputFormat, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "failed to encode json")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode yaml")
		}
		return errors.Wrap(enc.Close(), "failed to encode yaml")
	default:
		return errors.Errorf("unsupported structured format %q", format)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
