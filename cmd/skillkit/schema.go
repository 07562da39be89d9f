package main

import (
	"os"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/jingkaihe/skillkit/pkg/agents"
	"github.com/jingkaihe/skillkit/pkg/lock"
	"github.com/jingkaihe/skillkit/pkg/projects"
	"github.com/jingkaihe/skillkit/pkg/scan"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var schemas = map[string]func() *jsonschema.Schema{
	"lock":         generateSchema[lock.File],
	"project-lock": generateSchema[lock.ProjectFile],
	"agents":       generateSchema[[]agents.App],
	"projects":     generateSchema[[]projects.Project],
	"scan":         generateSchema[[]scan.Record],
}

func schemaNames() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var schemaCmd = &cobra.Command{
	Use:   "schema <document>",
	Short: "Print the JSON Schema of a skillkit document",
	Long: `Print the JSON Schema of a document skillkit reads or writes.

Documents: ` + strings.Join(schemaNames(), ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: schemaNames(),
	RunE: func(_ *cobra.Command, args []string) error {
		gen, ok := schemas[args[0]]
		if !ok {
			return errors.Errorf("unknown document %q: must be one of %s", args[0], strings.Join(schemaNames(), ", "))
		}
		return writeStructured(os.Stdout, formatJSON, gen())
	},
}
