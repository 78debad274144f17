package pulse

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// Schemas returns the JSON schemas of the input rows and the cluster records.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemas := map[string]*jsonschema.Schema{
		"document":       reflector.Reflect(&Document{}),
		"cluster_record": reflector.Reflect(&ClusterRecord{}),
	}
	for _, s := range schemas {
		if s.Type == "" {
			s.Type = "object"
		}
	}
	return schemas
}

var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print JSON schemas of input documents and cluster records",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(Schemas(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	},
}
