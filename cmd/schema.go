package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/incident-etl/internal/schema"
)

var schemaType string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the input or output schema as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := schema.For(schema.Type(schemaType))
		if err != nil {
			return err
		}
		data, err := s.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaType, "type", string(schema.TypeInput), "schema type (input, output)")
	rootCmd.AddCommand(schemaCmd)
}
