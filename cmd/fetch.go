package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch raw incidents and print them as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		incidents, err := newClient(cfg).ListIncidents(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(incidents)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
