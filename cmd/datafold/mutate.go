package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datafold/datafold/pkg/types"
)

var mutateCmd = &cobra.Command{
	Use:   "mutate",
	Short: "Apply a mutation from a JSON file",
	Long: `Reads a types.Mutation JSON document (spec.md §6's wire shape)
from --file and applies it through the mutation engine, printing the
resulting mutation hash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(filename)
		if err != nil {
			return types.WrapError(types.ErrStorage, err, "failed to read mutation file %s", filename)
		}

		var m types.Mutation
		if err := json.Unmarshal(data, &m); err != nil {
			return types.WrapError(types.ErrSerialization, err, "failed to parse mutation file %s", filename)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		hash, err := e.mutations.Apply(m)
		if err != nil {
			return err
		}
		fmt.Printf("✓ mutation applied: %s\n", hash)
		return nil
	},
}

func init() {
	mutateCmd.Flags().StringP("file", "f", "", "JSON file containing the mutation to apply (required)")
	_ = mutateCmd.MarkFlagRequired("file")
}
