package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datafold/datafold/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query from a JSON file",
	Long: `Reads a types.Query JSON document (spec.md §6's wire shape) from
--file, runs it through the query engine, and prints the
{field: value} result as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(filename)
		if err != nil {
			return types.WrapError(types.ErrStorage, err, "failed to read query file %s", filename)
		}

		var q types.Query
		if err := json.Unmarshal(data, &q); err != nil {
			return types.WrapError(types.ErrSerialization, err, "failed to parse query file %s", filename)
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

		result, err := e.queries.Run(q)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return types.WrapError(types.ErrSerialization, err, "failed to encode query result")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	queryCmd.Flags().StringP("file", "f", "", "JSON file containing the query to run (required)")
	_ = queryCmd.MarkFlagRequired("file")
}
