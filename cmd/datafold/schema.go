package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/datafold/datafold/pkg/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage schema lifecycle state",
}

var schemaLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Register schema definitions from one or more directories",
	Long: `Load reads every .json/.yaml/.yml file in the given directories
(later directories win on a name collision, per spec.md's
available_schemas/ over data/schemas/ precedence) and registers each as
an Available schema, unless it is already known.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dirs, _ := cmd.Flags().GetStringSlice("dir")
		if len(dirs) == 0 {
			dirs = cfg.SchemaDirs
		}

		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := schema.LoadDirectories(e.schemas, dirs...); err != nil {
			return err
		}

		states := e.schemas.States()
		names := make([]string, 0, len(states))
		for name := range states {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s\t%s\n", name, states[name])
		}
		return nil
	},
}

var schemaApproveCmd = &cobra.Command{
	Use:   "approve <schema>",
	Short: "Promote a schema from Available to Approved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.schemas.Approve(args[0]); err != nil {
			return err
		}
		if err := e.registerFieldTransforms(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ %s approved\n", args[0])
		return nil
	},
}

var schemaBlockCmd = &cobra.Command{
	Use:   "block <schema>",
	Short: "Block a schema, rejecting future mutations and queries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.schemas.Block(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ %s blocked\n", args[0])
		return nil
	},
}

func init() {
	schemaLoadCmd.Flags().StringSlice("dir", nil, "Directory to load schema definitions from (repeatable; defaults to the config's schemaDirs)")

	schemaCmd.AddCommand(schemaLoadCmd)
	schemaCmd.AddCommand(schemaApproveCmd)
	schemaCmd.AddCommand(schemaBlockCmd)
}
