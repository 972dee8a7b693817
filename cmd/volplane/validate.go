package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/volplane/volplane/domain/schema"
)

func newValidateCmd() *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a JSON document against a named schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			_, err = app.Validation.Validate(schemaName, raw)
			if err == nil {
				fmt.Printf("document is valid against %q\n", schemaName)
				return nil
			}

			var structural *schema.StructuralError
			if errors.As(err, &structural) {
				fmt.Printf("document is invalid against %q:\n", schemaName)
				for _, v := range structural.Violations {
					fmt.Printf("  %s\n", v)
				}
				os.Exit(1)
			}
			var variant *schema.VariantError
			if errors.As(err, &variant) {
				fmt.Printf("value at %s matches no variant of %q:\n", variant.Path, schemaName)
				for i, reasons := range variant.Candidates {
					fmt.Printf("  candidate %d:\n", i)
					for _, v := range reasons {
						fmt.Printf("    %s\n", v)
					}
				}
				os.Exit(1)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", schema.SchemaDatasetConfiguration, "schema name to validate against")
	return cmd
}
