package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/volplane/volplane/domain/document"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the committed cluster configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			st, err := app.Configuration.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			raw, err := document.Encode(st.Document())
			if err != nil {
				return err
			}
			var pretty json.RawMessage = raw
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
