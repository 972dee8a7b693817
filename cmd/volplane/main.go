// Package main is the entry point for the volplane cluster
// configuration service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/volplane/volplane/bootstrap"
	"github.com/volplane/volplane/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "volplane",
		Short:         "Validate and commit cluster desired-state configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "volplane.yaml", "path to configuration file")

	root.AddCommand(
		newValidateCmd(),
		newSubmitCmd(),
		newShowCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() (*bootstrap.App, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("volplane %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}
