package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Validate a submission and commit it to the configuration",
	}
	cmd.AddCommand(
		newSubmitDatasetCmd(),
		newSubmitLeaseCmd(),
		newSubmitContainerCmd(),
		newSubmitNodeCmd(),
		newUpdateDatasetCmd(),
		newDeleteDatasetCmd(),
		newReleaseLeaseCmd(),
		newContainerRunningCmd(),
	)
	return cmd
}

func readDocument(path string) ([]byte, error) {
	if path == "-" {
		return os.ReadFile("/dev/stdin")
	}
	return os.ReadFile(path)
}

func newSubmitDatasetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dataset [file]",
		Short: "Create a dataset from a dataset_configuration document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			raw, err := readDocument(args[0])
			if err != nil {
				return err
			}
			d, err := app.Configuration.CreateDataset(cmd.Context(), raw)
			if err != nil {
				return err
			}
			fmt.Printf("dataset %s committed\n", d.DatasetID)
			return nil
		},
	}
}

func newSubmitLeaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lease [file]",
		Short: "Acquire a lease from a lease document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			raw, err := readDocument(args[0])
			if err != nil {
				return err
			}
			held, err := app.Configuration.AcquireLease(cmd.Context(), raw)
			if err != nil {
				return err
			}
			if t := held.ExpirationTime(); t != nil {
				fmt.Printf("lease on %s held by %s until %s\n", held.DatasetID, held.NodeUUID, t.UTC())
			} else {
				fmt.Printf("lease on %s held by %s with no expiry\n", held.DatasetID, held.NodeUUID)
			}
			return nil
		},
	}
}

func newSubmitContainerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "container [file]",
		Short: "Add a container from a container_configuration document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			raw, err := readDocument(args[0])
			if err != nil {
				return err
			}
			c, err := app.Configuration.AddContainer(cmd.Context(), raw)
			if err != nil {
				return err
			}
			fmt.Printf("container %s committed on node %s\n", c.Name, c.NodeUUID)
			return nil
		},
	}
}

func newSubmitNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "node [file]",
		Short: "Register a node from a node_state document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			raw, err := readDocument(args[0])
			if err != nil {
				return err
			}
			n, err := app.Configuration.RegisterNode(cmd.Context(), raw)
			if err != nil {
				return err
			}
			fmt.Printf("node %s registered at %s\n", n.UUID, n.Host)
			return nil
		},
	}
}

func newUpdateDatasetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-dataset [dataset-id] [file]",
		Short: "Reassign a dataset's primary node from a dataset_update document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			raw, err := readDocument(args[1])
			if err != nil {
				return err
			}
			d, err := app.Configuration.UpdateDataset(cmd.Context(), args[0], raw)
			if err != nil {
				return err
			}
			fmt.Printf("dataset %s now primary on %s\n", d.DatasetID, d.Primary)
			return nil
		},
	}
}

func newContainerRunningCmd() *cobra.Command {
	var running bool

	cmd := &cobra.Command{
		Use:   "container-running [name]",
		Short: "Record observed run state for a committed container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Configuration.SetContainerRunning(cmd.Context(), args[0], running); err != nil {
				return err
			}
			fmt.Printf("container %s running=%t\n", args[0], running)
			return nil
		},
	}
	cmd.Flags().BoolVar(&running, "running", true, "observed run state")
	return cmd
}

func newDeleteDatasetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-dataset [dataset-id]",
		Short: "Tombstone a dataset (the entry is retained, never removed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			d, err := app.Configuration.DeleteDataset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("dataset %s deleted\n", d.DatasetID)
			return nil
		},
	}
}

func newReleaseLeaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release-lease [dataset-id]",
		Short: "Release the lease held on a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Configuration.ReleaseLease(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("lease on %s released\n", args[0])
			return nil
		},
	}
}
