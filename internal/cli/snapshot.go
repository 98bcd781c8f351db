package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage provider snapshots",
	}
	cmd.AddCommand(newSnapshotCreateCommand(), newSnapshotListCommand(), newSnapshotDeleteCommand())
	return cmd
}

func newSnapshotCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Snapshot the active instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			active, err := app.activeInstance(cmd.Context())
			if err != nil {
				return err
			}
			p, err := app.provider()
			if err != nil {
				return err
			}

			snap, err := p.CreateSnapshot(cmd.Context(), active.ID, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("created snapshot %s (%s)\n", snap.Name, snap.ID)
			return nil
		},
	}
}

func newSnapshotListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provider snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			p, err := app.provider()
			if err != nil {
				return err
			}
			snaps, err := p.ListSnapshots(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range snaps {
				fmt.Printf("%-20s %s\n", s.ID, s.Name)
			}
			return nil
		},
	}
}

func newSnapshotDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a provider snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			p, err := app.provider()
			if err != nil {
				return err
			}
			if err := p.DeleteSnapshot(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted snapshot %s\n", args[0])
			return nil
		},
	}
}
