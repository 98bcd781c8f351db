package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spuff/spuff/internal/projectspec"
	"github.com/spuff/spuff/internal/volume"
	"github.com/spuff/spuff/pkg/agentapi"
)

func newVolumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Mount and unmount project volumes against the active instance",
	}
	cmd.AddCommand(newVolumeMountCommand(), newVolumeUnmountCommand(), newVolumeListCommand())
	return cmd
}

func discoveredVolumes() ([]agentapi.Volume, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path := projectspec.Discover(cwd)
	if path == "" {
		return nil, fmt.Errorf("no spuff.yaml found in %s or any parent directory", cwd)
	}
	spec, err := projectspec.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load project spec: %w", err)
	}
	return spec.Volumes, nil
}

func newVolumeMountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mount",
		Short: "Seed and mount every volume declared in the project spec",
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

			if err := volume.CheckFuseAvailable(); err != nil {
				return err
			}

			vols, err := discoveredVolumes()
			if err != nil {
				return err
			}

			tgt := app.sshTarget(active)
			var mounter volume.Mounter
			for _, v := range vols {
				plan, err := volume.Resolve(active.Name, v)
				if err != nil {
					return err
				}

				if plan.Bidirectional {
					if err := volume.Seed(cmd.Context(), tgt, v.Source, plan.Target, 5*time.Minute); err != nil {
						return fmt.Errorf("seed volume %s: %w", plan.Target, err)
					}
				}

				if _, err := mounter.Mount(cmd.Context(), tgt, plan.Target, plan.MountPoint, 30*time.Second); err != nil {
					return fmt.Errorf("mount volume %s: %w", plan.Target, err)
				}

				if err := app.Volumes.Add(volume.Record{
					MountPoint:   plan.MountPoint,
					RemotePath:   plan.Target,
					InstanceName: active.Name,
					MountedAt:    time.Now(),
				}); err != nil {
					return fmt.Errorf("record volume mount: %w", err)
				}

				fmt.Printf("mounted %s -> %s\n", plan.Target, plan.MountPoint)
			}
			return nil
		},
	}
}

func newVolumeUnmountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unmount",
		Short: "Unmount every volume recorded for the active instance",
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

			records, err := app.Volumes.ForInstance(active.Name)
			if err != nil {
				return err
			}

			var firstErr error
			for _, r := range records {
				if err := volume.Unmount(cmd.Context(), r.MountPoint); err != nil {
					fmt.Fprintf(os.Stderr, "unmount %s: %v\n", r.MountPoint, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if err := app.Volumes.Remove(r.MountPoint); err != nil {
					return fmt.Errorf("clear volume record %s: %w", r.MountPoint, err)
				}
				fmt.Printf("unmounted %s\n", r.MountPoint)
			}
			return firstErr
		},
	}
}

func newVolumeListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List recorded volume mounts for the active instance",
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

			records, err := app.Volumes.ForInstance(active.Name)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%-40s -> %s (mounted %s)\n", r.RemotePath, r.MountPoint, r.MountedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
