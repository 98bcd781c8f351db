package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spuff/spuff/internal/orchestrator"
	"github.com/spuff/spuff/internal/projectspec"
	"github.com/spuff/spuff/internal/store"
)

func newDownCommand() *cobra.Command {
	var snapshot, force bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Tear down the active instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			opts := orchestrator.DownOptions{Snapshot: snapshot, Force: force, Progress: printProgress}
			return runDown(cmd, app, opts)
		},
	}

	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "take a snapshot before destroying")
	cmd.Flags().BoolVar(&force, "force", false, "continue past a snapshot failure (unmount failures never block teardown)")
	return cmd
}

func runDown(cmd *cobra.Command, app *App, opts orchestrator.DownOptions) error {
	active, err := app.activeInstance(cmd.Context())
	if err != nil {
		return err
	}

	p, err := app.provider()
	if err != nil {
		return err
	}

	orc := &orchestrator.Orchestrator{
		Provider:     p,
		ProviderName: app.Cfg.Provider,
		Store:        app.Store,
		VolumeState:  app.Volumes,
		Log:          app.Log,
	}

	if err := orc.Down(cmd.Context(), opts, app.Cfg.AdminUser, app.Cfg.SSHKeyPath, preDownHook()); err != nil {
		return err
	}

	fmt.Printf("instance %s destroyed\n", active.Name)
	return nil
}

// destroyActiveInstance tears down active without a snapshot. It is the
// response to the idle watchdog's destroy_requested bit: `spuff status
// --detailed` calls it when the agent reports the bit, destroying through
// the already-authenticated provider adapter. up and down do not check
// the bit.
func destroyActiveInstance(cmd *cobra.Command, app *App, active *store.LocalInstance) error {
	return runDown(cmd, app, orchestrator.DownOptions{Progress: printProgress})
}

// preDownHook looks for a spuff.yaml in or above the current directory and
// returns its pre_down hook, if any; 'down' is often run from a different
// directory than the one 'up' was run from, so a missing project file here
// is not an error, just a no-op hook.
func preDownHook() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	path := projectspec.Discover(cwd)
	if path == "" {
		return ""
	}
	spec, err := projectspec.Load(path)
	if err != nil {
		return ""
	}
	return spec.Hooks.PreDown
}
