package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spuff/spuff/internal/projectspec"
	"github.com/spuff/spuff/internal/sshconn"
)

func newSSHCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ssh",
		Short: "Re-enter an interactive session with the active instance",
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

			var ports []int
			if cwd, err := os.Getwd(); err == nil {
				if path := projectspec.Discover(cwd); path != "" {
					if spec, err := projectspec.Load(path); err == nil {
						ports = spec.Ports
					}
				}
			}

			target := app.sshTarget(active)
			return sshconn.ConnectInteractive(target, ports)
		},
	}
}
