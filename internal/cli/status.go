package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active instance, and live agent status with --detailed",
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

			fmt.Printf("instance: %s\n", active.Name)
			fmt.Printf("provider: %s\n", active.Provider)
			fmt.Printf("region:   %s\n", active.Region)
			fmt.Printf("size:     %s\n", active.Size)
			fmt.Printf("ip:       %s\n", active.IP)
			fmt.Printf("created:  %s\n", active.CreatedAt)

			if !detailed {
				return nil
			}

			client, err := app.dialAgent(cmd.Context(), active)
			if err != nil {
				return fmt.Errorf("connect to agent: %w", err)
			}
			defer client.Close()

			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("\nagent uptime:   %ds\n", st.UptimeSeconds)
			fmt.Printf("agent idle:     %ds\n", st.IdleSeconds)
			fmt.Printf("bootstrap:      %s\n", st.BootstrapStatus)
			fmt.Printf("agent version:  %s\n", st.AgentVersion)

			if st.DestroyRequested {
				fmt.Println("\nidle watchdog requested destruction; tearing down now")
				return destroyActiveInstance(cmd, app, active)
			}

			project, err := client.ProjectStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("setup started:   %v\n", project.Started)
			fmt.Printf("setup completed: %v\n", project.Completed)
			for _, b := range project.Bundles {
				fmt.Printf("  bundle %-20s %s\n", b.Name, b.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "include live agent status")
	return cmd
}
