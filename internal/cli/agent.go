package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Proxy to the active instance's agent over an SSH-forwarded port",
	}
	cmd.AddCommand(
		newAgentStatusCommand(),
		newAgentMetricsCommand(),
		newAgentProcessesCommand(),
		newAgentLogsCommand(),
	)
	return cmd
}

func withAgentClient(cmd *cobra.Command, fn func(app *App, client *agentClient) error) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	active, err := app.activeInstance(cmd.Context())
	if err != nil {
		return err
	}

	client, err := app.dialAgent(cmd.Context(), active)
	if err != nil {
		return fmt.Errorf("connect to agent: %w", err)
	}
	defer client.Close()

	return fn(app, client)
}

func newAgentStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the agent's /status response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgentClient(cmd, func(app *App, client *agentClient) error {
				st, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("uptime:    %ds\n", st.UptimeSeconds)
				fmt.Printf("idle:      %ds\n", st.IdleSeconds)
				fmt.Printf("bootstrap: %s\n", st.BootstrapStatus)
				fmt.Printf("destroy_requested: %v\n", st.DestroyRequested)
				return nil
			})
		},
	}
}

func newAgentMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the agent's /metrics response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgentClient(cmd, func(app *App, client *agentClient) error {
				m, err := client.Metrics(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("cpu:    %.1f%%\n", m.CPUPercent)
				fmt.Printf("memory: %.1f%% (%d / %d bytes)\n", m.MemoryPercent, m.MemoryUsed, m.MemoryTotal)
				fmt.Printf("disk:   %.1f%% (%d / %d bytes)\n", m.DiskPercent, m.DiskUsed, m.DiskTotal)
				fmt.Printf("load:   %.2f %.2f %.2f\n", m.LoadAverage.One, m.LoadAverage.Five, m.LoadAverage.Fifteen)
				return nil
			})
		},
	}
}

func newAgentProcessesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "processes",
		Short: "Print the agent's top processes by CPU",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgentClient(cmd, func(app *App, client *agentClient) error {
				procs, err := client.Processes(cmd.Context())
				if err != nil {
					return err
				}
				for _, p := range procs {
					fmt.Printf("%-8d %-20s %6.1f%% %10d\n", p.PID, p.Name, p.CPUPercent, p.MemoryRSS)
				}
				return nil
			})
		},
	}
}

func newAgentLogsCommand() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "logs FILE",
		Short: "Tail a whitelisted log file on the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgentClient(cmd, func(app *App, client *agentClient) error {
				resp, err := client.Logs(cmd.Context(), args[0], n)
				if err != nil {
					return err
				}
				for _, line := range resp.Lines {
					fmt.Println(line)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&n, "n", "n", 100, "number of trailing lines to print")
	return cmd
}
