package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCommand() *cobra.Command {
	var timeoutSecs int

	cmd := &cobra.Command{
		Use:   "exec -- CMD [ARGS...]",
		Short: "Run a one-shot command on the active instance through the agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgentClient(cmd, func(app *App, client *agentClient) error {
				resp, err := client.Exec(cmd.Context(), strings.Join(args, " "), timeoutSecs)
				if err != nil {
					return err
				}
				fmt.Print(resp.Stdout)
				fmt.Fprint(os.Stderr, resp.Stderr)
				if resp.ExitCode != 0 {
					return fmt.Errorf("command exited with status %d", resp.ExitCode)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&timeoutSecs, "timeout", 60, "command timeout in seconds")
	return cmd
}
