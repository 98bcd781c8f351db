package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// aiTool mirrors the Agent's own closed devtool registry so `spuff ai
// list`/`info` can describe what setup would install without a round trip
// to a running instance.
type aiTool struct {
	Name       string
	Install    string
	VersionCmd string
}

var aiToolCatalog = []aiTool{
	{
		Name:       "claude-code",
		Install:    `curl -fsSL https://claude.ai/install.sh | bash`,
		VersionCmd: `claude --version`,
	},
	{
		Name:       "codex",
		Install:    `npm install -g @openai/codex`,
		VersionCmd: `codex --version`,
	},
	{
		Name:       "opencode",
		Install:    `curl -fsSL https://opencode.ai/install | bash`,
		VersionCmd: `opencode --version`,
	},
}

func findAITool(name string) (aiTool, bool) {
	for _, t := range aiToolCatalog {
		if t.Name == name {
			return t, true
		}
	}
	return aiTool{}, false
}

func newAICommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "Inspect and drive AI coding CLIs on the active instance",
	}
	cmd.AddCommand(newAIListCommand(), newAIStatusCommand(), newAIInstallCommand(), newAIInfoCommand())
	return cmd
}

func newAIListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every AI CLI setup knows how to install",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range aiToolCatalog {
				fmt.Println(t.Name)
			}
			return nil
		},
	}
}

func newAIInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Print the install and version-check commands for an AI CLI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, ok := findAITool(args[0])
			if !ok {
				return fmt.Errorf("unknown ai tool %q", args[0])
			}
			fmt.Printf("name:        %s\n", tool.Name)
			fmt.Printf("install:     %s\n", tool.Install)
			fmt.Printf("version_cmd: %s\n", tool.VersionCmd)
			return nil
		},
	}
}

func newAIStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show install status of every AI CLI on the active instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgentClient(cmd, func(app *App, client *agentClient) error {
				project, err := client.ProjectStatus(cmd.Context())
				if err != nil {
					return err
				}
				any := false
				for _, b := range project.Bundles {
					if !strings.HasPrefix(b.Name, "ai:") {
						continue
					}
					any = true
					fmt.Printf("%-16s %-10s %s\n", strings.TrimPrefix(b.Name, "ai:"), b.Status, b.Version)
				}
				if !any {
					fmt.Println("no AI tools installed")
				}
				return nil
			})
		},
	}
}

func newAIInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install NAME",
		Short: "Install one AI CLI on the active instance via the agent's exec endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, ok := findAITool(args[0])
			if !ok {
				return fmt.Errorf("unknown ai tool %q", args[0])
			}
			return withAgentClient(cmd, func(app *App, client *agentClient) error {
				resp, err := client.Exec(cmd.Context(), tool.Install, 120)
				if err != nil {
					return err
				}
				fmt.Print(resp.Stdout)
				if resp.ExitCode != 0 {
					return fmt.Errorf("install %s exited with status %d: %s", tool.Name, resp.ExitCode, resp.Stderr)
				}
				fmt.Printf("installed %s\n", tool.Name)
				return nil
			})
		},
	}
}
