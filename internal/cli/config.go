package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spuff/spuff/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the global spuff configuration",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigEditCommand(), newConfigSetCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Printf("provider:            %s\n", cfg.Provider)
			fmt.Printf("default_size:        %s\n", cfg.DefaultSize)
			fmt.Printf("default_region:      %s\n", cfg.DefaultRegion)
			fmt.Printf("admin_user:          %s\n", cfg.AdminUser)
			fmt.Printf("ssh_key_path:        %s\n", cfg.SSHKeyPath)
			fmt.Printf("ssh_public_key_path: %s\n", cfg.SSHPublicKeyPath)
			fmt.Printf("idle_timeout_secs:   %d\n", cfg.IdleTimeoutSecs)
			fmt.Printf("agent_port:          %d\n", cfg.AgentPort)
			return nil
		},
	}
}

func newConfigEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open the global config file in $EDITOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if !config.Exists(path) {
				if err := config.Save(path, config.Defaults()); err != nil {
					return fmt.Errorf("seed default config: %w", err)
				}
			}

			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "vi"
			}
			c := exec.Command(editor, path)
			c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
			return c.Run()
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a single key in the global config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			key, value := args[0], args[1]
			switch key {
			case "provider":
				cfg.Provider = value
			case "default_size":
				cfg.DefaultSize = value
			case "default_region":
				cfg.DefaultRegion = value
			case "admin_user":
				cfg.AdminUser = value
			case "ssh_key_path":
				cfg.SSHKeyPath = value
			case "ssh_public_key_path":
				cfg.SSHPublicKeyPath = value
			case "idle_timeout_secs":
				n, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("idle_timeout_secs must be an integer: %w", err)
				}
				cfg.IdleTimeoutSecs = n
			case "agent_port":
				n, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("agent_port must be an integer: %w", err)
				}
				cfg.AgentPort = n
			default:
				return fmt.Errorf("unknown config key %q", key)
			}

			return config.Save(path, cfg)
		},
	}
}
