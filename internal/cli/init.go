package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spuff/spuff/internal/config"
	"github.com/spuff/spuff/internal/provider"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the global spuff config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if config.Exists(path) && !force {
				return fmt.Errorf("config already exists at %s; use --force to overwrite", path)
			}

			cfg := config.Defaults()

			dir, err := config.Dir()
			if err != nil {
				return err
			}
			privPath, pubPath, err := config.GenerateManagedKey(dir)
			if err != nil {
				return fmt.Errorf("generate managed ssh key: %w", err)
			}
			cfg.SSHKeyPath = privPath
			cfg.SSHPublicKeyPath = pubPath

			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("wrote config to %s\n", path)
			fmt.Printf("generated managed ssh key at %s\n", privPath)
			fmt.Printf("set %s (or SPUFF_API_TOKEN) before running 'spuff up'\n", mustProviderTokenEnvVar(cfg.Provider))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func mustProviderTokenEnvVar(name string) string {
	if t, ok := provider.TypeFromString(name); ok {
		return t.TokenEnvVar()
	}
	return "SPUFF_API_TOKEN"
}
