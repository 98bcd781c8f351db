package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spuff/spuff/internal/config"
	"github.com/spuff/spuff/internal/orchestrator"
	"github.com/spuff/spuff/internal/projectspec"
	"github.com/spuff/spuff/pkg/agentapi"
)

func newUpCommand() *cobra.Command {
	var size, region string
	var dev, noConnect bool
	var aiTools string
	var snapshotID string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Provision a new instance and run the full setup pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			specPath := projectspec.Discover(cwd)
			if specPath == "" {
				return fmt.Errorf("no spuff.yaml found in %s or any parent directory", cwd)
			}
			spec, err := projectspec.Load(specPath)
			if err != nil {
				return fmt.Errorf("load project spec: %w", err)
			}

			resolvedSize := firstNonEmptyString(size, spec.Resources.Size, app.Cfg.DefaultSize)
			resolvedRegion := firstNonEmptyString(region, spec.Resources.Region, app.Cfg.DefaultRegion)

			aiOverride, err := parseAIToolsFlag(aiTools)
			if err != nil {
				return err
			}

			pubKey, err := os.ReadFile(app.Cfg.SSHPublicKeyPath)
			if err != nil {
				return fmt.Errorf("read ssh public key: %w", err)
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

			opts := orchestrator.Options{
				Size:            resolvedSize,
				Region:          resolvedRegion,
				Dev:             dev,
				NoConnect:       noConnect,
				AIToolsOverride: aiOverride,
				SnapshotImageID: snapshotID,
				AdminUser:       app.Cfg.AdminUser,
				SSHPublicKey:    string(pubKey),
				SSHKeyPath:      app.Cfg.SSHKeyPath,
				Progress:        printProgress,
			}

			inst, agentToken, err := orc.Up(cmd.Context(), spec, opts)
			if err != nil {
				if inst != nil {
					fmt.Fprintf(os.Stderr, "instance %s was created but setup failed: %v\n", inst.Name, err)
				}
				return err
			}

			dir, err := config.Dir()
			if err != nil {
				return err
			}
			if err := writeAgentToken(dir, inst.Name, agentToken); err != nil {
				return fmt.Errorf("persist agent token: %w", err)
			}

			fmt.Printf("instance %s is up at %s\n", inst.Name, inst.IP)
			return nil
		},
	}

	cmd.Flags().StringVar(&size, "size", "", "instance size (overrides project/config default)")
	cmd.Flags().StringVar(&region, "region", "", "instance region (overrides project/config default)")
	cmd.Flags().BoolVar(&dev, "dev", false, "upload a locally built agent binary instead of the released one")
	cmd.Flags().BoolVar(&noConnect, "no-connect", false, "skip the interactive session at the end of setup")
	cmd.Flags().StringVar(&aiTools, "ai-tools", "", "override ai tools to install: all, none, or list (use the project's own list)")
	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "boot from this snapshot instead of a fresh base image")
	return cmd
}

func printProgress(s orchestrator.State) {
	fmt.Printf("==> %s\n", s)
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseAIToolsFlag interprets --ai-tools: "all"/"none" force an override,
// "list" (or the flag left unset) means "use whatever the project's own
// ai_tools field already declares."
func parseAIToolsFlag(v string) (*agentapi.AIToolsSpec, error) {
	switch v {
	case "", "list":
		return nil, nil
	case "all":
		return &agentapi.AIToolsSpec{Mode: agentapi.AIToolsAll}, nil
	case "none":
		return &agentapi.AIToolsSpec{Mode: agentapi.AIToolsNone}, nil
	default:
		return nil, fmt.Errorf("invalid --ai-tools value %q: expected all, none, or list", v)
	}
}
