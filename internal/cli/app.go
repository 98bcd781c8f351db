// Package cli wires cobra/viper to the Controller's collaborators — the
// global config, the local instance store, the volume state file, the
// provider registry, and the orchestrator — the way the teacher's own
// control-plane/cmd/control-plane/main.go wires viper flags to its vm.Manager
// and clients, generalized from a single `run` function into a command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spuff/spuff/internal/config"
	"github.com/spuff/spuff/internal/provider"
	"github.com/spuff/spuff/internal/provider/hetzner"
	"github.com/spuff/spuff/internal/sshconn"
	"github.com/spuff/spuff/internal/store"
	"github.com/spuff/spuff/internal/volume"
)

// App holds every collaborator a subcommand might need, built once per
// invocation by newApp.
type App struct {
	Cfg        *config.Config
	ConfigPath string
	Registry   *provider.Registry
	Store      *store.Store
	Volumes    *volume.MountState
	Log        zerolog.Logger
}

// NewRootCommand builds the "spuff" command tree: persistent flags bound to
// viper exactly as the teacher's main.go binds --port/--log-level, then every
// subcommand from spec.md §6 registered under it.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "spuff",
		Short:         "Provision and drive ephemeral cloud development VMs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(viper.GetString("log_level"))
		},
	}

	root.PersistentFlags().String("config", "", "config file path (defaults to ~/.config/spuff/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level")
	viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("spuff")
	viper.AutomaticEnv()

	root.AddCommand(
		newInitCommand(),
		newUpCommand(),
		newDownCommand(),
		newSSHCommand(),
		newStatusCommand(),
		newSnapshotCommand(),
		newAgentCommand(),
		newVolumeCommand(),
		newExecCommand(),
		newConfigCommand(),
		newAICommand(),
	)
	return root
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if os.Getenv("SPUFF_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// configPath resolves the --config flag (if set) to the default path.
func configPath() (string, error) {
	if p := viper.GetString("config"); p != "" {
		return p, nil
	}
	return config.Path()
}

// newApp loads the global config, opens the local instance store and volume
// state file, and registers the Hetzner provider adapter. Registering the
// adapter here rather than inside internal/provider keeps that package free
// of a dependency on any concrete adapter; internal/provider/hetzner imports
// internal/provider, so the reverse import would be a cycle.
func newApp() (*App, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(dir, "instances.db"))
	if err != nil {
		return nil, fmt.Errorf("open local instance store: %w", err)
	}

	registry := provider.NewRegistry()
	registry.Register(provider.TypeHetzner, hetzner.Factory())

	return &App{
		Cfg:        cfg,
		ConfigPath: path,
		Registry:   registry,
		Store:      st,
		Volumes:    volume.OpenMountState(filepath.Join(dir, "volumes.json")),
		Log:        log.Logger,
	}, nil
}

// Close releases every collaborator that owns a resource.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

// resolveToken reads the active provider's API token from
// <PROVIDER>_TOKEN, falling back to SPUFF_API_TOKEN, per spec.md §6.
func (a *App) resolveToken() (string, error) {
	t, ok := provider.TypeFromString(a.Cfg.Provider)
	if !ok {
		return "", fmt.Errorf("unknown provider %q in config", a.Cfg.Provider)
	}
	if v := os.Getenv(t.TokenEnvVar()); v != "" {
		return v, nil
	}
	if v := os.Getenv("SPUFF_API_TOKEN"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no API token found: set %s or SPUFF_API_TOKEN", t.TokenEnvVar())
}

// provider builds the active provider adapter from the configured type and
// a freshly resolved token.
func (a *App) provider() (provider.Provider, error) {
	token, err := a.resolveToken()
	if err != nil {
		return nil, err
	}
	return a.Registry.CreateByName(a.Cfg.Provider, token, provider.DefaultTimeouts())
}

// activeInstance returns the sole active LocalInstance, or an error if none
// exists.
func (a *App) activeInstance(ctx context.Context) (*store.LocalInstance, error) {
	inst, err := a.Store.GetActiveInstance(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve active instance: %w", err)
	}
	if inst == nil {
		return nil, fmt.Errorf("no active instance; run 'spuff up' first")
	}
	return inst, nil
}

// sshTarget builds the sshconn.Target for inst using the configured admin
// user and SSH key path.
func (a *App) sshTarget(inst *store.LocalInstance) sshconn.Target {
	return sshconn.Target{IP: inst.IP, User: a.Cfg.AdminUser, KeyPath: a.Cfg.SSHKeyPath}
}

// agentTokenPath is where 'up' persists the per-instance Agent bearer token,
// since it is minted fresh per instance and never written to the global
// config file.
func agentTokenPath(dir, instanceName string) string {
	return filepath.Join(dir, "agent-tokens", instanceName+".token")
}

func writeAgentToken(dir, instanceName, token string) error {
	path := agentTokenPath(dir, instanceName)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create agent token directory: %w", err)
	}
	return os.WriteFile(path, []byte(token), 0o600)
}

func readAgentToken(dir, instanceName string) (string, error) {
	data, err := os.ReadFile(agentTokenPath(dir, instanceName))
	if err != nil {
		return "", fmt.Errorf("read agent token for %s: %w", instanceName, err)
	}
	return string(data), nil
}
