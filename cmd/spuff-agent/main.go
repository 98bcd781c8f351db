package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spuff/spuff/internal/agentsvc"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "spuff-agent",
		Short: "In-VM agent: bootstrap status, metrics, and command execution for a spuff instance",
		Run:   run,
	}

	rootCmd.PersistentFlags().String("token", "", "bearer token the controller must present on every authenticated request")
	rootCmd.PersistentFlags().String("addr", "127.0.0.1:7575", "address to listen on")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	rootCmd.PersistentFlags().Duration("idle-timeout", 2*time.Hour, "destroy-eligible idle duration with no activity")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("idle_timeout", rootCmd.PersistentFlags().Lookup("idle-timeout"))
	viper.SetEnvPrefix("spuff")
	viper.AutomaticEnv()

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("failed to execute command")
	}
}

func run(cmd *cobra.Command, args []string) {
	setupLogging()

	token := viper.GetString("token")
	if token == "" {
		log.Fatal().Msg("--token is required")
	}

	cfg := agentsvc.Config{
		Token:               token,
		Version:             agentVersion(),
		ProjectJSONPath:     "/opt/spuff/project.json",
		ProjectStatusPath:   "/opt/spuff/project-status.json",
		BootstrapStatusPath: "/opt/spuff/bootstrap.status",
		ScriptLogDir:        "/opt/spuff/logs",
		LogAllowlistDir:     "/opt/spuff/logs",
		IdleTimeout:         viper.GetDuration("idle_timeout"),
	}

	srv, err := agentsvc.NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct agent server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down spuff-agent")
		cancel()
	}()

	if err := srv.Run(ctx, viper.GetString("addr")); err != nil {
		log.Fatal().Err(err).Msg("spuff-agent exited with error")
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("SPUFF_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// version is stamped at release-build time via -ldflags; it defaults to
// "dev" for locally built binaries, matching the --dev upload path in `up`.
var version = "dev"

func agentVersion() string {
	return version
}
