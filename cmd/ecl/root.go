package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/config"
	"erynoa/eclvm/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ecl",
	Short: "ECL policy compiler, virtual machine and realm gateway",
	Long: `ecl works with policies written in the Erynoa Configuration Language.

Policies are compiled to bytecode for a stack machine with static gas and
mana metering. The gateway uses their verdicts to admit identities into
realms and to authorize crossings between realms.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadRuntime,
}

// Execute runs the root command and exits with a code derived from the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errorsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or TOML); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override telemetry.logging.level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override telemetry.logging.format")
}

// loadRuntime loads the configuration and builds the logger shared by all
// commands.
func loadRuntime(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Telemetry.Logging.Format = logFormat
	}
	logger, err := logging.New(cfg.Telemetry.Logging.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	config.SetConfig(cfg)
	appLogger = logger
	slog.SetDefault(logger)
	return nil
}

func runtimeConfig() *config.Config {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

func runtimeLogger() *slog.Logger {
	if appLogger == nil {
		return logging.Discard()
	}
	return appLogger
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
