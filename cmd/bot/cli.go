package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	configFile string
	envFile    string
}

func newRootCommand() *cobra.Command {
	options := &cliOptions{}

	root := &cobra.Command{
		Use:           "paimon",
		Short:         "Genshin companion chat bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFile(options.envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, options)
		},
	}
	root.PersistentFlags().StringVarP(&options.configFile, "config", "c", "",
		"config file path (defaults to $"+envPrefix+"CONFIG_FILE, "+defaultConfigFilePath+" or "+alternateConfigFilePath+")")
	root.PersistentFlags().StringVar(&options.envFile, "env-file", ".env",
		"dotenv file loaded before reading the environment; missing files are ignored")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Connect the drivers and serve commands until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, options)
		},
	}
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration and game data, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(options.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if _, err := loadGameData(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %s is valid: %d driver(s), ask %s\n",
				cfg.configFile, len(cfg.drivers), enabledLabel(cfg.llm != nil))
			return nil
		},
	}
	root.AddCommand(runCmd, validateCmd)

	return root
}

func runBot(cmd *cobra.Command, options *cliOptions) error {
	cfg, err := loadConfig(options.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.logLevel, cfg.logFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, logger, cfg)
}

// loadEnvFile exports the variables of a dotenv file without overriding the
// process environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}

	return nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}

	return "disabled"
}
