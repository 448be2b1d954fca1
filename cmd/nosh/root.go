package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nosh/config"
	"nosh/log"
	"nosh/store"
)

type rootFlags struct {
	configPath string
	logPath    string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "nosh",
		Short:         "Voice-based nutrition logging",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&flags.logPath, "logpath", "", "Log directory path")

	rootCmd.AddCommand(newRecordCommand(flags))
	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newImportCommand(flags))
	rootCmd.AddCommand(newDevicesCommand())
	rootCmd.AddCommand(newDoctorCommand(flags))
	rootCmd.AddCommand(newGoalsCommand(flags))
	rootCmd.AddCommand(newConfigCommand(flags))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the nosh version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "nosh %s\n", version)
			return nil
		},
	}
}

func newConfigCommand(flags *rootFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented sample config to the default location",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return configCmd
}

// setup loads the configuration and initializes file logging. Callers
// must defer log.Close.
func setup(flags *rootFlags) (*config.Config, error) {
	cfg, _, _, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	logDir, err := log.ResolveDir(flags.logPath)
	if err != nil {
		return nil, fmt.Errorf("resolve log directory: %w", err)
	}
	log.SetDir(logDir)
	if err := log.Init(); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config) (store.Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	switch cfg.Storage.Backend {
	case "local":
		return store.OpenLocal(store.LocalOptions{Dir: cfg.Storage.LocalDir})
	default:
		return store.OpenSQLite(cfg.Storage.SQLitePath)
	}
}
