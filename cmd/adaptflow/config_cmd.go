package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	initDBPath      string
	initLogLevel    string
	initPoolSize    int
	initPersist     bool
	initTuningFile  string
	initMetricsAddr string
	showTables      bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or write the adaptflow settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		if !showTables {
			return writeJSON(cmd.OutOrStdout(), cfg)
		}
		tables, err := loadTables(cfg)
		if err != nil {
			return err
		}
		doc, err := tables.MarshalDocument()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := defaultConfig()
		if initDBPath != "" {
			cfg.DBPath = initDBPath
		}
		cfg.LogLevel = initLogLevel
		cfg.PoolSize = initPoolSize
		cfg.Persist = initPersist
		cfg.TuningFile = initTuningFile
		cfg.MetricsAddr = initMetricsAddr

		path := settingsFlag
		if path == "" {
			path = settingsPath()
		}
		if err := writeConfig(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&showTables, "tables", false, "print the effective tuning tables as YAML instead")

	f := configInitCmd.Flags()
	f.StringVar(&initDBPath, "db-path", "", "database path (default: ~/.adaptflow/adaptflow.db)")
	f.StringVar(&initLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.IntVar(&initPoolSize, "pool-size", 0, "learner pool size (0 keeps the tuning default)")
	f.BoolVar(&initPersist, "persist", false, "persist workflows to the libSQL database")
	f.StringVar(&initTuningFile, "tuning-file", "", "YAML or JSON tuning file merged over the defaults")
	f.StringVar(&initMetricsAddr, "metrics-addr", "", "address for the Prometheus metrics listener")

	configCmd.AddCommand(configShowCmd, configInitCmd)
}
