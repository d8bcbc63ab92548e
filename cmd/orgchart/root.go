package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/pkg/configuration"
)

type rootOptions struct {
	envFiles   []string
	store      string
	sqlitePath string

	conf *configuration.Configuration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "orgchart",
		Short:         "Org chart roster import, resolution and KPI export tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configuration.Load(opts.envFiles)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("load configuration: %w", err))
			}
			if v := strings.ToLower(strings.TrimSpace(opts.store)); v != "" {
				switch v {
				case configuration.StoreMemory, configuration.StoreSQLite, configuration.StorePostgres:
				default:
					conf.Unload()
					return withCode(exitUsage, fmt.Errorf("invalid --store=%q (expected memory|sqlite|postgres)", opts.store))
				}
				conf.StoreBackend = v
			}
			if strings.TrimSpace(opts.sqlitePath) != "" {
				conf.SQLitePath = opts.sqlitePath
			}
			opts.conf = conf
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.conf != nil {
				opts.conf.Unload()
			}
		},
	}

	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env", ".env.local"}, "Env files to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.store, "store", "", "Storage backend: memory|sqlite|postgres (default: STORE_BACKEND)")
	cmd.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database file (default: SQLITE_PATH)")

	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newResolveCmd(opts))
	cmd.AddCommand(newReassignCmd(opts))
	cmd.AddCommand(newTreeCmd(opts))
	cmd.AddCommand(newKpiCmd(opts))
	cmd.AddCommand(newAssignCmd(opts))
	cmd.AddCommand(newDistributeCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
