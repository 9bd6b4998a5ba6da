// Package main is the entry point for the taskd CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flemzord/taskd/internal/config"
	"github.com/flemzord/taskd/internal/core"
	"github.com/flemzord/taskd/internal/service"
	"github.com/flemzord/taskd/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "taskd:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskd",
		Short:         "A periodic job scheduler daemon with self-reported cadence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Default data directory when the config sets none")
	root.AddCommand(versionCmd(), startCmd(), configCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled job kinds",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "taskd %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nJob kinds:")
			for _, jt := range core.GetJobTypes() {
				fmt.Fprintf(out, "  %s\n", jt.Kind)
			}
		},
	}
}

func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler in the foreground until told to exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := runParams(cmd)
			params.HandleSignals = true
			return app.Run(cmd.Context(), params)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			cfg, path, err := app.LoadConfig(params.ConfigPath, params.DataDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			names := config.JobNames(cfg)
			fmt.Fprintf(out, "Configuration OK: %s (%d jobs)\n", path, len(names))
			for _, name := range names {
				node := cfg.Jobs[name]
				fmt.Fprintf(out, "  %s (%s)\n", name, config.JobKind(&node))
			}
			return nil
		},
	})
	return cmd
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service <action>",
		Short:     fmt.Sprintf("Control the OS service (%v, run)", service.Actions()),
		Args:      cobra.ExactArgs(1),
		ValidArgs: append(service.Actions(), "run"),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			svcArgs := []string{"service", "run"}
			if params.ConfigPath != "" {
				abs, err := filepath.Abs(params.ConfigPath)
				if err != nil {
					return err
				}
				params.ConfigPath = abs
				svcArgs = append(svcArgs, "--config", abs)
			}
			if params.DataDir != "" {
				svcArgs = append(svcArgs, "--data-dir", params.DataDir)
			}

			prg := service.NewProgram(func(ctx context.Context) error {
				return app.Run(ctx, params)
			}, 0, nil)
			svc, err := service.New(service.Config{Arguments: svcArgs}, prg)
			if err != nil {
				return err
			}

			if args[0] == "run" {
				return service.Run(svc, prg)
			}
			if err := service.Control(svc, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", args[0])
			return nil
		},
	}
	return cmd
}
