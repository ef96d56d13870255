// cmd/teforward/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalnine/teforward/internal/agent"
	"github.com/signalnine/teforward/internal/collector"
	"github.com/signalnine/teforward/internal/config"
	"github.com/signalnine/teforward/internal/forward"
	"github.com/signalnine/teforward/internal/provider"
)

var (
	configPath string
	verbose    bool
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:           "teforward",
	Short:         "Forward synthetic test results to an HTTP event collector",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify the latest result of every allowed test and forward it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg.Log, verbose)
		if err != nil {
			return err
		}

		client, err := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.Token, cfg.Provider.TLSSkipVerify)
		if err != nil {
			return err
		}

		var sink forward.Sink
		if !dryRun {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if sink, err = forward.New(cfg); err != nil {
				return err
			}
			defer sink.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := agent.New(cfg, client, sink, log).Run(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("run interrupted")
		}
		printSummary(os.Stdout, summary, dryRun)
		return nil
	},
}

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "List the allowed tests the provider knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg.Log, verbose)
		if err != nil {
			return err
		}

		client, err := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.Token, cfg.Provider.TLSSkipVerify)
		if err != nil {
			return err
		}

		tests := agent.New(cfg, client, nil, log).Discover(cmd.Context())
		if len(tests) == 0 {
			log.Warn().Msg("no tests found")
			return nil
		}
		printTests(os.Stdout, tests)
		return nil
	},
}

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run the development event collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg.Log, verbose)
		if err != nil {
			return err
		}

		srv, err := collector.NewServer(&cfg.Sink, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate without forwarding events")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testsCmd)
	rootCmd.AddCommand(collectorCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
