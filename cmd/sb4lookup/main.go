// Command sb4lookup is a thin CLI wrapper around the safebrowsing4 client
// library: it loads its configuration from the environment and exposes the
// update and lookup operations as subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	safebrowsing4 "github.com/sb4client/safebrowsing4"
	"github.com/sb4client/safebrowsing4/internal/config"
	"github.com/sb4client/safebrowsing4/internal/metrics"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	cmd, err := newRootCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	if err = cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	return 0
}

// newRootCommand builds the sb4lookup root command and its subcommands.
func newRootCommand() (cmd *cobra.Command, err error) {
	cmd = &cobra.Command{
		Use:           "sb4lookup",
		Short:         "Query and maintain a local Safe Browsing v4 hash-prefix database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newUpdateCommand(), newLookupCommand())

	return cmd, nil
}

// newLogger builds the process logger via slogutil, the way AdGuardDNS's
// internal/cmd package builds its base logger, verbose when conf.Verbose is
// set.
func newLogger(conf *config.Config) (logger *slog.Logger) {
	return slogutil.New(&slogutil.Config{
		Output:  os.Stderr,
		Format:  slogutil.FormatAdGuardLegacy,
		Verbose: bool(conf.Verbose),
	})
}

// newClient builds a [safebrowsing4.Client] from the process environment,
// with the background updater disabled: CLI invocations run one operation
// and exit.
func newClient(conf *config.Config, logger *slog.Logger) (c *safebrowsing4.Client, err error) {
	sels, err := threatlist.ParseSelectors(conf.Lists)
	if err != nil {
		return nil, fmt.Errorf("parsing lists: %w", err)
	}

	var m interface {
		metrics.Updates
		metrics.Lookups
	}
	if bool(conf.MetricsEnabled) {
		m, err = metrics.NewPrometheus(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return safebrowsing4.New(safebrowsing4.Config{
		APIKey:                   conf.APIKey,
		BaseURL:                  conf.BaseURL,
		DatabasePath:             conf.DatabasePath,
		ClientID:                 conf.ClientID,
		ClientVersion:            conf.ClientVersion,
		Lists:                    sels,
		RequestTimeout:           conf.RequestTimeout,
		UpdatePeriod:             conf.UpdatePeriod,
		Logger:                   logger,
		Metrics:                  m,
		DisableBackgroundUpdater: true,
	})
}

// newUpdateCommand returns the "update" subcommand, which runs one update
// cycle against the configured threat lists.
func newUpdateCommand() (cmd *cobra.Command) {
	var force bool

	cmd = &cobra.Command{
		Use:   "update",
		Short: "Fetch the latest hash-prefix updates for the configured threat lists",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			conf, err := config.Read()
			if err != nil {
				return err
			}

			logger := newLogger(conf)

			c, err := newClient(conf, logger)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			status, err := c.Update(cobraCmd.Context(), force)
			if err != nil {
				return fmt.Errorf("update: %w", err)
			}

			logger.Info("update finished", "status", status)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "bypass the server's update schedule")

	return cmd
}

// newLookupCommand returns the "lookup" subcommand, which checks a single
// URL against the local database and, if needed, the remote service.
func newLookupCommand() (cmd *cobra.Command) {
	return &cobra.Command{
		Use:   "lookup [url]",
		Short: "Check a URL against the local Safe Browsing database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			conf, err := config.Read()
			if err != nil {
				return err
			}

			logger := newLogger(conf)

			c, err := newClient(conf, logger)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			matches, err := c.Lookup(cobraCmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}

			if len(matches) == 0 {
				fmt.Println("no match")

				return nil
			}

			for _, m := range matches {
				fmt.Printf("match: list=%s metadata=%v\n", m.List, m.Metadata)
			}

			return nil
		},
	}
}
