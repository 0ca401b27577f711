package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-resolve-collections/config"
)

type options struct {
	addresses   string
	output      string
	format      string
	archiveDB   string
	settings    string
	userAgents  string
	proxies     string
	noProxy     bool
	headless    bool
	workers     int
	maxRetries  int
	chromePath  string
	metricsAddr string
	logFile     string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "resolver",
		Short:        "resolver looks up the top asset of each marketplace collection and appends it to a pipe-delimited file.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addresses, "addresses", defaults.AddressesFile, "CSV file with an Address column")
	flags.StringVar(&opts.output, "output", defaults.OutputFile, "Output file path")
	flags.StringVar(&opts.format, "format", defaults.OutputFormat, "Output format: pipe, jsonl, or dual")
	flags.StringVar(&opts.archiveDB, "archive-db", "", "Also archive records into this sqlite database")
	flags.StringVar(&opts.settings, "settings", defaults.SettingsFile, "Settings file holding ThreadsCount")
	flags.StringVar(&opts.userAgents, "user-agents", defaults.UserAgentsFile, "User agent list, one per line")
	flags.StringVar(&opts.proxies, "proxies", defaults.ProxiesFile, "Proxy list, one host:port per line")
	flags.BoolVar(&opts.noProxy, "no-proxy", false, "Connect without a proxy")
	flags.BoolVar(&opts.headless, "headless", defaults.Headless, "Run Chrome headless")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent browser sessions (0 uses ThreadsCount from the settings file)")
	flags.IntVar(&opts.maxRetries, "max-retries", defaults.MaxRetries, "Maximum navigation retries per page")
	flags.StringVar(&opts.chromePath, "chrome-path", "", "Chrome executable (default: search PATH)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.StringVar(&opts.logFile, "log-file", defaults.LogFile, "Rotated log file (empty disables)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
