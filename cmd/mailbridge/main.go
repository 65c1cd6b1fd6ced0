package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/scnet-ops/mailbridge/internal/config"
	"github.com/scnet-ops/mailbridge/internal/inbound/connector"
	"github.com/scnet-ops/mailbridge/internal/inbound/correlate"
	"github.com/scnet-ops/mailbridge/internal/inbound/parse"
	"github.com/scnet-ops/mailbridge/internal/inbound/poller"
	"github.com/scnet-ops/mailbridge/internal/quarantine"
	"github.com/scnet-ops/mailbridge/internal/runner"
	"github.com/scnet-ops/mailbridge/internal/tracker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configFileFlag string

var rootCmd = &cobra.Command{
	Use:   "mailbridge",
	Short: "Bridge a support mailbox into the ticket tracker",
	Long: `mailbridge polls an IMAP mailbox for new messages and turns each one
into a ticket update: a note on the matching ticket when one exists,
or a brand new ticket when none does. Messages it cannot process are
quarantined to disk for inspection.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the mailbox on a schedule until terminated",
	RunE:  runDaemon,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run a single poll cycle and exit",
	RunE:  runPollOnce,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mailbridge %s\n", rootCmd.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFileFlag, "config", "", "Path to a YAML config file (optional, env vars override it)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildPoller wires the pipeline from configuration: tracker client, IMAP
// mailbox, parser, correlator, and quarantine store.
func buildPoller(cfg *config.Config, logger *log.Logger) (*poller.Poller, error) {
	trackerClient := tracker.NewClient(tracker.Config{
		BaseURL:   cfg.Tracker.URL,
		APIKey:    cfg.Tracker.APIKey,
		ProjectID: cfg.Tracker.Project,
		Timeout:   cfg.Tracker.Timeout,
	})

	mailbox := connector.NewIMAPMailbox(connector.Account{
		Host:     cfg.Mailbox.Host,
		Port:     cfg.Mailbox.Port,
		Username: cfg.Mailbox.User,
		Password: []byte(cfg.Mailbox.Password),
		UseTLS:   cfg.Mailbox.TLS,
		Folder:   cfg.Mailbox.Folder,
	}, connector.WithIMAPLogger(logger))

	store, err := quarantine.NewStore(cfg.Quarantine.Dir, quarantine.WithStoreLogger(logger))
	if err != nil {
		return nil, err
	}

	return poller.NewPoller(
		mailbox,
		parse.NewParser(parse.WithParserLogger(logger)),
		correlate.NewCorrelator(trackerClient, correlate.WithCorrelatorLogger(logger)),
		store,
		poller.WithPollerLogger(logger),
	), nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFileFlag)
	if err != nil {
		return err
	}
	logger := log.New(os.Stdout, "[mailbridge] ", log.LstdFlags)

	p, err := buildPoller(cfg, logger)
	if err != nil {
		return err
	}

	registry := runner.NewTaskRegistry()
	registry.Register(runner.NewPollTask(p, cfg.Poll.Schedule, cfg.Poll.Timeout))

	r := runner.NewRunner(registry, runner.WithRunnerLogger(logger), runner.WithRunAtStart())
	return r.Start(cmd.Context())
}

func runPollOnce(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFileFlag)
	if err != nil {
		return err
	}
	logger := log.New(os.Stdout, "[mailbridge] ", log.LstdFlags)

	p, err := buildPoller(cfg, logger)
	if err != nil {
		return err
	}

	n, err := p.PollOnce(cmd.Context())
	if err != nil {
		return err
	}
	logger.Printf("poll complete, %d messages processed", n)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
