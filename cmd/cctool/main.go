// Command cctool analyzes covered-call candidates for a ticker from the command
// line or over HTTP.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/covered_call/internal/analysis"
	"github.com/eddiefleurent/covered_call/internal/broker"
	"github.com/eddiefleurent/covered_call/internal/config"
	"github.com/eddiefleurent/covered_call/internal/mock"
	"github.com/eddiefleurent/covered_call/internal/retry"
)

// app holds the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	useMock    bool
	asJSON     bool
	asTable    bool

	cfg      *config.Config
	logger   *logrus.Logger
	analyzer *analysis.Analyzer
}

// marketAnalyzer builds the gateway and analyzer on first use so commands
// without market data never need broker credentials.
func (a *app) marketAnalyzer() (*analysis.Analyzer, error) {
	if a.analyzer != nil {
		return a.analyzer, nil
	}
	gateway, err := a.buildGateway()
	if err != nil {
		return nil, err
	}
	a.analyzer = analysis.NewAnalyzer(gateway, a.cfg.GetSession(), a.cfg.GetAnalysisOptions(), a.logger)
	return a.analyzer, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cctool",
		Short:         "Covered-call analysis against live or mock option chains",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "Path to configuration file")
	root.PersistentFlags().BoolVar(&a.useMock, "mock", false, "Use the offline mock market-data provider")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVar(&a.asTable, "table", false, "Print candidates as a table")

	root.AddCommand(
		newCoveredCallCmd(a),
		newBulkCmd(a),
		newOpenCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if a.asJSON && a.asTable {
		return errors.New("--json and --table are mutually exclusive")
	}
	if err := config.LoadEnv(); err != nil {
		return err
	}

	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Environment.LogLevel)
	return nil
}

// loadConfig reads the config file. A missing default file falls back to the
// built-in defaults; an explicitly named file must exist.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	_, statErr := os.Stat(a.configPath)
	switch {
	case statErr == nil:
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	case errors.Is(statErr, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	default:
		return nil, fmt.Errorf("failed to load config: %w", statErr)
	}

	if a.useMock {
		cfg.Broker.Provider = "mock"
	}
	return cfg, nil
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// buildGateway returns the configured MarketData: the mock provider, or Tradier
// behind a circuit breaker and retries.
func (a *app) buildGateway() (broker.MarketData, error) {
	if a.cfg.UseMock() {
		a.logger.Info("Using mock market data provider")
		return mock.NewMarketDataProvider(mock.DefaultPrice), nil
	}
	if err := a.cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	mode := "production"
	if a.cfg.IsSandbox() {
		mode = "sandbox"
	}
	a.logger.WithField("mode", mode).Debug("Using Tradier market data provider")

	tradier := broker.NewTradierAPIWithTimeout(
		a.cfg.Broker.APIKey,
		a.cfg.IsSandbox(),
		a.cfg.Broker.APIEndpoint,
		a.cfg.GetBrokerTimeout(),
	)
	breaker := broker.NewCircuitBreakerMarketData(tradier)
	return retry.NewClient(breaker, a.logger, a.cfg.GetRetryConfig()), nil
}
