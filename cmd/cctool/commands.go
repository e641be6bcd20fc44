package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/covered_call/internal/dashboard"
)

func newCoveredCallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cc TICKER [EXPIRATION]",
		Short: "Analyze covered calls for one expiration (earliest listed by default)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested := ""
			if len(args) > 1 {
				requested = args[1]
			}
			analyzer, err := a.marketAnalyzer()
			if err != nil {
				return err
			}
			res, err := analyzer.CoveredCalls(cmd.Context(), args[0], requested)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case a.asJSON:
				return writeJSON(out, dashboard.NewAnalysisView(res))
			case a.asTable:
				fmt.Fprintf(out, "%s $%g  Ex Date: %s\n", res.Quote.Ticker, res.Quote.Last, res.Expiration)
				writeTable(out, res.OptionsChain)
				return nil
			default:
				fmt.Fprintln(out, res.DisplayText)
				return nil
			}
		},
	}
}

func newBulkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bulk TICKER [N]",
		Short: "Analyze covered calls for the first N listed expirations",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 0
			if len(args) > 1 {
				v, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("N must be an integer: %q", args[1])
				}
				n = v
			}
			analyzer, err := a.marketAnalyzer()
			if err != nil {
				return err
			}
			res, err := analyzer.Bulk(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.asJSON {
				return writeJSON(out, dashboard.NewBulkView(res))
			}
			writeBulk(out, res, a.asTable)
			return nil
		},
	}
}

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open [RFC3339-TIME]",
		Short: "Report whether the exchange is open now or at the given time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ref *time.Time
			if len(args) == 1 {
				t, err := time.Parse(time.RFC3339, args[0])
				if err != nil {
					return fmt.Errorf("invalid time %q: %w", args[0], err)
				}
				ref = &t
			}
			open := a.cfg.GetSession().IsOpen(ref)
			out := cmd.OutOrStdout()
			if a.asJSON {
				return writeJSON(out, map[string]bool{"open": open})
			}
			if open {
				fmt.Fprintln(out, "Market is open")
			} else {
				fmt.Fprintln(out, "Market is closed")
			}
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}
			analyzer, err := a.marketAnalyzer()
			if err != nil {
				return err
			}
			srv := dashboard.NewServer(dashboard.Config{
				Port:      port,
				AuthToken: a.cfg.Server.AuthToken,
			}, analyzer, a.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				a.logger.Info("Shutdown signal received, stopping server...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			a.logger.Info("Server stopped successfully")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Listen port (overrides server.port)")
	return cmd
}
