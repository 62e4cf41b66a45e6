package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weibogeo/pkg/report"
	"weibogeo/pkg/storage"
)

var reportAddr string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Serve the collected data dashboard",
	Long: `Serve an HTTP dashboard over the collected data: a chart overview at
/, a JSON API under /api/, and Prometheus metrics at /metrics.`,
	Example: `  weibogeo report
  weibogeo report --addr :9090`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportAddr, "addr", "", "listen address (default from config)")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Report.ListenAddr
	if reportAddr != "" {
		addr = reportAddr
	}

	db, err := storage.NewDatabase(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer db.Close()

	server := report.NewServer(db, addr, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down report server: %w", err)
	}
	return nil
}
