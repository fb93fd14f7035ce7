package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flaneur/internal/server"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server for cron triggers and sighting submissions",
		Long: `Start the Flâneur HTTP server.

The server provides:
  • GET|POST /api/cron/{job} to trigger a pipeline (bearer CRON_SECRET)
  • POST /api/sightings to submit a reader property sighting
  • /health and /metrics endpoints

Examples:
  # Start server on default port 8080
  flaneur serve

  # Start on custom port
  flaneur serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w\n\n"+
			"Make sure PostgreSQL is running and the connection string is correct.\n"+
			"Run 'flaneur migrate up' to initialize the database schema.", err)
	}

	serverCfg := a.cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}
	if serverCfg.CronSecret == "" && !a.cfg.App.DevMode {
		if serverCfg.TrustCronHeader {
			a.log.Warn("CRON_SECRET is not set; only scheduler-identity calls will be accepted")
		} else {
			a.log.Warn("CRON_SECRET is not set and the scheduler header is not trusted; cron endpoints will reject every call")
		}
	}

	srv := server.New(a.db, a.runner, server.Options{Config: serverCfg, DevMode: a.cfg.App.DevMode})

	serverErrors := make(chan error, 1)
	go func() {
		a.log.Info(fmt.Sprintf("Server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		a.log.Info("Server shutdown initiated", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("Server shutdown failed, forcing close", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		a.log.Info("Server stopped successfully")
	}

	return nil
}
