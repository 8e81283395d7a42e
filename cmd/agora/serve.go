package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agora/internal/server"

	"github.com/spf13/cobra"
)

const sessionCleanupInterval = time.Hour

var (
	servePort int
	serveProd bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort > 0 {
			cfg.Port = servePort
		}
		if cmd.Flags().Changed("prod") {
			cfg.ProductionMode = serveProd
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger.Printf("Starting Agora %s", Version)
		logger.Printf("Port: %d", cfg.Port)
		logger.Printf("Database: %s", cfg.DBPath)
		logger.Printf("Feed parser: %s", cfg.FeedParser)
		logger.Printf("Mode: %s", map[bool]string{true: "production", false: "development"}[cfg.ProductionMode])

		svc, err := newServices(cfg, db, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer svc.Close()

		srv, err := server.NewServer(db, logger, svc.auth, svc.feeds, server.Config{
			UseHTTPS:       cfg.ProductionMode,
			ProductionMode: cfg.ProductionMode,
			SiteTitle:      cfg.SiteTitle,
			SiteURL:        cfg.SiteURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go cleanSessions(ctx, svc)

		if err := srv.Start(ctx, cfg.GetAddress()); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Printf("Server stopped")
		return nil
	},
}

// cleanSessions purges expired sessions until ctx is done.
func cleanSessions(ctx context.Context, svc *services) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.auth.CleanExpiredSessions(ctx, db.DB)
			if err != nil {
				logger.Printf("Error cleaning sessions: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("Removed %d expired session(s)", n)
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to run the server on (default: 8080 or AGORA_PORT)")
	serveCmd.Flags().BoolVar(&serveProd, "prod", false, "enable production mode (secure cookies and HSTS)")
	rootCmd.AddCommand(serveCmd)
}
