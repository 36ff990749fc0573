/*
main.go - Application entry point

PURPOSE:
  Starts the condo repair tracker server and hosts the offline commands.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve      Run the HTTP server (default when no command is given)
  sessions   List session databases, newest first
  import     Parse a spreadsheet into a new session without the server

STARTUP SEQUENCE (serve):
  1. Load configuration (defaults, --config file, CONDO_* env, flags)
  2. Initialize logger
  3. Boot the session controller (newest session file or a new one)
  4. Create API handler, metrics, and router
  5. Start the upload sweeper
  6. Start server with graceful shutdown

GLOBAL FLAGS:
  --config     YAML config file (optional)
  --sessions   Session database directory (overrides storage.session_dir)

SERVE FLAGS:
  --port       HTTP server port (overrides server.port)
  --mode       Row mapping mode: plain | heuristic

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the upload sweeper
  4. Close the active session database
  5. Exit

EXAMPLES:
  # Run with defaults (port 3001, ./databases)
  ./server

  # Heuristic mapping on another port
  ./server serve --mode=heuristic --port=8080

  # Import offline
  ./server import ./repairs.xlsx

ENVIRONMENT:
  CONDO_PORT (or PORT), CONDO_SESSION_DIR, CONDO_UPLOAD_DIR,
  CONDO_MAPPING_MODE, CONDO_LOG_LEVEL, CONDO_LOG_FORMAT, CONDO_STATIC_DIR

SEE ALSO:
  - commands.go: sessions and import commands
  - api/server.go: Router configuration
  - session/controller.go: Active store lifecycle
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/condo-repairs/api"
	"github.com/warp/condo-repairs/config"
	"github.com/warp/condo-repairs/logging"
	"github.com/warp/condo-repairs/repairs"
	"github.com/warp/condo-repairs/session"
)

const shutdownTimeout = 30 * time.Second

// Global flags.
var (
	cfgFile     string
	sessionsDir string
)

var rootCmd = &cobra.Command{
	Use:   "condo-repairs",
	Short: "Condominium repair tracker",
	Long: `Condominium repair tracker.

Upload a spreadsheet of units and repairs, edit priorities, costs, suppliers
and dates, and view cost, supplier, unit, date and repair-type reports. Every
upload starts a new session database; the most recent one is resumed on
startup.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&sessionsDir, "sessions", "", "session database directory")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().Int("port", 0, "HTTP server port")
		cmd.Flags().String("mode", "", "row mapping mode (plain|heuristic)")
	}

	rootCmd.AddCommand(serveCmd, sessionsCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies global and per-command flag overrides on top of
// config.Load and re-validates.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if sessionsDir != "" {
		cfg.Storage.SessionDir = sessionsDir
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
	}
	if f := cmd.Flags().Lookup("mode"); f != nil && f.Changed {
		mode, _ := cmd.Flags().GetString("mode")
		cfg.Mapping.Mode = repairs.Mode(mode)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	// Initialize session controller
	sessions, err := session.New(cfg.Storage.SessionDir, session.WithLogger(log))
	if err != nil {
		return err
	}
	if err := sessions.Boot(cmd.Context()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sessions.Close()

	// Initialize handler
	metrics := api.NewMetrics()
	handler, err := api.NewHandler(sessions, api.HandlerConfig{
		Mode:           cfg.Mapping.Mode,
		UploadDir:      cfg.Uploads.Dir,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
		Logger:         log,
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      cfg.Server.StaticDir,
		Metrics:        metrics,
	})

	sweeper := api.NewUploadSweeper(handler.UploadDir(), log)
	sweeper.Interval = cfg.Uploads.SweepInterval
	sweeper.MaxAge = cfg.Uploads.MaxAge
	sweeper.Start()
	defer sweeper.Stop()

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.Server.Port,
			"mode":     cfg.Mapping.Mode,
			"database": sessions.Current(),
		}).Infof("Server starting on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
