// Command api is the LineAlert API server.
//
// Usage:
//
//	linealert-api
//	API_PORT=8080 linealert-api

// @title LineAlert API
// @version 1.0.0
// @description Personal CTA transit alerts: phone verification, favorite lines, home location, live arrivals, and SMS notifications when a favorite line is about to arrive.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/mfigueroa/linealert/internal/alert"
	"github.com/mfigueroa/linealert/internal/api"
	"github.com/mfigueroa/linealert/internal/api/handler"
	"github.com/mfigueroa/linealert/internal/cache"
	"github.com/mfigueroa/linealert/internal/config"
	"github.com/mfigueroa/linealert/internal/metrics"
	"github.com/mfigueroa/linealert/internal/notify"
	"github.com/mfigueroa/linealert/internal/otp"
	"github.com/mfigueroa/linealert/internal/publisher"
	"github.com/mfigueroa/linealert/internal/stops"
	"github.com/mfigueroa/linealert/internal/store"
	"github.com/mfigueroa/linealert/internal/transit"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Stop dataset is required; the resolver is useless without it.
	idx, err := stops.Load(cfg.StopsFile)
	if err != nil {
		logger.Error("Failed to load stop dataset", "path", cfg.StopsFile, "error", err)
		os.Exit(1)
	}
	logger.Info("Stop dataset loaded", "path", cfg.StopsFile, "stops", idx.Count())

	// Connect to the user store
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open user store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("User store ready", "postgres", cfg.UsesPostgres())

	// CTA prediction gateway
	source := transit.NewClient(
		"", "",
		cfg.CTABusAPIKey, cfg.CTATrainAPIKey,
		cfg.GatewayRPM, cfg.HTTPTimeout, cfg.PredictionCacheTTL,
		logger,
	)

	// SMS delivery backend
	sender, err := buildSender(cfg, logger)
	if err != nil {
		logger.Error("Failed to configure SMS backend", "backend", cfg.SMSBackend, "error", err)
		os.Exit(1)
	}
	logger.Info("SMS backend configured", "backend", cfg.SMSBackend)

	// Verification codes and sessions
	otpSvc := otp.NewService(cfg.OTPTTL, sender, logger)
	defer otpSvc.Close()
	sessions := cache.New[string](cfg.SessionTTL)
	defer sessions.Close()

	// Metrics
	collector := metrics.NewCollector()

	// Alert event publisher (optional)
	events, err := publisher.New(cfg.NATSURL, collector, logger)
	if err != nil {
		logger.Error("Failed to connect to NATS", "url", cfg.NATSURL, "error", err)
		os.Exit(1)
	}
	defer events.Close()

	// Notification sweep
	sweeper := alert.NewSweeper(alert.SweeperConfig{
		Store:      st,
		Stops:      idx,
		Source:     source,
		Sender:     sender,
		Suppressor: alert.NewSuppressor(cfg.SuppressionWindow),
		Events:     events,
		Metrics:    collector,
		Workers:    cfg.SweepWorkers,
		Logger:     logger,
	})
	go sweeper.Start(ctx, cfg.SweepInterval)

	// Create router
	h := handler.New(st, idx, source, otpSvc, sessions, cfg, logger)
	router := api.NewRouter(h, collector.Handler(), cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting LineAlert API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}

// openStore selects the backend by DATABASE_URL scheme.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.UsesPostgres() {
		return store.NewPostgres(ctx, cfg.DatabaseURL, store.PoolConfig{
			MinConns: cfg.DBPoolMinConns,
			MaxConns: cfg.DBPoolMaxConns,
			MaxLife:  cfg.DBPoolMaxLife,
		})
	}
	return store.NewSQLite(ctx, cfg.DatabaseURL)
}

// buildSender selects the SMS delivery backend.
func buildSender(cfg *config.Config, logger *slog.Logger) (notify.Sender, error) {
	switch cfg.SMSBackend {
	case "smtp":
		return notify.NewSMTPSender(cfg.MailServer, cfg.MailPort, cfg.MailUsername, cfg.MailPassword, cfg.MailSender, logger)
	case "twilio":
		return notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	case "log", "":
		return notify.NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown SMS backend %q", cfg.SMSBackend)
	}
}
