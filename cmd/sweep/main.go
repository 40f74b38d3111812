// Command sweep is the LineAlert notification CLI.
//
// Usage:
//
//	linealert-sweep once
//	linealert-sweep run --interval 60
//	linealert-sweep nearest --lat 41.8857 --lng -87.6309
//	linealert-sweep arrivals --lat 41.8857 --lng -87.6309 --type train
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mfigueroa/linealert/internal/alert"
	"github.com/mfigueroa/linealert/internal/config"
	"github.com/mfigueroa/linealert/internal/notify"
	"github.com/mfigueroa/linealert/internal/publisher"
	"github.com/mfigueroa/linealert/internal/stops"
	"github.com/mfigueroa/linealert/internal/store"
	"github.com/mfigueroa/linealert/internal/transit"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "linealert-sweep",
		Short: "LineAlert notification sweep CLI",
	}

	root.AddCommand(onceCmd())
	root.AddCommand(runCmd())
	root.AddCommand(nearestCmd())
	root.AddCommand(arrivalsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// once command
// --------------------------------------------------------------------------

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single notification sweep tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSweeper(func(ctx context.Context, sw *alert.Sweeper) error {
				start := time.Now()
				result := sw.Run(ctx)
				logger.Info("Sweep finished",
					"duration", time.Since(start).Round(time.Millisecond),
					"summary", result.Summary())
				if len(result.Errors) > 0 {
					return fmt.Errorf("sweep finished with %d errors", len(result.Errors))
				}
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var intervalSeconds int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the notification sweep on a fixed interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSweeper(func(ctx context.Context, sw *alert.Sweeper) error {
				interval := time.Duration(intervalSeconds) * time.Second
				sw.Start(ctx, interval)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&intervalSeconds, "interval", 60, "Seconds between sweeps")
	return cmd
}

// --------------------------------------------------------------------------
// nearest command
// --------------------------------------------------------------------------

func nearestCmd() *cobra.Command {
	var lat, lng float64
	cmd := &cobra.Command{
		Use:   "nearest",
		Short: "Resolve the stop nearest to a coordinate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			idx, err := stops.Load(cfg.StopsFile)
			if err != nil {
				return fmt.Errorf("load stops: %w", err)
			}
			stop, distance, err := idx.NearestDistance(lat, lng)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%.4f miles\n", stop.ID, stop.Name, distance)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}

// --------------------------------------------------------------------------
// arrivals command
// --------------------------------------------------------------------------

func arrivalsCmd() *cobra.Command {
	var lat, lng float64
	var kind string
	cmd := &cobra.Command{
		Use:   "arrivals",
		Short: "Show live arrivals at the stop nearest a coordinate",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			idx, err := stops.Load(cfg.StopsFile)
			if err != nil {
				return fmt.Errorf("load stops: %w", err)
			}
			stop, err := idx.Nearest(lat, lng)
			if err != nil {
				return err
			}

			client := newTransitClient(cfg)
			var predictions []transit.Prediction
			if kind == "all" {
				predictions = client.AllPredictions(ctx, stop.ID)
			} else {
				predictions, err = client.Predictions(ctx, stop.ID, transit.Kind(kind))
				if err != nil {
					return err
				}
			}

			fmt.Printf("Stop %s (%s):\n", stop.Name, stop.ID)
			if len(predictions) == 0 {
				fmt.Println("  no upcoming arrivals")
				return nil
			}
			for _, p := range predictions {
				if p.ArrivalMinutes == transit.NeverMinutes {
					fmt.Printf("  %s\tdelayed\n", p.Line)
					continue
				}
				fmt.Printf("  %s\t%d min\n", p.Line, p.ArrivalMinutes)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude")
	cmd.Flags().StringVar(&kind, "type", "all", "bus, train, or all")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// withSweeper handles config loading, store and gateway wiring, and context
// cancellation around a sweep invocation.
func withSweeper(fn func(ctx context.Context, sw *alert.Sweeper) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	idx, err := stops.Load(cfg.StopsFile)
	if err != nil {
		return fmt.Errorf("load stops: %w", err)
	}

	var st store.Store
	if cfg.UsesPostgres() {
		st, err = store.NewPostgres(ctx, cfg.DatabaseURL, store.PoolConfig{
			MinConns: cfg.DBPoolMinConns,
			MaxConns: cfg.DBPoolMaxConns,
			MaxLife:  cfg.DBPoolMaxLife,
		})
	} else {
		st, err = store.NewSQLite(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer st.Close()

	sender, err := buildSender(cfg)
	if err != nil {
		return fmt.Errorf("configure SMS backend: %w", err)
	}

	events, err := publisher.New(cfg.NATSURL, nil, logger)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer events.Close()

	sw := alert.NewSweeper(alert.SweeperConfig{
		Store:      st,
		Stops:      idx,
		Source:     newTransitClient(cfg),
		Sender:     sender,
		Suppressor: alert.NewSuppressor(cfg.SuppressionWindow),
		Events:     events,
		Workers:    cfg.SweepWorkers,
		Logger:     logger,
	})
	return fn(ctx, sw)
}

func newTransitClient(cfg *config.Config) *transit.Client {
	return transit.NewClient(
		"", "",
		cfg.CTABusAPIKey, cfg.CTATrainAPIKey,
		cfg.GatewayRPM, cfg.HTTPTimeout, cfg.PredictionCacheTTL,
		logger,
	)
}

func buildSender(cfg *config.Config) (notify.Sender, error) {
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
