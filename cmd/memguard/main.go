package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/voss/memguard/internal/config"
	"codeberg.org/voss/memguard/internal/errors"
	"codeberg.org/voss/memguard/internal/eventbus"
	"codeberg.org/voss/memguard/internal/logger"
	"codeberg.org/voss/memguard/internal/mitigate"
	"codeberg.org/voss/memguard/internal/monitor"
	"codeberg.org/voss/memguard/internal/pid"
	"codeberg.org/voss/memguard/internal/pressure"
	"codeberg.org/voss/memguard/internal/sampler"
	"codeberg.org/voss/memguard/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("error in main loop")
		} else {
			logger.Error().Err(err).Msg("error in main loop")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	sampleFn := sampler.System()
	if cfg.Sampler == "heap" {
		sampleFn = sampler.Heap()
	}

	bus := eventbus.New()

	executor := mitigate.NewExecutor(mitigate.Config{
		GCNudge: cfg.GCNudge,
		DryRun:  cfg.Monitor,
	}, mitigate.NewExecRestarter())

	var journal *store.Journal
	if cfg.Journal {
		journalCfg := store.DefaultConfig()
		journalCfg.Path = cfg.JournalDB

		var err error
		journal, err = store.New(journalCfg)
		if err != nil {
			return err
		}

		bus.Subscribe(func(ev pressure.Event) {
			if err := journal.Record(ev); err != nil {
				logger.Error().Err(err).Msg("failed to journal pressure event")
			}
		})
		executor.AttachStore(journal)
	}

	classifier, err := pressure.NewClassifier(
		pressure.Thresholds{
			WarningMB:   float64(cfg.WarningMB),
			CriticalMB:  float64(cfg.CriticalMB),
			EmergencyMB: float64(cfg.EmergencyMB),
		},
		time.Duration(cfg.ThrottleWindow)*time.Second,
		bus,
		executor,
	)
	if err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Config{
		Interval:    time.Duration(cfg.Interval) * time.Second,
		HistorySize: cfg.HistorySize,
	}, sampleFn)
	if err != nil {
		return err
	}
	mon.AddListener(classifier.OnSample)

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging memory pressure only...")
	}

	if err := mon.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	mon.Stop()
	executor.Wait()

	st := mon.Stats()
	logger.Info().
		Int("samples", st.Samples).
		Float64("high_water_mb", st.HighWaterMB).
		Float64("average_mb", st.AverageMB).
		Msg("Monitor stopped")

	if journal != nil {
		if err := journal.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close journal")
		}
	}

	logger.Info().Msg("Exiting...")

	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
