// Command visawatch is the appointment-watching daemon.
//
// Usage:
//
//	visawatch                          # env-only configuration
//	visawatch -config visawatch.yaml   # YAML config with env overrides
//	visawatch -once                    # run a single probe cycle and exit
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"visawatch/internal/browser"
	"visawatch/internal/capture"
	"visawatch/internal/config"
	"visawatch/internal/notify"
	"visawatch/internal/probe"
	"visawatch/internal/scheduler"
	"visawatch/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to visawatch.yaml config file")
	once := flag.Bool("once", false, "run one probe cycle and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *once); err != nil {
		logger.Error("visawatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	seeds := make([]store.SeedAccount, 0, len(cfg.Seeds))
	for _, s := range cfg.Seeds {
		seeds = append(seeds, store.SeedAccount(s))
	}
	if added, err := st.Seed(ctx, seeds); err != nil {
		return err
	} else if added > 0 {
		logger.Info("store: seeded accounts", "count", added)
	}

	mgr := browser.NewManager(browser.Config{
		Headless:  cfg.Browser.Headless,
		RemoteURL: cfg.Browser.Remote,
		Logger:    logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	capturer := capture.New(cfg.CapturesDir, logger)

	prober := probe.New(st, mgr, capturer, notifier, probe.Config{
		Cooldown: cfg.Cooldown(),
		Timeout:  cfg.Timeout(),
		Retries:  cfg.MaxRetries,
	}, logger)

	sched := scheduler.New(st, prober, scheduler.Config{
		Interval: cfg.CheckInterval,
	}, logger)

	if once {
		sched.RunCycle(ctx)
		return nil
	}

	sched.Run(ctx)
	return nil
}
