// Package cmd wires the process together: config, logging, storage,
// the VK client, the poll loop and the dispatch pool.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"vkcoursebot/core/buildinfo"
	"vkcoursebot/core/catalog"
	coreconfig "vkcoursebot/core/config"
	"vkcoursebot/core/database"
	"vkcoursebot/core/dispatch"
	"vkcoursebot/core/health"
	"vkcoursebot/core/logger"
	"vkcoursebot/core/longpoll"
	"vkcoursebot/core/notify"
	"vkcoursebot/core/session"
	"vkcoursebot/core/vk"
)

const defaultConfigPath = "config.yaml"

// Run is the process entry point behind cmd/bot. It blocks until the
// poll loop stops or the process receives SIGINT/SIGTERM.
func Run() error {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(cfg.Database); err != nil {
		return err
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	client := vk.NewClient(vk.Options{
		Token:      cfg.VK.Token,
		GroupID:    cfg.VK.GroupID,
		APIVersion: cfg.VK.APIVersion,
		SendRate:   cfg.VK.SendRate,
	})

	sessions := session.New(session.NewPostgresStore(db))
	courses := catalog.NewPostgresRepo(db)

	notifier, err := notify.NewTelegram(cfg.Notify)
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Sessions: sessions,
		Profiles: client,
		Sender:   client,
		Courses:  courses,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}

	pool, err := dispatch.NewPool(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, dispatcher.Process)
	if err != nil {
		return err
	}

	poller, err := longpoll.New(longpoll.Options{
		Gateway:     client,
		WaitSeconds: cfg.VK.WaitSeconds,
		Backoff:     time.Duration(cfg.VK.BackoffSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	pool.Start(ctx)
	defer pool.Close()
	_ = notifier.Startup(ctx, buildinfo.Version)

	logger.L.Info("bot started",
		slog.String("component", "app"),
		slog.String("event", "run"),
		slog.String("mode", "longpoll"),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx, dispatcher.Sink(pool))
	})
	if cfg.Ops.Listen != "" {
		ops := health.NewServer(cfg.Ops.Listen, poller, pool)
		g.Go(func() error {
			return ops.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		_ = notifier.PollFault(context.Background(), err)
		return err
	}
	return nil
}
