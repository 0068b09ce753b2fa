package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/auth"
	"github.com/iurnickita/kiosk/internal/config"
	"github.com/iurnickita/kiosk/internal/directory"
	"github.com/iurnickita/kiosk/internal/events"
	"github.com/iurnickita/kiosk/internal/handler"
	"github.com/iurnickita/kiosk/internal/ledger"
	"github.com/iurnickita/kiosk/internal/logger"
	"github.com/iurnickita/kiosk/internal/notify"
	"github.com/iurnickita/kiosk/internal/service"
	"github.com/iurnickita/kiosk/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := ledger.NewRegistry(store, ledger.WithWriteTimeout(cfg.Store.WriteTimeout))
	if err := registry.Restore(ctx); err != nil {
		return err
	}
	zaplog.Info("ledger restored", zap.Int("accounts", len(registry.Accounts())))

	dir, err := directory.Load(cfg.Directory.Path)
	if err != nil {
		return err
	}

	publisher := events.NewPublisher(cfg.Events)
	defer publisher.Close()

	sender := notify.NewSender(cfg.Notify, zaplog)
	service := service.NewService(cfg.Service, registry, dir, dir, sender, publisher, zaplog)
	// фоновые зачисления и уведомления завершаются до закрытия журнала
	defer service.Wait()

	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err = scheduler.AddFunc(cfg.Service.ArchiveSchedule, func() {
		archived := 0
		for _, outcome := range service.ArchiveAll(ctx) {
			if outcome.Archived {
				archived++
			}
		}
		zaplog.Info("monthly archive finished", zap.Int("archived", archived))
	})
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	auth := auth.NewAuth(cfg.Auth, dir, zaplog)

	zaplog.Info("kiosk started", zap.String("address", cfg.Handler.ServerAddr))
	return handler.Serve(ctx, cfg.Handler, auth, service, zaplog)
}
