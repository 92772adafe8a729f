package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/GudMeong/Anjani/internal/adapters/classifier"
	"github.com/GudMeong/Anjani/internal/bot"
	"github.com/GudMeong/Anjani/internal/config"
	"github.com/GudMeong/Anjani/internal/db/sqlite"
	"github.com/GudMeong/Anjani/internal/event"
	"github.com/GudMeong/Anjani/internal/handlers/shield"
	"github.com/GudMeong/Anjani/internal/infra"
	"github.com/GudMeong/Anjani/internal/lifecycle"
	"github.com/GudMeong/Anjani/internal/observability"
)

const (
	taskQueueSize    = 256
	taskQueueWorkers = 4
)

func main() {
	cfg := config.Get()
	log.SetFormatter(&config.ShieldFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	if err := observability.Init(); err != nil {
		log.WithField("error", err.Error()).Fatalln("cant initialize observability")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	infra.GoRecoverable(-1, "main_loop", func() {
		run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg config.Config) {
	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithField("error", err.Error()).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	dbClient, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), "anjani.db")
	if err != nil {
		log.WithField("error", err.Error()).Fatalln("cant initialize database")
	}
	defer dbClient.Close()

	scorer, err := classifier.New(cfg.Classifier, log.WithField("object", "Classifier"))
	if err != nil {
		log.WithField("error", err.Error()).Fatalln("cant initialize classifier")
	}

	queue := event.NewQueue(taskQueueSize, taskQueueWorkers)
	runtime := lifecycle.NewRuntime(
		queue,
		observability.NewMetricsServer(cfg.MetricsAddr),
	)
	if err := runtime.Start(ctx); err != nil {
		log.WithField("error", err.Error()).Fatalln("cant start runtime")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithField("error", err.Error()).Errorln("cant stop runtime cleanly")
		}
	}()

	service := bot.NewService(botAPI, dbClient, cfg)
	bot.RegisterUpdateHandler("shield", shield.NewShield(service, queue, scorer, cfg.Shield))

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateProcessor := bot.NewUpdateProcessor(service)

	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

	for {
		select {
		case err := <-errorChan:
			log.WithField("error", err.Error()).Fatalln("bot api get updates error")
		case update := <-updateChan:
			if err := updateProcessor.Process(ctx, &update); err != nil {
				log.WithField("error", err.Error()).Errorln("cant process update")
			}
		case <-ctx.Done():
			log.Infoln("no more updates")
			return
		}
	}
}
