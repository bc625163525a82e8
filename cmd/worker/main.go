package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"taskpoint/pkg/config"
	"taskpoint/pkg/db"
	"taskpoint/pkg/gen"
	"taskpoint/pkg/logger"
	"taskpoint/pkg/redis"
	"taskpoint/pkg/sequence"
	"taskpoint/pkg/task"
	"taskpoint/services/notification"
	"taskpoint/services/order"
	"taskpoint/services/rank"
	"taskpoint/services/reward"
	"taskpoint/services/submission"
	"taskpoint/services/wallet"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		sequence.Module,
		gen.Module,
		rank.Module,
		reward.Module,
		wallet.Module,
		order.Module,
		submission.Module,
		notification.Module,
		order.Worker,
		submission.Worker,
		notification.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
