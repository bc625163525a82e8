package main

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"taskpoint/pkg/config"
	"taskpoint/pkg/db"
	"taskpoint/pkg/gen"
	"taskpoint/pkg/health"
	"taskpoint/pkg/logger"
	"taskpoint/pkg/proofstore"
	"taskpoint/pkg/ratelimit"
	"taskpoint/pkg/redis"
	"taskpoint/pkg/sequence"
	"taskpoint/pkg/server"
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
		sequence.Module,
		ratelimit.Module,
		proofstore.Module,
		gen.Module,
		fx.Provide(provideTracerProvider),
		rank.Module,
		reward.Module,
		wallet.Module,
		order.Module,
		submission.Module,
		notification.Module,
		rank.HTTP,
		wallet.HTTP,
		order.HTTP,
		submission.HTTP,
		health.Module,
		server.ProvideHTTPServer,
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

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}
