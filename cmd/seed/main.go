package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"taskpoint/pkg/config"
	"taskpoint/pkg/db"
	"taskpoint/pkg/errutil"
	"taskpoint/pkg/gen"
	"taskpoint/pkg/logger"
	"taskpoint/services/order"
	"taskpoint/services/rank"
	"taskpoint/services/wallet"
)

// Seeds the rank ladder and a couple of starter templates into an empty
// database. Safe to re-run: existing templates are left alone.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		rank.Module,
		wallet.Module,
		order.Module,
		fx.Invoke(seedTemplates),
		fx.NopLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	_ = app.Stop(ctx)
}

func seedTemplates(svc *order.Service) error {
	ctx := context.Background()

	starters := []order.CreateTemplateParams{
		{
			Code:                    "survey-basic",
			Name:                    "Basic survey",
			Category:                "survey",
			Difficulty:              "medium",
			BaseCreditValue:         100,
			RequiredProofTypes:      []string{"screenshot"},
			VerificationWindowHours: 48,
			EstimatedMinutes:        30,
		},
		{
			Code:                    "content-review",
			Name:                    "Content review",
			Category:                "content",
			Difficulty:              "hard",
			BaseCreditValue:         250,
			RequiredProofTypes:      []string{"screenshot", "link"},
			VerificationWindowHours: 72,
			EstimatedMinutes:        60,
			MinRankLevel:            2,
			RequiresManualReview:    true,
		},
	}

	for _, p := range starters {
		if _, err := svc.CreateTemplate(ctx, p); err != nil {
			if errutil.HasStatus(err, errutil.StatusConflict) {
				continue
			}
			return err
		}
		zap.L().Info("seeded template", zap.String("code", p.Code))
	}
	return nil
}
