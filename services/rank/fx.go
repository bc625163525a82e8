package rank

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskpoint/pkg/config"
)

var Module = fx.Module("rank.service",
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config) time.Duration { return cfg.Engine.RankDecayWindow },
			fx.ResultTags(`name:"rank_decay_window"`),
		),
		NewService,
	),
	fx.Invoke(EnsureReferenceData),
)

// DefaultLevels is the built-in rank ladder used when the reference table
// has not been populated yet.
func DefaultLevels() []RankLevel {
	bronze := RankLevel{Level: 1, Name: "bronze", MinVerifiedExecutions: 0, MinSuccessRate: 0, DecayRatePercent: 0, PointBonusPercent: 0}
	bronze.SetTemplateCodes([]string{"*"})

	silver := RankLevel{Level: 2, Name: "silver", MinVerifiedExecutions: 10, MinSuccessRate: 0.6, DecayRatePercent: 5, PointBonusPercent: 5}
	silver.SetTemplateCodes([]string{"*"})

	gold := RankLevel{Level: 3, Name: "gold", MinVerifiedExecutions: 50, MinSuccessRate: 0.75, DecayRatePercent: 10, PointBonusPercent: 10}
	gold.SetTemplateCodes([]string{"*"})

	platinum := RankLevel{Level: 4, Name: "platinum", MinVerifiedExecutions: 200, MinSuccessRate: 0.85, DecayRatePercent: 15, PointBonusPercent: 20}
	platinum.SetTemplateCodes([]string{"*"})

	return []RankLevel{bronze, silver, gold, platinum}
}

// EnsureReferenceData migrates and validates the rank tables at startup,
// seeding the default ladder when empty. Invalid reference data aborts
// startup.
func EnsureReferenceData(db *gorm.DB, svc *Service) error {
	if err := db.AutoMigrate(&RankLevel{}, &ExecutionMode{}, &OperatorStats{}); err != nil {
		return err
	}

	ctx := context.Background()

	levels, err := svc.Levels(ctx)
	if err != nil {
		return err
	}

	if len(levels) == 0 {
		zap.L().Info("seeding default rank levels")
		for _, level := range DefaultLevels() {
			level := level
			if err := db.Create(&level).Error; err != nil {
				return err
			}
		}
		svc.InvalidateCache()
		if levels, err = svc.Levels(ctx); err != nil {
			return err
		}
	}

	return ValidateLevels(levels)
}
