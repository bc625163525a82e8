package reward

import (
	"go.uber.org/fx"

	"taskpoint/pkg/config"
)

var Module = fx.Module("reward.calculator",
	fx.Provide(provideCalculator),
)

func provideCalculator(cfg *config.Config) *Calculator {
	return NewCalculator(CalculatorParams{
		DefaultEstimatedMinutes: cfg.Engine.DefaultEstimatedMinutes,
	})
}
