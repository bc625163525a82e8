package reward

import (
	"taskpoint/pkg/errutil"
)

// Difficulty levels recognized by the calculator. Unknown values fall back
// to the neutral multiplier.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

var difficultyMultipliers = map[string]float64{
	DifficultyEasy:   0.8,
	DifficultyMedium: 1.0,
	DifficultyHard:   1.2,
}

// defaultCategoryMultipliers covers the launch categories; anything not
// listed earns the neutral 1.0.
var defaultCategoryMultipliers = map[string]float64{
	"survey":        1.0,
	"content":       1.1,
	"moderation":    1.05,
	"data_labeling": 0.95,
}

// Calculator computes final payout points from base points and the
// submission's quality signals. It is pure: every output is derived from
// the input and the configured tables, and the full breakdown is returned
// so a payout can be explained from stored fields alone.
type Calculator struct {
	categoryMultipliers     map[string]float64
	defaultEstimatedMinutes int
}

type CalculatorParams struct {
	CategoryMultipliers     map[string]float64
	DefaultEstimatedMinutes int
}

func NewCalculator(p CalculatorParams) *Calculator {
	categories := p.CategoryMultipliers
	if categories == nil {
		categories = defaultCategoryMultipliers
	}
	estimated := p.DefaultEstimatedMinutes
	if estimated <= 0 {
		estimated = 30
	}
	return &Calculator{
		categoryMultipliers:     categories,
		defaultEstimatedMinutes: estimated,
	}
}

// Input carries everything the calculation needs. RankBonusPercent is the
// additive bonus of the operator's rank at verification time, resolved by
// the caller from the rank ladder.
type Input struct {
	BasePoints       int64
	Difficulty       string
	Category         string
	TimeSpentMinutes *int
	EstimatedMinutes int
	QualityScore     *int
	RankLevel        int
	RankBonusPercent int64
}

// Breakdown records every intermediate value of a calculation. It is
// stored verbatim on the submission row.
type Breakdown struct {
	BasePoints           int64   `json:"base_points"`
	DifficultyMultiplier float64 `json:"difficulty_multiplier"`
	CategoryMultiplier   float64 `json:"category_multiplier"`
	QualityMultiplier    float64 `json:"quality_multiplier"`
	TimeMultiplier       float64 `json:"time_multiplier"`
	TotalMultiplier      float64 `json:"total_multiplier"`
	MultipliedBase       int64   `json:"multiplied_base"`
	RankLevel            int     `json:"rank_level"`
	RankBonusPercent     int64   `json:"rank_bonus_percent"`
	RankBonus            int64   `json:"rank_bonus"`
	FinalPoints          int64   `json:"final_points"`
}

// Calculate runs the deterministic reward algorithm. Multiplied base and
// rank bonus are floored independently to match the platform's point
// granularity; the rank bonus is additive and never a penalty.
func (c *Calculator) Calculate(in Input) (Breakdown, error) {
	if in.BasePoints <= 0 {
		return Breakdown{}, errutil.ValidationFailed("base points must be positive")
	}
	if in.RankBonusPercent < 0 {
		return Breakdown{}, errutil.ValidationFailed("rank bonus percent must not be negative")
	}

	difficulty, ok := difficultyMultipliers[in.Difficulty]
	if !ok {
		difficulty = 1.0
	}

	category, ok := c.categoryMultipliers[in.Category]
	if !ok {
		category = 1.0
	}

	quality := qualityMultiplier(in.QualityScore)
	timeEff := c.timeMultiplier(in.TimeSpentMinutes, in.EstimatedMinutes)

	total := difficulty * category * quality * timeEff
	multipliedBase := int64(float64(in.BasePoints) * total)
	rankBonus := in.BasePoints * in.RankBonusPercent / 100

	return Breakdown{
		BasePoints:           in.BasePoints,
		DifficultyMultiplier: difficulty,
		CategoryMultiplier:   category,
		QualityMultiplier:    quality,
		TimeMultiplier:       timeEff,
		TotalMultiplier:      total,
		MultipliedBase:       multipliedBase,
		RankLevel:            in.RankLevel,
		RankBonusPercent:     in.RankBonusPercent,
		RankBonus:            rankBonus,
		FinalPoints:          multipliedBase + rankBonus,
	}, nil
}

func qualityMultiplier(score *int) float64 {
	if score == nil {
		return 1.0
	}
	switch s := *score; {
	case s >= 90:
		return 1.3
	case s >= 80:
		return 1.2
	case s >= 70:
		return 1.1
	case s >= 60:
		return 1.0
	case s >= 50:
		return 0.9
	default:
		return 0.8
	}
}

func (c *Calculator) timeMultiplier(spent *int, estimated int) float64 {
	if spent == nil {
		return 1.0
	}
	if estimated <= 0 {
		estimated = c.defaultEstimatedMinutes
	}

	ratio := float64(*spent) / float64(estimated)
	switch {
	case ratio <= 0.7:
		return 1.15
	case ratio <= 1.0:
		return 1.05
	case ratio <= 1.5:
		return 1.0
	default:
		return 0.95
	}
}
