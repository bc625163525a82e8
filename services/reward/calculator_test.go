package reward

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskpoint/pkg/errutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func intPtr(v int) *int { return &v }

func TestCalculateMediumSurveyWithRankBonus(t *testing.T) {
	calc := NewCalculator(CalculatorParams{})

	breakdown, err := calc.Calculate(Input{
		BasePoints:       100,
		Difficulty:       DifficultyMedium,
		Category:         "survey",
		RankLevel:        3,
		RankBonusPercent: 10,
	})
	require.NoError(t, err)

	require.Equal(t, 1.0, breakdown.TotalMultiplier)
	require.Equal(t, int64(100), breakdown.MultipliedBase)
	require.Equal(t, int64(10), breakdown.RankBonus)
	require.Equal(t, int64(110), breakdown.FinalPoints)
}

func TestCalculateRejectsNonPositiveBasePoints(t *testing.T) {
	calc := NewCalculator(CalculatorParams{})

	_, err := calc.Calculate(Input{BasePoints: 0})
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = calc.Calculate(Input{BasePoints: -5})
	require.Error(t, err)
}

func TestCalculateDifficultyMultipliers(t *testing.T) {
	calc := NewCalculator(CalculatorParams{})

	tests := []struct {
		difficulty string
		expected   float64
	}{
		{DifficultyEasy, 0.8},
		{DifficultyMedium, 1.0},
		{DifficultyHard, 1.2},
		{"unknown", 1.0},
	}

	for _, tc := range tests {
		breakdown, err := calc.Calculate(Input{
			BasePoints: 100,
			Difficulty: tc.difficulty,
			Category:   "survey",
		})
		require.NoError(t, err)
		require.Equal(t, tc.expected, breakdown.DifficultyMultiplier, "difficulty %s", tc.difficulty)
	}
}

func TestCalculateQualityBands(t *testing.T) {
	calc := NewCalculator(CalculatorParams{})

	tests := []struct {
		score    *int
		expected float64
	}{
		{nil, 1.0},
		{intPtr(95), 1.3},
		{intPtr(90), 1.3},
		{intPtr(85), 1.2},
		{intPtr(75), 1.1},
		{intPtr(65), 1.0},
		{intPtr(55), 0.9},
		{intPtr(30), 0.8},
	}

	for _, tc := range tests {
		breakdown, err := calc.Calculate(Input{
			BasePoints:   100,
			Difficulty:   DifficultyMedium,
			QualityScore: tc.score,
		})
		require.NoError(t, err)
		require.Equal(t, tc.expected, breakdown.QualityMultiplier)
	}
}

func TestCalculateTimeEfficiencyBands(t *testing.T) {
	calc := NewCalculator(CalculatorParams{})

	tests := []struct {
		spent    *int
		expected float64
	}{
		{nil, 1.0},
		{intPtr(20), 1.15}, // 20/30 <= 0.7
		{intPtr(28), 1.05},
		{intPtr(40), 1.0},
		{intPtr(60), 0.95},
	}

	for _, tc := range tests {
		breakdown, err := calc.Calculate(Input{
			BasePoints:       100,
			Difficulty:       DifficultyMedium,
			TimeSpentMinutes: tc.spent,
			EstimatedMinutes: 30,
		})
		require.NoError(t, err)
		require.Equal(t, tc.expected, breakdown.TimeMultiplier)
	}
}

func TestCalculateRankBonusFromBasePoints(t *testing.T) {
	calc := NewCalculator(CalculatorParams{})

	// the bonus applies to the raw base, not the multiplied base
	breakdown, err := calc.Calculate(Input{
		BasePoints:       100,
		Difficulty:       DifficultyHard,
		Category:         "content",
		RankBonusPercent: 20,
	})
	require.NoError(t, err)

	require.Equal(t, int64(20), breakdown.RankBonus)
	require.Equal(t, breakdown.MultipliedBase+20, breakdown.FinalPoints)
}

func TestCalculateBreakdownIsComplete(t *testing.T) {
	calc := NewCalculator(CalculatorParams{})

	breakdown, err := calc.Calculate(Input{
		BasePoints:       200,
		Difficulty:       DifficultyHard,
		Category:         "content",
		QualityScore:     intPtr(92),
		TimeSpentMinutes: intPtr(10),
		EstimatedMinutes: 30,
		RankLevel:        4,
		RankBonusPercent: 20,
	})
	require.NoError(t, err)

	expectedTotal := 1.2 * 1.1 * 1.3 * 1.15
	require.InDelta(t, expectedTotal, breakdown.TotalMultiplier, 1e-9)
	require.Equal(t, int64(float64(200)*expectedTotal), breakdown.MultipliedBase)
	require.Equal(t, 4, breakdown.RankLevel)
	require.Equal(t, int64(40), breakdown.RankBonus)
	require.Equal(t, breakdown.MultipliedBase+breakdown.RankBonus, breakdown.FinalPoints)
}
