package rank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskpoint/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T, decayWindow time.Duration) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &RankLevel{}, &ExecutionMode{}, &OperatorStats{})

	svc := NewService(ServiceParams{DB: db, DecayWindow: decayWindow})

	for _, level := range DefaultLevels() {
		level := level
		require.NoError(t, db.Create(&level).Error)
	}

	// warm the reference cache before any transactional work
	_, err := svc.Levels(context.Background())
	require.NoError(t, err)

	return svc, db
}

func TestValidateLevels(t *testing.T) {
	require.Error(t, ValidateLevels(nil))

	require.NoError(t, ValidateLevels(DefaultLevels()))

	nonZeroLowest := DefaultLevels()
	nonZeroLowest[0].MinVerifiedExecutions = 5
	require.Error(t, ValidateLevels(nonZeroLowest))

	unordered := DefaultLevels()
	unordered[2].MinVerifiedExecutions = unordered[1].MinVerifiedExecutions
	require.Error(t, ValidateLevels(unordered))

	decreasingBonus := DefaultLevels()
	decreasingBonus[3].PointBonusPercent = 1
	require.Error(t, ValidateLevels(decreasingBonus))
}

func TestComputeRank(t *testing.T) {
	levels := DefaultLevels()

	tests := []struct {
		name     string
		verified int64
		failed   int64
		expected int
	}{
		{"fresh operator", 0, 0, 1},
		{"below silver threshold", 9, 0, 1},
		{"silver", 10, 0, 2},
		{"silver with weak success rate", 50, 50, 1},
		{"gold", 50, 10, 3},
		{"platinum", 200, 20, 4},
		{"platinum volume, gold rate", 200, 50, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stats := &OperatorStats{VerifiedExecutions: tc.verified, FailedExecutions: tc.failed}
			require.Equal(t, tc.expected, ComputeRank(levels, stats))
		})
	}
}

func TestComputeRankMonotonicInVerified(t *testing.T) {
	levels := DefaultLevels()

	previous := 0
	for verified := int64(0); verified <= 250; verified += 5 {
		stats := &OperatorStats{VerifiedExecutions: verified}
		got := ComputeRank(levels, stats)
		require.GreaterOrEqual(t, got, previous, "rank dropped at verified=%d", verified)
		previous = got
	}
}

func TestEffectiveRankDecay(t *testing.T) {
	svc, _ := newTestService(t, 30*24*time.Hour)

	levels := []RankLevel{
		{Level: 1, Name: "bronze", MinVerifiedExecutions: 0, MinSuccessRate: 0, DecayRatePercent: 0, PointBonusPercent: 0},
		{Level: 2, Name: "silver", MinVerifiedExecutions: 10, MinSuccessRate: 0.6, DecayRatePercent: 50, PointBonusPercent: 5},
		{Level: 3, Name: "gold", MinVerifiedExecutions: 50, MinSuccessRate: 0.75, DecayRatePercent: 100, PointBonusPercent: 10},
	}

	now := time.Now()
	goldStats := &OperatorStats{VerifiedExecutions: 60, FailedExecutions: 10}

	// active operators do not decay
	recent := now.Add(-24 * time.Hour)
	goldStats.LastExecutionAt = &recent
	require.Equal(t, 3, svc.EffectiveRank(levels, goldStats, now))

	// gold decays at 100 percent: one idle window drops one level
	oneWindow := now.Add(-35 * 24 * time.Hour)
	goldStats.LastExecutionAt = &oneWindow
	require.Equal(t, 2, svc.EffectiveRank(levels, goldStats, now))

	// silver decays at 50 percent: the next drop takes two more windows
	twoWindows := now.Add(-65 * 24 * time.Hour)
	goldStats.LastExecutionAt = &twoWindows
	require.Equal(t, 2, svc.EffectiveRank(levels, goldStats, now))

	threeWindows := now.Add(-95 * 24 * time.Hour)
	goldStats.LastExecutionAt = &threeWindows
	require.Equal(t, 1, svc.EffectiveRank(levels, goldStats, now))

	// bronze has no decay rate, so idle bronze operators stay bronze
	ancient := now.Add(-400 * 24 * time.Hour)
	goldStats.LastExecutionAt = &ancient
	require.Equal(t, 1, svc.EffectiveRank(levels, goldStats, now))

	bronzeStats := &OperatorStats{LastExecutionAt: &ancient}
	require.Equal(t, 1, svc.EffectiveRank(levels, bronzeStats, now))

	// stored rank is never mutated by decay
	require.Equal(t, 3, ComputeRank(levels, goldStats))
}

func TestEffectiveRankDecayRateMagnitude(t *testing.T) {
	svc, _ := newTestService(t, 30*24*time.Hour)
	levels := DefaultLevels()

	now := time.Now()
	goldStats := &OperatorStats{VerifiedExecutions: 60, FailedExecutions: 10}

	// gold's 10 percent rate needs ten full windows to shed one level
	nineWindows := now.Add(-299 * 24 * time.Hour)
	goldStats.LastExecutionAt = &nineWindows
	require.Equal(t, 3, svc.EffectiveRank(levels, goldStats, now))

	tenWindows := now.Add(-301 * 24 * time.Hour)
	goldStats.LastExecutionAt = &tenWindows
	require.Equal(t, 2, svc.EffectiveRank(levels, goldStats, now))
}

func TestEffectiveRankWithoutHistory(t *testing.T) {
	svc, _ := newTestService(t, 30*24*time.Hour)
	levels := DefaultLevels()

	stats := &OperatorStats{VerifiedExecutions: 60, FailedExecutions: 10}
	require.Equal(t, 3, svc.EffectiveRank(levels, stats, time.Now()))
}

func TestBonusPercentAndEligibility(t *testing.T) {
	levels := DefaultLevels()

	require.Equal(t, int64(0), BonusPercent(levels, 1))
	require.Equal(t, int64(10), BonusPercent(levels, 3))
	require.Equal(t, int64(20), BonusPercent(levels, 4))

	// default ladder allows every template via the wildcard
	require.True(t, IsEligible(levels, 1, "any-template"))

	restricted := DefaultLevels()
	restricted[0].SetTemplateCodes([]string{"survey-basic"})
	require.True(t, IsEligible(restricted, 1, "survey-basic"))
	require.False(t, IsEligible(restricted, 1, "content-review"))
}

func TestIsModeEligible(t *testing.T) {
	svc, db := newTestService(t, 0)
	ctx := context.Background()

	mode := &ExecutionMode{Mode: "priority"}
	mode.SetLevels([]int{3, 4})
	require.NoError(t, db.Create(mode).Error)

	ok, err := svc.IsModeEligible(ctx, "priority", 4)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.IsModeEligible(ctx, "priority", 1)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.IsModeEligible(ctx, "unknown", 4)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateEligibilityRule(t *testing.T) {
	svc, _ := newTestService(t, 0)

	stats := &OperatorStats{VerifiedExecutions: 25, FailedExecutions: 5}

	ok, err := svc.EvaluateEligibilityRule("verified_executions >= 20 && success_rate > 0.8", stats, 2)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.EvaluateEligibilityRule("rank_level >= 3", stats, 2)
	require.NoError(t, err)
	require.False(t, ok)

	// empty expression means no extra gate
	ok, err = svc.EvaluateEligibilityRule("", stats, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.EvaluateEligibilityRule("not valid cel ((", stats, 1)
	require.Error(t, err)
}

func TestGetOperatorStatsDefaults(t *testing.T) {
	svc, _ := newTestService(t, 0)

	stats, err := svc.GetOperatorStats(context.Background(), "op-unknown")
	require.NoError(t, err)
	require.Equal(t, "op-unknown", stats.OperatorID)
	require.Equal(t, 1, stats.RankLevel)
	require.Zero(t, stats.VerifiedExecutions)
}

func TestApplyResultInTx(t *testing.T) {
	svc, db := newTestService(t, 0)
	ctx := context.Background()
	now := time.Now()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, txErr := svc.ApplyResultInTx(ctx, tx, "op-1", true, now)
		return txErr
	})
	require.NoError(t, err)

	stats, err := svc.GetOperatorStats(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.VerifiedExecutions)
	require.Equal(t, 1, stats.RankLevel)
	require.NotNil(t, stats.LastExecutionAt)

	// push the operator over the silver threshold
	for i := 0; i < 9; i++ {
		err = db.Transaction(func(tx *gorm.DB) error {
			_, txErr := svc.ApplyResultInTx(ctx, tx, "op-1", true, now)
			return txErr
		})
		require.NoError(t, err)
	}

	stats, err = svc.GetOperatorStats(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), stats.VerifiedExecutions)
	require.Equal(t, 2, stats.RankLevel)

	// failures drag the success rate and the rank down with it
	for i := 0; i < 10; i++ {
		err = db.Transaction(func(tx *gorm.DB) error {
			_, txErr := svc.ApplyResultInTx(ctx, tx, "op-1", false, now)
			return txErr
		})
		require.NoError(t, err)
	}

	stats, err = svc.GetOperatorStats(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), stats.FailedExecutions)
	require.Equal(t, 1, stats.RankLevel)
}

func TestApplyResultInTxAccumulatesAcrossTransactions(t *testing.T) {
	svc, db := newTestService(t, 0)
	ctx := context.Background()
	now := time.Now()

	// each transaction reads the row under lock, so no outcome is lost
	for _, verified := range []bool{true, false, true} {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, txErr := svc.ApplyResultInTx(ctx, tx, "op-lock", verified, now)
			return txErr
		})
		require.NoError(t, err)
	}

	stats, err := svc.GetOperatorStats(ctx, "op-lock")
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.VerifiedExecutions)
	require.Equal(t, int64(1), stats.FailedExecutions)
}

func TestEnsureReferenceDataSeedsAndValidates(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(ServiceParams{DB: db})

	require.NoError(t, EnsureReferenceData(db, svc))

	levels, err := svc.Levels(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 4)

	// corrupt the reference data and startup validation must fail
	require.NoError(t, db.Model(&RankLevel{}).Where("level = ?", 1).
		Update("min_verified_executions", 3).Error)
	svc.InvalidateCache()

	require.Error(t, EnsureReferenceData(db, svc))
}
