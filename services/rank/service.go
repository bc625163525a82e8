package rank

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskpoint/pkg/db/option"
	"taskpoint/pkg/errutil"
	"taskpoint/pkg/repository"
)

type Service struct {
	db        *gorm.DB
	evaluator *Evaluator

	levels repository.Repository[RankLevel]
	modes  repository.Repository[ExecutionMode]
	stats  repository.Repository[OperatorStats]

	decayWindow time.Duration

	mu     sync.RWMutex
	cached []RankLevel
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	DecayWindow time.Duration `name:"rank_decay_window"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		evaluator:   NewEvaluator(),
		levels:      repository.ProvideStore[RankLevel](p.DB),
		modes:       repository.ProvideStore[ExecutionMode](p.DB),
		stats:       repository.ProvideStore[OperatorStats](p.DB),
		decayWindow: p.DecayWindow,
	}
}

// Levels returns the rank reference data sorted ascending by threshold.
// Reference data is read-mostly and cached per process after first load.
func (s *Service) Levels(ctx context.Context) ([]RankLevel, error) {
	s.mu.RLock()
	if s.cached != nil {
		defer s.mu.RUnlock()
		return s.cached, nil
	}
	s.mu.RUnlock()

	rows, err := s.levels.Find(ctx, &RankLevel{})
	if err != nil {
		return nil, err
	}

	levels := make([]RankLevel, 0, len(rows))
	for _, row := range rows {
		levels = append(levels, *row)
	}
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].MinVerifiedExecutions < levels[j].MinVerifiedExecutions
	})

	s.mu.Lock()
	s.cached = levels
	s.mu.Unlock()

	return levels, nil
}

// InvalidateCache drops the cached reference data, forcing a reload on the
// next read. Used after admin edits to the rank table.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// ValidateLevels enforces the reference-data invariants: at least one
// level, lowest level with zero thresholds, thresholds strictly ascending,
// bonus percent monotonically non-decreasing. Violations are configuration
// errors surfaced at startup, never at call time.
func ValidateLevels(levels []RankLevel) error {
	if len(levels) == 0 {
		return errutil.Internal("rank reference data is empty")
	}

	if levels[0].MinVerifiedExecutions != 0 || levels[0].MinSuccessRate != 0 {
		return errutil.Internal("lowest rank level must have zero thresholds")
	}

	for i := 1; i < len(levels); i++ {
		if levels[i].MinVerifiedExecutions <= levels[i-1].MinVerifiedExecutions {
			return errutil.Internal("rank thresholds must be strictly ascending")
		}
		if levels[i].PointBonusPercent < levels[i-1].PointBonusPercent {
			return errutil.Internal("rank point bonus must be non-decreasing")
		}
	}

	return nil
}

// ComputeRank scans from the highest level down and returns the first
// level whose thresholds the stats satisfy. The lowest level always
// matches because its thresholds are zero.
func ComputeRank(levels []RankLevel, stats *OperatorStats) int {
	for i := len(levels) - 1; i >= 0; i-- {
		level := levels[i]
		if stats.VerifiedExecutions >= level.MinVerifiedExecutions &&
			stats.SuccessRate() >= level.MinSuccessRate {
			return level.Level
		}
	}
	return levels[0].Level
}

// EffectiveRank applies lazy inactivity decay on top of the computed
// rank. Each full idle window contributes the current level's decay rate
// and the rank drops one level every time the accumulated rate reaches
// 100 percent, so a 50 percent level loses a rank every two windows.
// Levels with a zero rate never decay. Stored history is never touched.
func (s *Service) EffectiveRank(levels []RankLevel, stats *OperatorStats, now time.Time) int {
	computed := ComputeRank(levels, stats)
	if stats.LastExecutionAt == nil || s.decayWindow <= 0 {
		return computed
	}

	idle := now.Sub(*stats.LastExecutionAt)
	if idle < s.decayWindow {
		return computed
	}

	windows := int64(idle / s.decayWindow)
	idx := levelIndex(levels, computed)
	accumulated := int64(0)
	for ; windows > 0 && idx > 0; windows-- {
		rate := levels[idx].DecayRatePercent
		if rate <= 0 {
			break
		}
		accumulated += rate
		if accumulated >= 100 {
			idx--
			accumulated -= 100
		}
	}
	return levels[idx].Level
}

func levelIndex(levels []RankLevel, level int) int {
	for i, l := range levels {
		if l.Level == level {
			return i
		}
	}
	return 0
}

// BonusPercent returns the additive point bonus for a rank level.
func BonusPercent(levels []RankLevel, level int) int64 {
	return levels[levelIndex(levels, level)].PointBonusPercent
}

// IsEligible reports whether a rank level may accept orders from the given
// template. A "*" entry in the allowed set matches every template.
func IsEligible(levels []RankLevel, level int, templateCode string) bool {
	for _, code := range levels[levelIndex(levels, level)].TemplateCodes() {
		if code == "*" || code == templateCode {
			return true
		}
	}
	return false
}

// IsModeEligible checks a rank level against an execution mode's explicit
// eligible-level set. Unknown modes reject everyone.
func (s *Service) IsModeEligible(ctx context.Context, mode string, level int) (bool, error) {
	row, err := s.modes.FindOne(ctx, &ExecutionMode{Mode: mode})
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	for _, eligible := range row.Levels() {
		if eligible == level {
			return true, nil
		}
	}
	return false, nil
}

// EvaluateEligibilityRule runs a template's optional CEL expression against
// the operator's current standing.
func (s *Service) EvaluateEligibilityRule(expression string, stats *OperatorStats, level int) (bool, error) {
	if expression == "" {
		return true, nil
	}
	return s.evaluator.Evaluate(expression, map[string]any{
		"rank_level":          level,
		"verified_executions": stats.VerifiedExecutions,
		"failed_executions":   stats.FailedExecutions,
		"success_rate":        stats.SuccessRate(),
	})
}

// ValidateEligibilityRule compiles an eligibility expression against the
// variables EvaluateEligibilityRule exposes, so malformed rules are
// rejected when the template is written rather than at submission time.
func (s *Service) ValidateEligibilityRule(expression string) error {
	if expression == "" {
		return nil
	}
	return s.evaluator.Validate(expression, map[string]any{
		"rank_level":          0,
		"verified_executions": int64(0),
		"failed_executions":   int64(0),
		"success_rate":        float64(0),
	})
}

// GetOperatorStats loads an operator's stats row, returning a fresh
// lowest-rank record when the operator has no history yet.
func (s *Service) GetOperatorStats(ctx context.Context, operatorID string) (*OperatorStats, error) {
	row, err := s.stats.FindOne(ctx, &OperatorStats{OperatorID: operatorID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		levels, err := s.Levels(ctx)
		if err != nil {
			return nil, err
		}
		return &OperatorStats{OperatorID: operatorID, RankLevel: levels[0].Level}, nil
	}
	return row, nil
}

// GetOperatorStatsInTx is the in-transaction variant used when the
// caller needs the row read under its own transaction.
func (s *Service) GetOperatorStatsInTx(ctx context.Context, tx *gorm.DB, operatorID string) (*OperatorStats, error) {
	row, err := s.stats.WithTrx(tx).FindOne(ctx, &OperatorStats{OperatorID: operatorID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		levels, err := s.Levels(ctx)
		if err != nil {
			return nil, err
		}
		return &OperatorStats{OperatorID: operatorID, RankLevel: levels[0].Level}, nil
	}
	return row, nil
}

// ApplyResultInTx records a verified or failed execution inside the
// caller's transaction, recomputes the rank and returns the updated row.
// This is the only write path into operator stats.
func (s *Service) ApplyResultInTx(ctx context.Context, tx *gorm.DB, operatorID string, verified bool, now time.Time) (*OperatorStats, error) {
	levels, err := s.Levels(ctx)
	if err != nil {
		return nil, err
	}

	statsTx := s.stats.WithTrx(tx)

	// lock the row so concurrent verifications for the same operator
	// cannot clobber each other's counters
	row, err := statsTx.FindOne(ctx, &OperatorStats{OperatorID: operatorID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}

	created := false
	if row == nil {
		created = true
		row = &OperatorStats{OperatorID: operatorID, RankLevel: levels[0].Level}
	}

	if verified {
		row.VerifiedExecutions++
	} else {
		row.FailedExecutions++
	}
	row.LastExecutionAt = &now
	row.RankLevel = ComputeRank(levels, row)
	row.UpdatedAt = now

	if created {
		if err := statsTx.Create(ctx, row); err != nil {
			return nil, err
		}
		return row, nil
	}

	if err := tx.WithContext(ctx).
		Model(&OperatorStats{}).
		Where("operator_id = ?", row.OperatorID).
		Updates(map[string]any{
			"verified_executions": row.VerifiedExecutions,
			"failed_executions":   row.FailedExecutions,
			"rank_level":          row.RankLevel,
			"last_execution_at":   row.LastExecutionAt,
			"updated_at":          row.UpdatedAt,
		}).Error; err != nil {
		zap.L().Error("failed to update operator stats", zap.String("operator_id", operatorID), zap.Error(err))
		return nil, err
	}

	return row, nil
}
