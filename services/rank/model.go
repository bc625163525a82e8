package rank

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// RankLevel is reference data: one row per operator tier. Levels are
// totally ordered by MinVerifiedExecutions ascending and the lowest level
// must have zero thresholds so every operator maps to a rank.
type RankLevel struct {
	Level                 int            `gorm:"column:level;primaryKey"`
	Name                  string         `gorm:"column:name;type:varchar(50);not null"`
	MinVerifiedExecutions int64          `gorm:"column:min_verified_executions;not null"`
	MinSuccessRate        float64        `gorm:"column:min_success_rate;not null"`
	AllowedTemplateCodes  datatypes.JSON `gorm:"column:allowed_template_codes;type:jsonb"`
	DecayRatePercent      int64          `gorm:"column:decay_rate_percent;not null"`
	PointBonusPercent     int64          `gorm:"column:point_bonus_percent;not null"`
	CreatedAt             time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (RankLevel) TableName() string { return "rank_levels" }

// TemplateCodes decodes the allowed template code set. A "*" entry allows
// every template.
func (l *RankLevel) TemplateCodes() []string {
	if len(l.AllowedTemplateCodes) == 0 {
		return nil
	}
	var codes []string
	if err := json.Unmarshal(l.AllowedTemplateCodes, &codes); err != nil {
		return nil
	}
	return codes
}

func (l *RankLevel) SetTemplateCodes(codes []string) {
	raw, _ := json.Marshal(codes)
	l.AllowedTemplateCodes = datatypes.JSON(raw)
}

// ExecutionMode gates which rank levels may take orders in a given
// execution mode (e.g. standard vs priority dispatch).
type ExecutionMode struct {
	Mode           string         `gorm:"column:mode;primaryKey;type:varchar(50)"`
	EligibleLevels datatypes.JSON `gorm:"column:eligible_levels;type:jsonb"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ExecutionMode) TableName() string { return "execution_modes" }

func (m *ExecutionMode) Levels() []int {
	if len(m.EligibleLevels) == 0 {
		return nil
	}
	var levels []int
	if err := json.Unmarshal(m.EligibleLevels, &levels); err != nil {
		return nil
	}
	return levels
}

func (m *ExecutionMode) SetLevels(levels []int) {
	raw, _ := json.Marshal(levels)
	m.EligibleLevels = datatypes.JSON(raw)
}

// OperatorStats is the per-operator performance record the rank engine
// reads and the submission pipeline mutates. Credits live in the wallet
// service; this row only tracks execution outcomes.
type OperatorStats struct {
	OperatorID         string     `gorm:"column:operator_id;primaryKey;type:char(26)"`
	RankLevel          int        `gorm:"column:rank_level;not null;default:1"`
	VerifiedExecutions int64      `gorm:"column:verified_executions;not null"`
	FailedExecutions   int64      `gorm:"column:failed_executions;not null"`
	LastExecutionAt    *time.Time `gorm:"column:last_execution_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (OperatorStats) TableName() string { return "operator_stats" }

// SuccessRate is verified/(verified+failed), zero when the operator has no
// executions yet.
func (s *OperatorStats) SuccessRate() float64 {
	total := s.VerifiedExecutions + s.FailedExecutions
	if total == 0 {
		return 0
	}
	return float64(s.VerifiedExecutions) / float64(total)
}
