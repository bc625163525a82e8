package submission

import (
	"time"

	"gorm.io/datatypes"
)

// Submission statuses. Verified and rejected are terminal for the
// pipeline itself; disputed reopens a terminal submission for
// re-adjudication.
type Status string

const (
	StatusPendingAuto   Status = "pending_auto"
	StatusPendingReview Status = "pending_review"
	StatusVerified      Status = "verified"
	StatusRejected      Status = "rejected"
	StatusDisputed      Status = "disputed"
)

func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

func (s Status) Open() bool {
	return s == StatusPendingAuto || s == StatusPendingReview
}

// Rejection categories assigned by the pipeline. Admin rejections carry
// a free-form category from the reviewer.
const (
	CategoryAutoValidationFailed = "auto_validation_failed"
	CategoryOrderFulfilled       = "order_fulfilled"
	CategoryExpired              = "expired"
)

// Submission is one operator's execution attempt against an order.
// CreditsEarned and the reward breakdown are immutable once set; a
// rejected submission is never re-verified, the operator creates a new
// one instead.
type Submission struct {
	ID                    string         `gorm:"column:id;primaryKey;type:char(26)"`
	Code                  string         `gorm:"column:code;uniqueIndex"`
	OrderID               string         `gorm:"column:order_id;index;not null"`
	TemplateCode          string         `gorm:"column:template_code;index;not null"`
	OperatorID            string         `gorm:"column:operator_id;index;not null"`
	Status                Status         `gorm:"column:status;type:varchar(20);not null;index"`
	SubmittedAt           time.Time      `gorm:"column:submitted_at;not null"`
	VerificationStartedAt *time.Time     `gorm:"column:verification_started_at"`
	VerifiedAt            *time.Time     `gorm:"column:verified_at"`
	VerifiedBy            string         `gorm:"column:verified_by"`
	RejectionReason       string         `gorm:"column:rejection_reason;type:text"`
	RejectionCategory     string         `gorm:"column:rejection_category;type:varchar(40)"`
	CreditsEarned         *int64         `gorm:"column:credits_earned"`
	CreditsReleasedAt     *time.Time     `gorm:"column:credits_released_at"`
	RewardBreakdown       datatypes.JSON `gorm:"column:reward_breakdown;type:jsonb"`
	IsFirstExecution      bool           `gorm:"column:is_first_execution;not null;default:false"`
	IsRandomSample        bool           `gorm:"column:is_random_sample;not null;default:false"`
	TimeSpentMinutes      *int           `gorm:"column:time_spent_minutes"`
	QualityScore          *int           `gorm:"column:quality_score"`
	DisputeReason         string         `gorm:"column:dispute_reason;type:text"`
	CreatedAt             time.Time      `gorm:"column:created_at"`
	UpdatedAt             time.Time      `gorm:"column:updated_at"`
}

func (Submission) TableName() string { return "execution_submissions" }

// Proof auto-validation statuses set by the external validator.
type ProofStatus string

const (
	ProofPending ProofStatus = "pending"
	ProofPassed  ProofStatus = "passed"
	ProofFailed  ProofStatus = "failed"
	ProofFlagged ProofStatus = "flagged"
)

// Proof is evidence attached to a submission. The engine never inspects
// file bytes; it only reacts to the validator's status.
type Proof struct {
	ID                   string      `gorm:"column:id;primaryKey;type:char(26)"`
	SubmissionID         string      `gorm:"column:submission_id;index;not null"`
	ProofType            string      `gorm:"column:proof_type;type:varchar(40);not null"`
	FileURL              string      `gorm:"column:file_url;type:text"`
	ExternalURL          string      `gorm:"column:external_url;type:text"`
	AutoValidationStatus ProofStatus `gorm:"column:auto_validation_status;type:varchar(20);not null"`
	ValidatorNotes       string      `gorm:"column:validator_notes;type:text"`
	ValidatedAt          *time.Time  `gorm:"column:validated_at"`
	CreatedAt            time.Time   `gorm:"column:created_at"`
}

func (Proof) TableName() string { return "execution_proofs" }

// IsExpired reports whether an open submission has outlived its
// template's verification window. Terminal submissions never expire.
func IsExpired(sub *Submission, windowHours int, now time.Time) bool {
	if sub == nil || !sub.Status.Open() {
		return false
	}
	if windowHours <= 0 {
		return false
	}
	return now.After(sub.SubmittedAt.Add(time.Duration(windowHours) * time.Hour))
}
