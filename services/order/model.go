package order

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Template is the reference definition an order is created from. Brands
// pick a template; the engine takes proof requirements, difficulty and
// the verification window from it.
type Template struct {
	ID                      string         `gorm:"column:id;primaryKey;type:char(26)"`
	Code                    string         `gorm:"column:code;uniqueIndex;not null"`
	Name                    string         `gorm:"column:name;not null"`
	Category                string         `gorm:"column:category;type:varchar(40);not null"`
	Difficulty              string         `gorm:"column:difficulty;type:varchar(20);not null"`
	BaseCreditValue         int64          `gorm:"column:base_credit_value;not null"`
	RequiredProofTypes      datatypes.JSON `gorm:"column:required_proof_types;type:jsonb"`
	VerificationWindowHours int            `gorm:"column:verification_window_hours;not null"`
	EstimatedMinutes        int            `gorm:"column:estimated_minutes"`
	MinRankLevel            int            `gorm:"column:min_rank_level;not null;default:1"`
	RequiresManualReview    bool           `gorm:"column:requires_manual_review;not null;default:false"`
	EligibilityRule         string         `gorm:"column:eligibility_rule;type:text"`
	Active                  bool           `gorm:"column:active;not null;default:true"`
	CreatedAt               time.Time      `gorm:"column:created_at"`
	UpdatedAt               time.Time      `gorm:"column:updated_at"`
}

func (Template) TableName() string { return "order_templates" }

func (t *Template) ProofTypes() []string {
	var types []string
	if len(t.RequiredProofTypes) == 0 {
		return types
	}
	_ = json.Unmarshal(t.RequiredProofTypes, &types)
	return types
}

func (t *Template) SetProofTypes(types []string) {
	raw, _ := json.Marshal(types)
	t.RequiredProofTypes = datatypes.JSON(raw)
}

// Order statuses. Completed and cancelled are terminal.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusActive          Status = "active"
	StatusPaused          Status = "paused"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Order is an execution order funded by a brand. OperatorPayout and
// PlatformFee are per fulfilled unit; BrandTotalCost is the full escrow
// amount for the target quantity.
type Order struct {
	ID                string         `gorm:"column:id;primaryKey;type:char(26)"`
	Code              string         `gorm:"column:code;uniqueIndex"`
	TemplateID        string         `gorm:"column:template_id;index;not null"`
	TemplateCode      string         `gorm:"column:template_code;index;not null"`
	BrandID           string         `gorm:"column:brand_id;index;not null"`
	TargetQuantity    int            `gorm:"column:target_quantity;not null"`
	CompletedQuantity int            `gorm:"column:completed_quantity;not null;default:0"`
	OperatorPayout    int64          `gorm:"column:operator_payout;not null"`
	PlatformFee       int64          `gorm:"column:platform_fee;not null"`
	FeePercent        int64          `gorm:"column:fee_percent;not null"`
	BrandTotalCost    int64          `gorm:"column:brand_total_cost;not null"`
	Status            Status         `gorm:"column:status;type:varchar(20);not null;index"`
	AdminApproval     ApprovalStatus `gorm:"column:admin_approval_status;type:varchar(20);not null"`
	RejectionReason   string         `gorm:"column:rejection_reason;type:text"`
	ExpiresAt         *time.Time     `gorm:"column:expires_at;index"`
	ApprovedBy        string         `gorm:"column:approved_by"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at"`
}

func (Order) TableName() string { return "execution_orders" }

// UnitCost is the escrow a single fulfilled unit consumes.
func (o *Order) UnitCost() int64 {
	return o.OperatorPayout + o.PlatformFee
}

// RemainingQuantity is how many more submissions can be verified.
func (o *Order) RemainingQuantity() int {
	if o.CompletedQuantity >= o.TargetQuantity {
		return 0
	}
	return o.TargetQuantity - o.CompletedQuantity
}

// QualificationStatus gates whether a brand may create orders.
type QualificationStatus string

const (
	QualificationPending   QualificationStatus = "pending"
	QualificationQualified QualificationStatus = "qualified"
	QualificationRejected  QualificationStatus = "rejected"
	QualificationSuspended QualificationStatus = "suspended"
)

// BrandQualification records a brand's onboarding review. All four
// acceptance flags must be true before the status can become qualified.
type BrandQualification struct {
	ID                   string              `gorm:"column:id;primaryKey;type:char(26)"`
	BrandID              string              `gorm:"column:brand_id;uniqueIndex;not null"`
	Status               QualificationStatus `gorm:"column:status;type:varchar(20);not null"`
	TermsAccepted        bool                `gorm:"column:terms_accepted;not null;default:false"`
	ContentPolicyAgreed  bool                `gorm:"column:content_policy_agreed;not null;default:false"`
	PaymentTermsAccepted bool                `gorm:"column:payment_terms_accepted;not null;default:false"`
	DataPolicyAgreed     bool                `gorm:"column:data_policy_agreed;not null;default:false"`
	ReviewedBy           string              `gorm:"column:reviewed_by"`
	ReviewNotes          string              `gorm:"column:review_notes;type:text"`
	ReviewedAt           *time.Time          `gorm:"column:reviewed_at"`
	CreatedAt            time.Time           `gorm:"column:created_at"`
	UpdatedAt            time.Time           `gorm:"column:updated_at"`
}

func (BrandQualification) TableName() string { return "brand_qualifications" }

func (q *BrandQualification) AllFlagsAccepted() bool {
	return q.TermsAccepted && q.ContentPolicyAgreed && q.PaymentTermsAccepted && q.DataPolicyAgreed
}
