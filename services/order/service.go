package order

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskpoint/pkg/config"
	"taskpoint/pkg/db/option"
	"taskpoint/pkg/db/pagination"
	"taskpoint/pkg/errutil"
	"taskpoint/pkg/repository"
	"taskpoint/pkg/sequence"
	"taskpoint/services/rank"
	"taskpoint/services/wallet"
)

// allowedTransitions is the order state machine. Anything not listed is
// an invalid transition; terminal states reject every transition.
var allowedTransitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval},
	StatusPendingApproval: {StatusActive, StatusCancelled},
	StatusActive:          {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused:          {StatusActive, StatusCompleted, StatusCancelled},
}

func guardTransition(from, to Status) error {
	if from.Terminal() {
		return errutil.AlreadyTerminal(fmt.Sprintf("order is already %s", from))
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return errutil.InvalidTransition(fmt.Sprintf("cannot transition order from %s to %s", from, to))
}

// Service drives the order lifecycle. Every transition that touches the
// ledger runs the status change and the ledger entry in one transaction.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	sequence sequence.Generator
	wallet   *wallet.Service
	rank     *rank.Service
	notifier Notifier
	engine   config.EngineConfig

	templates repository.Repository[Template]
	orders    repository.Repository[Order]
	quals     repository.Repository[BrandQualification]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Wallet   *wallet.Service
	Rank     *rank.Service
	Engine   config.EngineConfig
	Sequence sequence.Generator `optional:"true"`
	Notifier Notifier           `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		sequence: p.Sequence,
		wallet:   p.Wallet,
		rank:     p.Rank,
		notifier: p.Notifier,
		engine:   p.Engine,

		templates: repository.ProvideStore[Template](p.DB),
		orders:    repository.ProvideStore[Order](p.DB),
		quals:     repository.ProvideStore[BrandQualification](p.DB),
	}
}

type CreateTemplateParams struct {
	Code                    string
	Name                    string
	Category                string
	Difficulty              string
	BaseCreditValue         int64
	RequiredProofTypes      []string
	VerificationWindowHours int
	EstimatedMinutes        int
	MinRankLevel            int
	RequiresManualReview    bool
	EligibilityRule         string
}

func (s *Service) CreateTemplate(ctx context.Context, p CreateTemplateParams) (*Template, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if p.Code == "" || p.Name == "" {
		return nil, errutil.ValidationFailed("template code and name are required")
	}
	if p.BaseCreditValue <= 0 {
		return nil, errutil.ValidationFailed("base credit value must be positive")
	}
	if p.VerificationWindowHours <= 0 {
		return nil, errutil.ValidationFailed("verification window must be positive")
	}
	if len(p.RequiredProofTypes) == 0 {
		return nil, errutil.ValidationFailed("at least one required proof type is needed")
	}

	levels, err := s.rank.Levels(ctx)
	if err != nil {
		return nil, err
	}
	if p.MinRankLevel == 0 {
		p.MinRankLevel = levels[0].Level
	}
	found := false
	for _, level := range levels {
		if level.Level == p.MinRankLevel {
			found = true
			break
		}
	}
	if !found {
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown rank level %d", p.MinRankLevel))
	}

	if err := s.rank.ValidateEligibilityRule(p.EligibilityRule); err != nil {
		return nil, errutil.ValidationFailed(fmt.Sprintf("invalid eligibility rule: %v", err))
	}

	if exist, _ := s.templates.FindOne(ctx, &Template{Code: p.Code}); exist != nil {
		return nil, errutil.Conflict("template code already exists")
	}

	tpl := &Template{
		ID:                      s.node.Generate().String(),
		Code:                    p.Code,
		Name:                    p.Name,
		Category:                p.Category,
		Difficulty:              p.Difficulty,
		BaseCreditValue:         p.BaseCreditValue,
		VerificationWindowHours: p.VerificationWindowHours,
		EstimatedMinutes:        p.EstimatedMinutes,
		MinRankLevel:            p.MinRankLevel,
		RequiresManualReview:    p.RequiresManualReview,
		EligibilityRule:         p.EligibilityRule,
		Active:                  true,
		CreatedAt:               time.Now(),
		UpdatedAt:               time.Now(),
	}
	tpl.SetProofTypes(p.RequiredProofTypes)

	if err := s.templates.Create(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *Service) GetTemplate(ctx context.Context, code string) (*Template, error) {
	tpl, err := s.templates.FindOne(ctx, &Template{Code: code})
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errutil.NotFound("template not found")
	}
	return tpl, nil
}

type SubmitQualificationParams struct {
	BrandID              string
	TermsAccepted        bool
	ContentPolicyAgreed  bool
	PaymentTermsAccepted bool
	DataPolicyAgreed     bool
}

// SubmitQualification creates or refreshes a brand's onboarding request.
// The record starts (or returns to) pending until an admin reviews it.
func (s *Service) SubmitQualification(ctx context.Context, p SubmitQualificationParams) (*BrandQualification, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if p.BrandID == "" {
		return nil, errutil.ValidationFailed("brand id is required")
	}

	existing, err := s.quals.FindOne(ctx, &BrandQualification{BrandID: p.BrandID})
	if err != nil {
		return nil, err
	}

	if existing == nil {
		qual := &BrandQualification{
			ID:                   s.node.Generate().String(),
			BrandID:              p.BrandID,
			Status:               QualificationPending,
			TermsAccepted:        p.TermsAccepted,
			ContentPolicyAgreed:  p.ContentPolicyAgreed,
			PaymentTermsAccepted: p.PaymentTermsAccepted,
			DataPolicyAgreed:     p.DataPolicyAgreed,
			CreatedAt:            time.Now(),
			UpdatedAt:            time.Now(),
		}
		if err := s.quals.Create(ctx, qual); err != nil {
			return nil, err
		}
		return qual, nil
	}

	updates := map[string]any{
		"status":                 QualificationPending,
		"terms_accepted":         p.TermsAccepted,
		"content_policy_agreed":  p.ContentPolicyAgreed,
		"payment_terms_accepted": p.PaymentTermsAccepted,
		"data_policy_agreed":     p.DataPolicyAgreed,
		"updated_at":             time.Now(),
	}
	if err := s.quals.Update(ctx, existing.ID, &updates); err != nil {
		return nil, err
	}
	return s.quals.FindOne(ctx, &BrandQualification{BrandID: p.BrandID})
}

type ReviewQualificationParams struct {
	BrandID    string
	Status     QualificationStatus
	ReviewedBy string
	Notes      string
}

// ReviewQualification moves a brand to qualified, rejected or suspended.
// Qualification requires all four acceptance flags.
func (s *Service) ReviewQualification(ctx context.Context, p ReviewQualificationParams) (*BrandQualification, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	switch p.Status {
	case QualificationQualified, QualificationRejected, QualificationSuspended:
	default:
		return nil, errutil.ValidationFailed("review status must be qualified, rejected or suspended")
	}

	qual, err := s.quals.FindOne(ctx, &BrandQualification{BrandID: p.BrandID})
	if err != nil {
		return nil, err
	}
	if qual == nil {
		return nil, errutil.NotFound("brand qualification not found")
	}

	if p.Status == QualificationQualified && !qual.AllFlagsAccepted() {
		return nil, errutil.NotEligible("brand has not accepted all platform terms")
	}

	now := time.Now()
	updates := map[string]any{
		"status":       p.Status,
		"reviewed_by":  p.ReviewedBy,
		"review_notes": p.Notes,
		"reviewed_at":  now,
		"updated_at":   now,
	}
	if err := s.quals.Update(ctx, qual.ID, &updates); err != nil {
		return nil, err
	}
	return s.quals.FindOne(ctx, &BrandQualification{BrandID: p.BrandID})
}

func (s *Service) GetQualification(ctx context.Context, brandID string) (*BrandQualification, error) {
	qual, err := s.quals.FindOne(ctx, &BrandQualification{BrandID: brandID})
	if err != nil {
		return nil, err
	}
	if qual == nil {
		return nil, errutil.NotFound("brand qualification not found")
	}
	return qual, nil
}

func (s *Service) requireQualified(ctx context.Context, brandID string) error {
	qual, err := s.quals.FindOne(ctx, &BrandQualification{BrandID: brandID})
	if err != nil {
		return err
	}
	if qual == nil || qual.Status != QualificationQualified {
		return errutil.NotEligible("brand is not qualified to run orders")
	}
	return nil
}

type CreateOrderParams struct {
	BrandID        string
	TemplateCode   string
	TargetQuantity int
	OperatorPayout int64
}

// CreateOrder creates a draft order from a template. The platform fee is
// derived from the payout so that fee / (payout + fee) equals the
// configured fee percent; escrow is not charged until the brand submits
// for approval.
func (s *Service) CreateOrder(ctx context.Context, p CreateOrderParams) (*Order, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if p.TargetQuantity <= 0 {
		return nil, errutil.ValidationFailed("target quantity must be positive")
	}
	if p.OperatorPayout <= 0 {
		return nil, errutil.ValidationFailed("operator payout must be positive")
	}

	if err := s.requireQualified(ctx, p.BrandID); err != nil {
		return nil, err
	}

	tpl, err := s.GetTemplate(ctx, p.TemplateCode)
	if err != nil {
		return nil, err
	}
	if !tpl.Active {
		return nil, errutil.ValidationFailed("template is not active")
	}

	fee, err := wallet.ComputeFee(p.OperatorPayout, s.engine.FeePercent)
	if err != nil {
		return nil, err
	}
	totalCost := (p.OperatorPayout + fee) * int64(p.TargetQuantity)

	code, err := s.nextOrderCode(ctx, p.BrandID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ord := &Order{
		ID:             s.node.Generate().String(),
		Code:           code,
		TemplateID:     tpl.ID,
		TemplateCode:   tpl.Code,
		BrandID:        p.BrandID,
		TargetQuantity: p.TargetQuantity,
		OperatorPayout: p.OperatorPayout,
		PlatformFee:    fee,
		FeePercent:     s.engine.FeePercent,
		BrandTotalCost: totalCost,
		Status:         StatusDraft,
		AdminApproval:  ApprovalPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orders.Create(ctx, ord); err != nil {
		return nil, err
	}

	zap.L().Info("order created",
		zap.String("order_id", ord.ID),
		zap.String("brand_id", ord.BrandID),
		zap.String("template_code", ord.TemplateCode),
		zap.Int64("brand_total_cost", ord.BrandTotalCost),
	)
	return ord, nil
}

func (s *Service) nextOrderCode(ctx context.Context, brandID string) (string, error) {
	if s.sequence != nil {
		code, err := s.sequence.NextOrderCode(ctx, brandID)
		if err == nil {
			return code, nil
		}
		zap.L().Warn("sequence generator unavailable, using snowflake order code", zap.Error(err))
	}
	return fmt.Sprintf("ORD-%s", s.node.Generate().String()), nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	ord, err := s.orders.FindOne(ctx, &Order{ID: orderID})
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, errutil.NotFound("order not found")
	}
	return ord, nil
}

type ListOrdersParams struct {
	BrandID string
	Cursor  string
	Limit   int
}

// ListOrders returns a brand's orders newest first, cursor-paginated.
func (s *Service) ListOrders(ctx context.Context, p ListOrdersParams) ([]*Order, *pagination.PageInfo, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(limit + 1),
	}
	if p.Cursor != "" {
		cursor, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor")
		}
		before, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor")
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LT,
			Value:    before,
		}))
	}

	rows, err := s.orders.Find(ctx, &Order{BrandID: p.BrandID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, int32(limit), func(o *Order) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339Nano),
			ID:        o.ID,
		})
		return cursor
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, pageInfo, nil
}

func (s *Service) lockOrder(ctx context.Context, tx *gorm.DB, orderID string) (*Order, error) {
	ord, err := s.orders.WithTrx(tx).FindOne(ctx, &Order{ID: orderID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, errutil.NotFound("order not found")
	}
	return ord, nil
}

// SubmitForApproval charges the full escrow and moves the order to
// pending approval. On InsufficientFunds the transaction rolls back and
// the order stays in draft.
func (s *Service) SubmitForApproval(ctx context.Context, orderID string) (*Order, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	existing, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireQualified(ctx, existing.BrandID); err != nil {
		return nil, err
	}

	var ord *Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		ord, txErr = s.lockOrder(ctx, tx, orderID)
		if txErr != nil {
			return txErr
		}

		if txErr = guardTransition(ord.Status, StatusPendingApproval); txErr != nil {
			return txErr
		}

		if _, txErr = s.wallet.ChargeInTx(ctx, tx, wallet.ChargeParams{
			BrandID:     ord.BrandID,
			Amount:      ord.BrandTotalCost,
			OrderID:     ord.ID,
			Description: fmt.Sprintf("escrow for order %s", ord.Code),
		}); txErr != nil {
			return txErr
		}

		return s.updateStatus(ctx, tx, ord, map[string]any{
			"status":     StatusPendingApproval,
			"updated_at": time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, "admin", NotifyOrderAwaitingApproval, map[string]any{
		"order_id":   ord.ID,
		"order_code": ord.Code,
		"brand_id":   ord.BrandID,
	})

	return s.GetOrder(ctx, orderID)
}

// Approve activates a pending order and stamps its expiry: the
// template's verification window times the target quantity, or the
// configured campaign duration when the template has no window.
func (s *Service) Approve(ctx context.Context, orderID, adminID string) (*Order, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var ord *Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		ord, txErr = s.lockOrder(ctx, tx, orderID)
		if txErr != nil {
			return txErr
		}

		if txErr = guardTransition(ord.Status, StatusActive); txErr != nil {
			return txErr
		}
		if ord.Status != StatusPendingApproval {
			return errutil.InvalidTransition("only pending orders can be approved")
		}

		tpl, txErr := s.templates.WithTrx(tx).FindOne(ctx, &Template{ID: ord.TemplateID})
		if txErr != nil {
			return txErr
		}

		expiry := s.engine.CampaignDuration
		if tpl != nil && tpl.VerificationWindowHours > 0 {
			expiry = time.Duration(tpl.VerificationWindowHours) * time.Hour * time.Duration(ord.TargetQuantity)
		}
		expiresAt := time.Now().Add(expiry)

		return s.updateStatus(ctx, tx, ord, map[string]any{
			"status":                StatusActive,
			"admin_approval_status": ApprovalApproved,
			"approved_by":           adminID,
			"expires_at":            expiresAt,
			"updated_at":            time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, ord.BrandID, NotifyOrderApproved, map[string]any{
		"order_id":   ord.ID,
		"order_code": ord.Code,
	})

	return s.GetOrder(ctx, orderID)
}

// Reject cancels a pending order and refunds the full escrow in the
// same transaction.
func (s *Service) Reject(ctx context.Context, orderID, adminID, reason string) (*Order, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if reason == "" {
		return nil, errutil.ValidationFailed("rejection reason is required")
	}

	var ord *Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		ord, txErr = s.lockOrder(ctx, tx, orderID)
		if txErr != nil {
			return txErr
		}

		if ord.Status != StatusPendingApproval {
			if ord.Status.Terminal() {
				return errutil.AlreadyTerminal(fmt.Sprintf("order is already %s", ord.Status))
			}
			return errutil.InvalidTransition("only pending orders can be rejected")
		}

		if _, txErr = s.wallet.RefundInTx(ctx, tx, wallet.RefundParams{
			BrandID:     ord.BrandID,
			Amount:      ord.BrandTotalCost,
			OrderID:     ord.ID,
			Description: fmt.Sprintf("refund for rejected order %s: %s", ord.Code, reason),
		}); txErr != nil {
			return txErr
		}

		return s.updateStatus(ctx, tx, ord, map[string]any{
			"status":                StatusCancelled,
			"admin_approval_status": ApprovalRejected,
			"rejection_reason":      reason,
			"approved_by":           adminID,
			"updated_at":            time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, ord.BrandID, NotifyOrderRejected, map[string]any{
		"order_id":   ord.ID,
		"order_code": ord.Code,
		"reason":     reason,
	})

	return s.GetOrder(ctx, orderID)
}

// ManualRefund cancels an active or paused order and refunds escrow for
// the unfulfilled remainder. Already-settled payouts stay settled.
func (s *Service) ManualRefund(ctx context.Context, orderID, reason string) (*Order, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if reason == "" {
		return nil, errutil.ValidationFailed("refund reason is required")
	}

	var ord *Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		ord, txErr = s.lockOrder(ctx, tx, orderID)
		if txErr != nil {
			return txErr
		}

		if txErr = guardTransition(ord.Status, StatusCancelled); txErr != nil {
			return txErr
		}
		if ord.Status != StatusActive && ord.Status != StatusPaused {
			return errutil.InvalidTransition("only active or paused orders can be refunded")
		}

		if unused := ord.UnitCost() * int64(ord.RemainingQuantity()); unused > 0 {
			if _, txErr = s.wallet.RefundInTx(ctx, tx, wallet.RefundParams{
				BrandID:     ord.BrandID,
				Amount:      unused,
				OrderID:     ord.ID,
				Description: fmt.Sprintf("refund for cancelled order %s: %s", ord.Code, reason),
			}); txErr != nil {
				return txErr
			}
		}

		return s.updateStatus(ctx, tx, ord, map[string]any{
			"status":           StatusCancelled,
			"rejection_reason": reason,
			"updated_at":       time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, ord.BrandID, NotifyOrderCancelled, map[string]any{
		"order_id":   ord.ID,
		"order_code": ord.Code,
		"reason":     reason,
	})

	return s.GetOrder(ctx, orderID)
}

// Pause suspends submission intake without any ledger effect.
func (s *Service) Pause(ctx context.Context, orderID string) (*Order, error) {
	return s.flip(ctx, orderID, StatusActive, StatusPaused)
}

// Resume reopens a paused order.
func (s *Service) Resume(ctx context.Context, orderID string) (*Order, error) {
	return s.flip(ctx, orderID, StatusPaused, StatusActive)
}

func (s *Service) flip(ctx context.Context, orderID string, from, to Status) (*Order, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		ord, txErr := s.lockOrder(ctx, tx, orderID)
		if txErr != nil {
			return txErr
		}
		if txErr = guardTransition(ord.Status, to); txErr != nil {
			return txErr
		}
		if ord.Status != from {
			return errutil.InvalidTransition(fmt.Sprintf("order must be %s to transition to %s", from, to))
		}
		return s.updateStatus(ctx, tx, ord, map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// Complete closes an order. Used at expiry or after the final
// verification; the unfulfilled remainder's escrow is refunded pro-rata.
func (s *Service) Complete(ctx context.Context, orderID string) (*Order, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var ord *Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		ord, txErr = s.lockOrder(ctx, tx, orderID)
		if txErr != nil {
			return txErr
		}

		if txErr = guardTransition(ord.Status, StatusCompleted); txErr != nil {
			return txErr
		}

		if unused := ord.UnitCost() * int64(ord.RemainingQuantity()); unused > 0 {
			if _, txErr = s.wallet.RefundInTx(ctx, tx, wallet.RefundParams{
				BrandID:     ord.BrandID,
				Amount:      unused,
				OrderID:     ord.ID,
				Description: fmt.Sprintf("pro-rata settlement for order %s", ord.Code),
			}); txErr != nil {
				return txErr
			}
		}

		return s.updateStatus(ctx, tx, ord, map[string]any{
			"status":     StatusCompleted,
			"updated_at": time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, ord.BrandID, NotifyOrderCompleted, map[string]any{
		"order_id":           ord.ID,
		"order_code":         ord.Code,
		"completed_quantity": ord.CompletedQuantity,
		"target_quantity":    ord.TargetQuantity,
	})

	return s.GetOrder(ctx, orderID)
}

// ExpireSweep settles active orders whose expiry has passed: each one is
// completed with the unfulfilled remainder's escrow refunded pro-rata.
// Returns how many orders were settled.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	rows, err := s.orders.Find(ctx, &Order{Status: StatusActive}, option.ApplyOperator(option.Condition{
		Field:    "expires_at",
		Operator: option.LT,
		Value:    now,
	}))
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, ord := range rows {
		if _, err := s.Complete(ctx, ord.ID); err != nil {
			zap.L().Error("failed to settle expired order",
				zap.String("order_id", ord.ID),
				zap.Error(err),
			)
			continue
		}
		settled++
	}

	if settled > 0 {
		zap.L().Info("settled expired orders", zap.Int("count", settled))
	}
	return settled, nil
}

// RecordFulfillmentInTx increments completedQuantity under the order's
// row lock, bounded at the target. The caller owns the transaction; the
// pipeline composes this with the payout and submission update.
func (s *Service) RecordFulfillmentInTx(ctx context.Context, tx *gorm.DB, orderID string) (*Order, error) {
	ord, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if ord.Status != StatusActive {
		if ord.Status == StatusCompleted {
			return nil, errutil.OrderFulfilled("order target already reached")
		}
		return nil, errutil.InvalidTransition(fmt.Sprintf("order is %s, not accepting fulfillments", ord.Status))
	}
	if ord.CompletedQuantity >= ord.TargetQuantity {
		return nil, errutil.OrderFulfilled("order target already reached")
	}

	updates := map[string]any{
		"completed_quantity": ord.CompletedQuantity + 1,
		"updated_at":         time.Now(),
	}
	if ord.CompletedQuantity+1 >= ord.TargetQuantity {
		updates["status"] = StatusCompleted
	}

	if err := s.updateStatus(ctx, tx, ord, updates); err != nil {
		return nil, err
	}

	ord.CompletedQuantity++
	if ord.CompletedQuantity >= ord.TargetQuantity {
		ord.Status = StatusCompleted
	}
	return ord, nil
}

func (s *Service) updateStatus(ctx context.Context, tx *gorm.DB, ord *Order, updates map[string]any) error {
	if err := s.orders.WithTrx(tx).Update(ctx, ord.ID, &updates); err != nil {
		zap.L().Error("failed to update order",
			zap.String("order_id", ord.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
