package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"taskpoint/pkg/config"
	"taskpoint/pkg/db/option"
	"taskpoint/pkg/errutil"
	"taskpoint/pkg/ratelimit"
	"taskpoint/pkg/rediskey"
	"taskpoint/pkg/repository"
	"taskpoint/pkg/sequence"
	"taskpoint/services/order"
	"taskpoint/services/rank"
	"taskpoint/services/reward"
	"taskpoint/services/wallet"
)

// VerifiedBySystem marks verifications performed by the auto-gate
// rather than an admin.
const VerifiedBySystem = "system"

// Notification kinds emitted by the pipeline.
const (
	NotifySubmissionVerified = "submission.verified"
	NotifySubmissionRejected = "submission.rejected"
	NotifySubmissionDisputed = "submission.disputed"
)

// Service runs the proof verification pipeline. Verification composes
// the reward calculation, the operator payout, the stats update and the
// order fulfillment counter into one transaction.
type Service struct {
	db         *gorm.DB
	node       *snowflake.Node
	sequence   sequence.Generator
	rank       *rank.Service
	wallet     *wallet.Service
	orders     *order.Service
	calculator *reward.Calculator
	sampler    Sampler
	limiter    ratelimit.Store
	notifier   order.Notifier
	engine     config.EngineConfig

	submissions repository.Repository[Submission]
	proofs      repository.Repository[Proof]
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Rank       *rank.Service
	Wallet     *wallet.Service
	Orders     *order.Service
	Calculator *reward.Calculator
	Engine     config.EngineConfig
	Sampler    Sampler            `optional:"true"`
	Sequence   sequence.Generator `optional:"true"`
	Limiter    ratelimit.Store    `optional:"true"`
	Notifier   order.Notifier     `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	sampler := p.Sampler
	if sampler == nil {
		sampler = NewRandSampler(p.Engine.RandomSampleRate, time.Now().UnixNano())
	}
	return &Service{
		db:         p.DB,
		node:       p.Node,
		sequence:   p.Sequence,
		rank:       p.Rank,
		wallet:     p.Wallet,
		orders:     p.Orders,
		calculator: p.Calculator,
		sampler:    sampler,
		limiter:    p.Limiter,
		notifier:   p.Notifier,
		engine:     p.Engine,

		submissions: repository.ProvideStore[Submission](p.DB),
		proofs:      repository.ProvideStore[Proof](p.DB),
	}
}

type ProofInput struct {
	ProofType   string
	FileURL     string
	ExternalURL string
}

type CreateParams struct {
	OrderID          string
	OperatorID       string
	Proofs           []ProofInput
	TimeSpentMinutes *int
}

// Create opens a new submission against an active order. The operator
// must clear the template's rank gate, the order must have capacity and
// every attached proof type must be one the template requires.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Submission, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if p.OperatorID == "" {
		return nil, errutil.ValidationFailed("operator id is required")
	}
	if len(p.Proofs) == 0 {
		return nil, errutil.ValidationFailed("at least one proof is required")
	}

	if err := s.allowRate(ctx, p.OperatorID); err != nil {
		return nil, err
	}

	ord, err := s.orders.GetOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	if ord.Status != order.StatusActive {
		return nil, errutil.InvalidTransition(fmt.Sprintf("order is %s, not accepting submissions", ord.Status))
	}
	if ord.RemainingQuantity() == 0 {
		return nil, errutil.OrderFulfilled("order target already reached")
	}
	if ord.ExpiresAt != nil && time.Now().After(*ord.ExpiresAt) {
		return nil, errutil.Expired("order has expired")
	}

	tpl, err := s.orders.GetTemplate(ctx, ord.TemplateCode)
	if err != nil {
		return nil, err
	}

	required := tpl.ProofTypes()
	allowed := make(map[string]bool, len(required))
	for _, t := range required {
		allowed[t] = true
	}
	for _, proof := range p.Proofs {
		if !allowed[proof.ProofType] {
			return nil, errutil.ValidationFailed(
				fmt.Sprintf("proof type %q is not required by template %s", proof.ProofType, tpl.Code))
		}
	}

	if err := s.checkEligibility(ctx, p.OperatorID, tpl); err != nil {
		return nil, err
	}

	isFirst, err := s.isFirstExecution(ctx, p.OperatorID, tpl.Code)
	if err != nil {
		return nil, err
	}
	isSample := !isFirst && s.sampler.Sample()

	code, err := s.nextSubmissionCode(ctx, p.OperatorID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &Submission{
		ID:               s.node.Generate().String(),
		Code:             code,
		OrderID:          ord.ID,
		TemplateCode:     tpl.Code,
		OperatorID:       p.OperatorID,
		Status:           StatusPendingAuto,
		SubmittedAt:      now,
		IsFirstExecution: isFirst,
		IsRandomSample:   isSample,
		TimeSpentMinutes: p.TimeSpentMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if txErr := s.submissions.WithTrx(tx).Create(ctx, sub); txErr != nil {
			return txErr
		}
		for _, in := range p.Proofs {
			proof := &Proof{
				ID:                   s.node.Generate().String(),
				SubmissionID:         sub.ID,
				ProofType:            in.ProofType,
				FileURL:              in.FileURL,
				ExternalURL:          in.ExternalURL,
				AutoValidationStatus: ProofPending,
				CreatedAt:            now,
			}
			if txErr := s.proofs.WithTrx(tx).Create(ctx, proof); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.String("order_id", ord.ID),
		zap.String("operator_id", p.OperatorID),
		zap.Bool("is_first_execution", isFirst),
		zap.Bool("is_random_sample", isSample),
	)
	return sub, nil
}

func (s *Service) allowRate(ctx context.Context, operatorID string) error {
	if s.limiter == nil {
		return nil
	}
	key := rediskey.BuildSubmissionCreateKey(operatorID)
	ok, err := s.limiter.Allow(ctx, key, s.engine.SubmissionRateLimit, s.engine.SubmissionRateWindow)
	if err != nil {
		zap.L().Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return nil
	}
	if !ok {
		return errutil.TooManyRequest("submission rate limit exceeded")
	}
	return nil
}

func (s *Service) checkEligibility(ctx context.Context, operatorID string, tpl *order.Template) error {
	levels, err := s.rank.Levels(ctx)
	if err != nil {
		return err
	}
	stats, err := s.rank.GetOperatorStats(ctx, operatorID)
	if err != nil {
		return err
	}

	level := s.rank.EffectiveRank(levels, stats, time.Now())
	if level < tpl.MinRankLevel {
		return errutil.NotEligible(
			fmt.Sprintf("template %s requires rank level %d", tpl.Code, tpl.MinRankLevel))
	}
	if !rank.IsEligible(levels, level, tpl.Code) {
		return errutil.NotEligible(fmt.Sprintf("rank level %d cannot execute template %s", level, tpl.Code))
	}

	if tpl.EligibilityRule != "" {
		ok, err := s.rank.EvaluateEligibilityRule(tpl.EligibilityRule, stats, level)
		if err != nil {
			zap.L().Error("eligibility rule evaluation failed",
				zap.String("template_code", tpl.Code),
				zap.Error(err),
			)
			return err
		}
		if !ok {
			return errutil.NotEligible(fmt.Sprintf("operator does not satisfy template %s eligibility rule", tpl.Code))
		}
	}
	return nil
}

func (s *Service) isFirstExecution(ctx context.Context, operatorID, templateCode string) (bool, error) {
	count, err := s.submissions.Count(ctx, &Submission{
		OperatorID:   operatorID,
		TemplateCode: templateCode,
	})
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (s *Service) nextSubmissionCode(ctx context.Context, operatorID string) (string, error) {
	if s.sequence != nil {
		code, err := s.sequence.NextSubmissionCode(ctx, operatorID)
		if err == nil {
			return code, nil
		}
		zap.L().Warn("sequence generator unavailable, using snowflake submission code", zap.Error(err))
	}
	return fmt.Sprintf("SUB-%s", s.node.Generate().String()), nil
}

func (s *Service) GetSubmission(ctx context.Context, submissionID string) (*Submission, error) {
	sub, err := s.submissions.FindOne(ctx, &Submission{ID: submissionID})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errutil.NotFound("submission not found")
	}
	return sub, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]*Submission, error) {
	return s.submissions.Find(ctx, &Submission{OrderID: orderID}, option.WithSortBy(
		option.QuerySortBy{
			SortBy:  "submitted_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"submitted_at": true},
		},
	))
}

func (s *Service) ListProofs(ctx context.Context, submissionID string) ([]*Proof, error) {
	return s.proofs.Find(ctx, &Proof{SubmissionID: submissionID})
}

// RecordProofValidation applies the external validator's verdict to a
// proof, then re-evaluates the auto-gate for the submission.
func (s *Service) RecordProofValidation(ctx context.Context, proofID string, status ProofStatus, notes string) (*Submission, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	switch status {
	case ProofPassed, ProofFailed, ProofFlagged:
	default:
		return nil, errutil.ValidationFailed("validation status must be passed, failed or flagged")
	}

	proof, err := s.proofs.FindOne(ctx, &Proof{ID: proofID})
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, errutil.NotFound("proof not found")
	}
	if proof.AutoValidationStatus != ProofPending {
		return nil, errutil.Conflict("proof has already been validated")
	}

	now := time.Now()
	updates := map[string]any{
		"auto_validation_status": status,
		"validator_notes":        notes,
		"validated_at":           now,
	}
	if err := s.proofs.Update(ctx, proof.ID, &updates); err != nil {
		return nil, err
	}

	return s.evaluateAutoGate(ctx, proof.SubmissionID)
}

// evaluateAutoGate runs once all required proof types have a
// non-pending verdict: any failure rejects, a clean pass verifies
// unless manual review is forced, anything flagged goes to review.
func (s *Service) evaluateAutoGate(ctx context.Context, submissionID string) (*Submission, error) {
	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusPendingAuto {
		return sub, nil
	}

	tpl, err := s.orders.GetTemplate(ctx, sub.TemplateCode)
	if err != nil {
		return nil, err
	}
	proofs, err := s.ListProofs(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	byType := make(map[string][]*Proof)
	for _, proof := range proofs {
		byType[proof.ProofType] = append(byType[proof.ProofType], proof)
	}

	anyFailed := false
	anyFlagged := false
	for _, requiredType := range tpl.ProofTypes() {
		settled := false
		for _, proof := range byType[requiredType] {
			switch proof.AutoValidationStatus {
			case ProofPassed:
				settled = true
			case ProofFailed:
				settled = true
				anyFailed = true
			case ProofFlagged:
				settled = true
				anyFlagged = true
			}
		}
		if !settled {
			// still waiting on the validator
			return sub, nil
		}
	}

	if anyFailed {
		return s.autoReject(ctx, sub, "required proof failed automated validation", CategoryAutoValidationFailed)
	}

	needsReview := anyFlagged || tpl.RequiresManualReview || sub.IsFirstExecution || sub.IsRandomSample
	if needsReview {
		now := time.Now()
		updates := map[string]any{
			"status":                  StatusPendingReview,
			"verification_started_at": now,
			"updated_at":              now,
		}
		if err := s.submissions.Update(ctx, sub.ID, &updates); err != nil {
			return nil, err
		}
		return s.GetSubmission(ctx, sub.ID)
	}

	return s.Verify(ctx, sub.ID, VerifiedBySystem, VerifyParams{})
}

func (s *Service) autoReject(ctx context.Context, sub *Submission, reason, category string) (*Submission, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		locked, txErr := s.lockSubmission(ctx, tx, sub.ID)
		if txErr != nil {
			return txErr
		}
		if !locked.Status.Open() {
			return errutil.AlreadyTerminal(fmt.Sprintf("submission is already %s", locked.Status))
		}

		if txErr = s.markRejected(ctx, tx, locked, VerifiedBySystem, reason, category); txErr != nil {
			return txErr
		}
		_, txErr = s.rank.ApplyResultInTx(ctx, tx, locked.OperatorID, false, time.Now())
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, sub.OperatorID, NotifySubmissionRejected, map[string]any{
		"submission_id": sub.ID,
		"reason":        reason,
		"category":      category,
	})
	return s.GetSubmission(ctx, sub.ID)
}

func (s *Service) lockSubmission(ctx context.Context, tx *gorm.DB, submissionID string) (*Submission, error) {
	sub, err := s.submissions.WithTrx(tx).FindOne(ctx, &Submission{ID: submissionID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errutil.NotFound("submission not found")
	}
	return sub, nil
}

func (s *Service) markRejected(ctx context.Context, tx *gorm.DB, sub *Submission, by, reason, category string) error {
	updates := map[string]any{
		"status":             StatusRejected,
		"verified_by":        by,
		"rejection_reason":   reason,
		"rejection_category": category,
		"updated_at":         time.Now(),
	}
	return s.submissions.WithTrx(tx).Update(ctx, sub.ID, &updates)
}

type VerifyParams struct {
	QualityScore *int
}

// Verify settles a submission: reward computed at the operator's
// effective rank, payout released, stats and the order counter updated,
// all in one transaction. A submission racing past the order target is
// rejected with category order_fulfilled instead.
func (s *Service) Verify(ctx context.Context, submissionID, verifiedBy string, p VerifyParams) (*Submission, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	// reference data reads stay outside the transaction
	preload, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.orders.GetTemplate(ctx, preload.TemplateCode)
	if err != nil {
		return nil, err
	}
	levels, err := s.rank.Levels(ctx)
	if err != nil {
		return nil, err
	}

	var fulfilled bool
	var operatorID string

	err = s.db.Transaction(func(tx *gorm.DB) error {
		sub, txErr := s.lockSubmission(ctx, tx, submissionID)
		if txErr != nil {
			return txErr
		}
		operatorID = sub.OperatorID

		if sub.Status.Terminal() {
			return errutil.AlreadyTerminal(fmt.Sprintf("submission is already %s", sub.Status))
		}
		if sub.Status == StatusDisputed {
			return errutil.InvalidTransition("disputed submissions are settled through dispute resolution")
		}
		if sub.Status == StatusPendingAuto && verifiedBy != VerifiedBySystem {
			return errutil.InvalidTransition("submission has not cleared automated validation yet")
		}

		ord, txErr := s.orders.RecordFulfillmentInTx(ctx, tx, sub.OrderID)
		if txErr != nil {
			if errutil.HasStatus(txErr, errutil.StatusOrderFulfilled) {
				fulfilled = true
				return s.markRejected(ctx, tx, sub, VerifiedBySystem,
					"order target reached before verification", CategoryOrderFulfilled)
			}
			return txErr
		}

		stats, txErr := s.rank.GetOperatorStatsInTx(ctx, tx, sub.OperatorID)
		if txErr != nil {
			return txErr
		}

		now := time.Now()
		level := s.rank.EffectiveRank(levels, stats, now)
		breakdown, txErr := s.calculator.Calculate(reward.Input{
			BasePoints:       tpl.BaseCreditValue,
			Difficulty:       tpl.Difficulty,
			Category:         tpl.Category,
			TimeSpentMinutes: sub.TimeSpentMinutes,
			EstimatedMinutes: tpl.EstimatedMinutes,
			QualityScore:     p.QualityScore,
			RankLevel:        level,
			RankBonusPercent: rank.BonusPercent(levels, level),
		})
		if txErr != nil {
			return txErr
		}

		breakdownJSON, _ := json.Marshal(breakdown)

		if _, txErr = s.wallet.PayoutInTx(ctx, tx, wallet.PayoutParams{
			OperatorID:   sub.OperatorID,
			Amount:       ord.OperatorPayout,
			SubmissionID: sub.ID,
			OrderID:      ord.ID,
			Metadata:     datatypes.JSON(breakdownJSON),
		}); txErr != nil {
			return txErr
		}

		if _, txErr = s.rank.ApplyResultInTx(ctx, tx, sub.OperatorID, true, now); txErr != nil {
			return txErr
		}

		updates := map[string]any{
			"status":              StatusVerified,
			"verified_at":         now,
			"verified_by":         verifiedBy,
			"credits_earned":      breakdown.FinalPoints,
			"credits_released_at": now,
			"reward_breakdown":    datatypes.JSON(breakdownJSON),
			"updated_at":          now,
		}
		if p.QualityScore != nil {
			updates["quality_score"] = *p.QualityScore
		}
		return s.submissions.WithTrx(tx).Update(ctx, sub.ID, &updates)
	})
	if err != nil {
		return nil, err
	}

	if fulfilled {
		s.notify(ctx, operatorID, NotifySubmissionRejected, map[string]any{
			"submission_id": submissionID,
			"category":      CategoryOrderFulfilled,
		})
		return nil, errutil.OrderFulfilled("order target already reached")
	}

	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, sub.OperatorID, NotifySubmissionVerified, map[string]any{
		"submission_id":  sub.ID,
		"credits_earned": sub.CreditsEarned,
	})
	return sub, nil
}

// Reject closes a submission under review. The reason and category are
// surfaced to the operator, who may create a new submission against the
// same order.
func (s *Service) Reject(ctx context.Context, submissionID, rejectedBy, reason, category string) (*Submission, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if reason == "" || category == "" {
		return nil, errutil.ValidationFailed("rejection reason and category are required")
	}

	var operatorID string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, txErr := s.lockSubmission(ctx, tx, submissionID)
		if txErr != nil {
			return txErr
		}
		operatorID = sub.OperatorID

		if sub.Status.Terminal() {
			return errutil.AlreadyTerminal(fmt.Sprintf("submission is already %s", sub.Status))
		}
		if sub.Status != StatusPendingReview {
			return errutil.InvalidTransition("only submissions under review can be rejected")
		}

		if txErr = s.markRejected(ctx, tx, sub, rejectedBy, reason, category); txErr != nil {
			return txErr
		}
		_, txErr = s.rank.ApplyResultInTx(ctx, tx, sub.OperatorID, false, time.Now())
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, operatorID, NotifySubmissionRejected, map[string]any{
		"submission_id": submissionID,
		"reason":        reason,
		"category":      category,
	})
	return s.GetSubmission(ctx, submissionID)
}

// Dispute reopens a terminal submission for re-adjudication. A released
// payout stays in the ledger but moves to the operator's pending balance
// until the dispute is resolved.
func (s *Service) Dispute(ctx context.Context, submissionID, reason string) (*Submission, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if reason == "" {
		return nil, errutil.ValidationFailed("dispute reason is required")
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, txErr := s.lockSubmission(ctx, tx, submissionID)
		if txErr != nil {
			return txErr
		}
		if !sub.Status.Terminal() {
			return errutil.InvalidTransition("only verified or rejected submissions can be disputed")
		}

		if sub.Status == StatusVerified {
			if _, txErr := s.wallet.HoldForDisputeInTx(ctx, tx, sub.ID); txErr != nil {
				return txErr
			}
		}

		updates := map[string]any{
			"status":         StatusDisputed,
			"dispute_reason": reason,
			"updated_at":     time.Now(),
		}
		return s.submissions.WithTrx(tx).Update(ctx, sub.ID, &updates)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "admin", NotifySubmissionDisputed, map[string]any{
		"submission_id": submissionID,
		"reason":        reason,
	})
	return s.GetSubmission(ctx, submissionID)
}

type ResolveDisputeParams struct {
	Outcome    Status
	ResolvedBy string
	Reason     string
}

// ResolveDispute settles a disputed submission. Restoring a previously
// verified submission replays the payout idempotently; overturning one
// does not claw back the payout, an explicit ReversePayout on the
// wallet is the audited path for that.
func (s *Service) ResolveDispute(ctx context.Context, submissionID string, p ResolveDisputeParams) (*Submission, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if p.Outcome != StatusVerified && p.Outcome != StatusRejected {
		return nil, errutil.ValidationFailed("dispute outcome must be verified or rejected")
	}
	if p.Reason == "" {
		return nil, errutil.ValidationFailed("resolution reason is required")
	}

	preload, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	ord, err := s.orders.GetOrder(ctx, preload.OrderID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		sub, txErr := s.lockSubmission(ctx, tx, submissionID)
		if txErr != nil {
			return txErr
		}
		if sub.Status != StatusDisputed {
			return errutil.InvalidTransition("submission is not disputed")
		}

		// the dispute hold lifts on either outcome; clawback after an
		// overturn stays an explicit ReversePayout
		if _, txErr := s.wallet.ReleaseDisputeHoldInTx(ctx, tx, sub.ID); txErr != nil {
			return txErr
		}

		now := time.Now()

		if p.Outcome == StatusRejected {
			return s.markRejected(ctx, tx, sub, p.ResolvedBy, p.Reason, "dispute_overturned")
		}

		if sub.CreditsEarned == nil {
			return errutil.InvalidTransition("submission was never verified, create a new submission instead")
		}

		// restore the original verification; payout replay is a no-op
		if _, txErr = s.wallet.PayoutInTx(ctx, tx, wallet.PayoutParams{
			OperatorID:   sub.OperatorID,
			Amount:       ord.OperatorPayout,
			SubmissionID: sub.ID,
			OrderID:      ord.ID,
		}); txErr != nil {
			return txErr
		}

		updates := map[string]any{
			"status":      StatusVerified,
			"verified_by": p.ResolvedBy,
			"updated_at":  now,
		}
		return s.submissions.WithTrx(tx).Update(ctx, sub.ID, &updates)
	})
	if err != nil {
		return nil, err
	}

	return s.GetSubmission(ctx, submissionID)
}

// ExpireSweep auto-rejects open submissions that outlived their
// template's verification window. Returns how many were expired.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	open, err := s.submissions.Find(ctx, &Submission{}, option.ApplyOperator(option.Condition{
		Field:    "status",
		Operator: option.NEQ,
		Value:    StatusVerified,
	}))
	if err != nil {
		return 0, err
	}

	windows := make(map[string]int)
	expired := 0
	for _, sub := range open {
		if !sub.Status.Open() {
			continue
		}

		window, ok := windows[sub.TemplateCode]
		if !ok {
			tpl, tplErr := s.orders.GetTemplate(ctx, sub.TemplateCode)
			if tplErr != nil {
				zap.L().Warn("skipping submission with unknown template",
					zap.String("submission_id", sub.ID),
					zap.String("template_code", sub.TemplateCode),
				)
				continue
			}
			window = tpl.VerificationWindowHours
			windows[sub.TemplateCode] = window
		}

		if !IsExpired(sub, window, now) {
			continue
		}

		if _, err := s.autoReject(ctx, sub, "verification window elapsed", CategoryExpired); err != nil {
			zap.L().Error("failed to expire submission",
				zap.String("submission_id", sub.ID),
				zap.Error(err),
			)
			continue
		}
		expired++
	}

	if expired > 0 {
		zap.L().Info("expired stale submissions", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *Service) notify(ctx context.Context, recipientID, kind string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, recipientID, kind, payload); err != nil {
		zap.L().Warn("notification delivery failed",
			zap.String("recipient_id", recipientID),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}
