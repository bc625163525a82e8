package submission

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskpoint/pkg/config"
	"taskpoint/pkg/errutil"
	"taskpoint/services/order"
	"taskpoint/services/rank"
	"taskpoint/services/reward"
	"taskpoint/services/testutil"
	"taskpoint/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type testEnv struct {
	db     *gorm.DB
	node   *snowflake.Node
	rank   *rank.Service
	wallet *wallet.Service
	orders *order.Service
	subs   *Service
}

type captureNotifier struct {
	events []string
}

func (n *captureNotifier) Notify(_ context.Context, _, kind string, _ map[string]any) error {
	n.events = append(n.events, kind)
	return nil
}

func newTestEnv(t *testing.T) (*testEnv, *captureNotifier) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&rank.RankLevel{}, &rank.ExecutionMode{}, &rank.OperatorStats{},
		&wallet.WalletTransaction{}, &wallet.Balance{},
		&order.Template{}, &order.Order{}, &order.BrandQualification{},
		&Submission{}, &Proof{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	rankSvc := rank.NewService(rank.ServiceParams{DB: db})
	for _, level := range rank.DefaultLevels() {
		level := level
		require.NoError(t, db.Create(&level).Error)
	}
	_, err = rankSvc.Levels(context.Background())
	require.NoError(t, err)

	walletSvc := wallet.NewService(wallet.ServiceParams{DB: db, Node: node})

	engine := config.EngineConfig{FeePercent: 15, CampaignDuration: 30 * 24 * time.Hour}
	orderSvc := order.NewService(order.ServiceParams{
		DB: db, Node: node, Wallet: walletSvc, Rank: rankSvc, Engine: engine,
	})

	notifier := &captureNotifier{}
	subSvc := NewService(ServiceParams{
		DB:         db,
		Node:       node,
		Rank:       rankSvc,
		Wallet:     walletSvc,
		Orders:     orderSvc,
		Calculator: reward.NewCalculator(reward.CalculatorParams{}),
		Engine:     engine,
		Sampler:    NeverSample{},
		Notifier:   notifier,
	})

	return &testEnv{db: db, node: node, rank: rankSvc, wallet: walletSvc, orders: orderSvc, subs: subSvc}, notifier
}

func createTemplate(t *testing.T, env *testEnv, mutate func(*order.CreateTemplateParams)) *order.Template {
	t.Helper()

	p := order.CreateTemplateParams{
		Code:                    "survey-basic",
		Name:                    "Basic survey",
		Category:                "survey",
		Difficulty:              "medium",
		BaseCreditValue:         100,
		RequiredProofTypes:      []string{"screenshot"},
		VerificationWindowHours: 48,
		EstimatedMinutes:        30,
	}
	if mutate != nil {
		mutate(&p)
	}

	tpl, err := env.orders.CreateTemplate(context.Background(), p)
	require.NoError(t, err)
	return tpl
}

func activeOrder(t *testing.T, env *testEnv, templateCode string, targetQuantity int) *order.Order {
	t.Helper()
	ctx := context.Background()

	_, err := env.orders.SubmitQualification(ctx, order.SubmitQualificationParams{
		BrandID:              "brand-1",
		TermsAccepted:        true,
		ContentPolicyAgreed:  true,
		PaymentTermsAccepted: true,
		DataPolicyAgreed:     true,
	})
	require.NoError(t, err)
	_, err = env.orders.ReviewQualification(ctx, order.ReviewQualificationParams{
		BrandID: "brand-1", Status: order.QualificationQualified, ReviewedBy: "admin-1",
	})
	require.NoError(t, err)

	_, err = env.wallet.Deposit(ctx, wallet.DepositParams{
		BrandID: "brand-1", Amount: int64(1000 * targetQuantity),
	})
	require.NoError(t, err)

	ord, err := env.orders.CreateOrder(ctx, order.CreateOrderParams{
		BrandID: "brand-1", TemplateCode: templateCode, TargetQuantity: targetQuantity, OperatorPayout: 850,
	})
	require.NoError(t, err)

	_, err = env.orders.SubmitForApproval(ctx, ord.ID)
	require.NoError(t, err)

	ord, err = env.orders.Approve(ctx, ord.ID, "admin-1")
	require.NoError(t, err)
	return ord
}

// seedPriorSubmission makes the operator a repeat executor of the
// template so new submissions skip the first-execution review.
func seedPriorSubmission(t *testing.T, env *testEnv, operatorID, templateCode, orderID string) {
	t.Helper()

	now := time.Now().Add(-time.Hour)
	sub := &Submission{
		ID:           env.node.Generate().String(),
		Code:         "SUB-" + env.node.Generate().String(),
		OrderID:      orderID,
		TemplateCode: templateCode,
		OperatorID:   operatorID,
		Status:       StatusRejected,
		SubmittedAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, env.db.Create(sub).Error)
}

func passProofs(t *testing.T, env *testEnv, submissionID string) *Submission {
	t.Helper()

	proofs, err := env.subs.ListProofs(context.Background(), submissionID)
	require.NoError(t, err)

	var sub *Submission
	for _, proof := range proofs {
		sub, err = env.subs.RecordProofValidation(context.Background(), proof.ID, ProofPassed, "")
		require.NoError(t, err)
	}
	return sub
}

func TestCreateValidation(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()

	_, err := env.subs.Create(ctx, CreateParams{OrderID: "x", Proofs: []ProofInput{{ProofType: "screenshot"}}})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = env.subs.Create(ctx, CreateParams{OrderID: "x", OperatorID: "op-1"})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))
}

func TestCreateRequiresActiveOrder(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)

	_, err := env.orders.SubmitQualification(ctx, order.SubmitQualificationParams{
		BrandID: "brand-1", TermsAccepted: true, ContentPolicyAgreed: true,
		PaymentTermsAccepted: true, DataPolicyAgreed: true,
	})
	require.NoError(t, err)
	_, err = env.orders.ReviewQualification(ctx, order.ReviewQualificationParams{
		BrandID: "brand-1", Status: order.QualificationQualified, ReviewedBy: "admin-1",
	})
	require.NoError(t, err)

	draft, err := env.orders.CreateOrder(ctx, order.CreateOrderParams{
		BrandID: "brand-1", TemplateCode: "survey-basic", TargetQuantity: 1, OperatorPayout: 850,
	})
	require.NoError(t, err)

	_, err = env.subs.Create(ctx, CreateParams{
		OrderID: draft.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))
}

func TestCreateRejectsUnknownProofType(t *testing.T) {
	env, _ := newTestEnv(t)
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	_, err := env.subs.Create(context.Background(), CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "video"}},
	})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))
}

func TestCreateRejectsExpiredOrder(t *testing.T) {
	env, _ := newTestEnv(t)
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, env.db.Model(&order.Order{}).Where("id = ?", ord.ID).
		Update("expires_at", past).Error)

	_, err := env.subs.Create(context.Background(), CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.True(t, errutil.HasStatus(err, errutil.StatusExpired))
}

func TestCreateRankGate(t *testing.T) {
	env, _ := newTestEnv(t)
	createTemplate(t, env, func(p *order.CreateTemplateParams) {
		p.MinRankLevel = 3
	})
	ord := activeOrder(t, env, "survey-basic", 1)

	// fresh operators start at the lowest rank
	_, err := env.subs.Create(context.Background(), CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.True(t, errutil.HasStatus(err, errutil.StatusNotEligible))
}

func TestCreateEligibilityRule(t *testing.T) {
	env, _ := newTestEnv(t)
	createTemplate(t, env, func(p *order.CreateTemplateParams) {
		p.EligibilityRule = "verified_executions >= 5"
	})
	ord := activeOrder(t, env, "survey-basic", 1)

	_, err := env.subs.Create(context.Background(), CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.True(t, errutil.HasStatus(err, errutil.StatusNotEligible))
}

func TestCreateFirstExecutionFlag(t *testing.T) {
	env, _ := newTestEnv(t)
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 2)

	first, err := env.subs.Create(context.Background(), CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)
	require.True(t, first.IsFirstExecution)
	require.Equal(t, StatusPendingAuto, first.Status)

	second, err := env.subs.Create(context.Background(), CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)
	require.False(t, second.IsFirstExecution)
}

func TestAutoGateRejectsFailedProof(t *testing.T) {
	env, notifier := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)

	proofs, err := env.subs.ListProofs(ctx, sub.ID)
	require.NoError(t, err)

	sub, err = env.subs.RecordProofValidation(ctx, proofs[0].ID, ProofFailed, "blurry")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, sub.Status)
	require.Equal(t, CategoryAutoValidationFailed, sub.RejectionCategory)
	require.Equal(t, VerifiedBySystem, sub.VerifiedBy)

	stats, err := env.rank.GetOperatorStats(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.FailedExecutions)

	require.Contains(t, notifier.events, NotifySubmissionRejected)
}

func TestAutoGateFlaggedGoesToReview(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)
	seedPriorSubmission(t, env, "op-1", "survey-basic", ord.ID)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)

	proofs, err := env.subs.ListProofs(ctx, sub.ID)
	require.NoError(t, err)

	sub, err = env.subs.RecordProofValidation(ctx, proofs[0].ID, ProofFlagged, "possible duplicate")
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, sub.Status)
	require.NotNil(t, sub.VerificationStartedAt)
}

func TestAutoGateFirstExecutionGoesToReview(t *testing.T) {
	env, _ := newTestEnv(t)
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(context.Background(), CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)

	sub = passProofs(t, env, sub.ID)
	require.Equal(t, StatusPendingReview, sub.Status)
}

func TestAutoGateWaitsForAllRequiredTypes(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, func(p *order.CreateTemplateParams) {
		p.RequiredProofTypes = []string{"screenshot", "link"}
	})
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID:    ord.ID,
		OperatorID: "op-1",
		Proofs: []ProofInput{
			{ProofType: "screenshot", FileURL: "https://cdn.example.com/shot.png"},
			{ProofType: "link", ExternalURL: "https://example.com/post"},
		},
	})
	require.NoError(t, err)

	proofs, err := env.subs.ListProofs(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, proofs, 2)

	// one required type still pending, the gate must hold
	sub, err = env.subs.RecordProofValidation(ctx, proofs[0].ID, ProofPassed, "")
	require.NoError(t, err)
	require.Equal(t, StatusPendingAuto, sub.Status)

	sub, err = env.subs.RecordProofValidation(ctx, proofs[1].ID, ProofPassed, "")
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, sub.Status)
}

func TestAutoGateAutoVerifiesRepeatOperator(t *testing.T) {
	env, notifier := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)
	seedPriorSubmission(t, env, "op-1", "survey-basic", ord.ID)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)

	sub = passProofs(t, env, sub.ID)
	require.Equal(t, StatusVerified, sub.Status)
	require.Equal(t, VerifiedBySystem, sub.VerifiedBy)
	require.NotNil(t, sub.CreditsEarned)
	require.Equal(t, int64(100), *sub.CreditsEarned)
	require.NotNil(t, sub.CreditsReleasedAt)

	balance, err := env.wallet.GetBalance(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(850), balance.Balance)

	stats, err := env.rank.GetOperatorStats(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.VerifiedExecutions)

	updated, err := env.orders.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.Equal(t, 1, updated.CompletedQuantity)
	require.Equal(t, order.StatusCompleted, updated.Status)

	require.Contains(t, notifier.events, NotifySubmissionVerified)
}

func TestVerifyManualWithQualityScore(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)
	sub = passProofs(t, env, sub.ID)
	require.Equal(t, StatusPendingReview, sub.Status)

	quality := 95
	sub, err = env.subs.Verify(ctx, sub.ID, "admin-1", VerifyParams{QualityScore: &quality})
	require.NoError(t, err)
	require.Equal(t, StatusVerified, sub.Status)
	require.Equal(t, "admin-1", sub.VerifiedBy)
	require.Equal(t, int64(130), *sub.CreditsEarned)
	require.Equal(t, 95, *sub.QualityScore)
	require.NotEmpty(t, sub.RewardBreakdown)
}

func TestVerifyRequiresAutoGateFirst(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)

	_, err = env.subs.Verify(ctx, sub.ID, "admin-1", VerifyParams{})
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))
}

func TestVerifyRaceAtOrderTarget(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	subA, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-a", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)
	subB, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-b", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)

	subA = passProofs(t, env, subA.ID)
	subB = passProofs(t, env, subB.ID)
	require.Equal(t, StatusPendingReview, subA.Status)
	require.Equal(t, StatusPendingReview, subB.Status)

	_, err = env.subs.Verify(ctx, subA.ID, "admin-1", VerifyParams{})
	require.NoError(t, err)

	// the order target is reached, the loser is rejected but not penalized
	_, err = env.subs.Verify(ctx, subB.ID, "admin-1", VerifyParams{})
	require.True(t, errutil.HasStatus(err, errutil.StatusOrderFulfilled))

	subB, err = env.subs.GetSubmission(ctx, subB.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, subB.Status)
	require.Equal(t, CategoryOrderFulfilled, subB.RejectionCategory)

	stats, err := env.rank.GetOperatorStats(ctx, "op-b")
	require.NoError(t, err)
	require.Zero(t, stats.FailedExecutions)
	require.Zero(t, stats.VerifiedExecutions)

	// no payout was released to the loser
	balance, err := env.wallet.GetBalance(ctx, "op-b")
	require.NoError(t, err)
	require.Zero(t, balance.Balance)
}

func TestRejectOnlyUnderReview(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)

	_, err = env.subs.Reject(ctx, sub.ID, "admin-1", "bad proof", "quality")
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))

	sub = passProofs(t, env, sub.ID)

	_, err = env.subs.Reject(ctx, sub.ID, "admin-1", "", "quality")
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	sub, err = env.subs.Reject(ctx, sub.ID, "admin-1", "proof does not show completion", "quality")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, sub.Status)

	stats, err := env.rank.GetOperatorStats(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.FailedExecutions)

	// rejected is terminal for the review flow
	_, err = env.subs.Reject(ctx, sub.ID, "admin-1", "again", "quality")
	require.True(t, errutil.HasStatus(err, errutil.StatusAlreadyTerminal))
}

func TestDisputeAndResolve(t *testing.T) {
	env, notifier := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)
	sub = passProofs(t, env, sub.ID)

	// open submissions cannot be disputed
	_, err = env.subs.Dispute(ctx, sub.ID, "premature")
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))

	sub, err = env.subs.Verify(ctx, sub.ID, "admin-1", VerifyParams{})
	require.NoError(t, err)

	sub, err = env.subs.Dispute(ctx, sub.ID, "brand claims proof is fabricated")
	require.NoError(t, err)
	require.Equal(t, StatusDisputed, sub.Status)
	require.Contains(t, notifier.events, NotifySubmissionDisputed)

	// the released payout is held as pending while the dispute is open
	balance, err := env.wallet.GetBalance(ctx, "op-1")
	require.NoError(t, err)
	require.Zero(t, balance.Balance)
	require.Equal(t, int64(850), balance.Pending)

	// a disputed submission is off-limits to the normal verify path
	_, err = env.subs.Verify(ctx, sub.ID, "admin-1", VerifyParams{})
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))

	sub, err = env.subs.ResolveDispute(ctx, sub.ID, ResolveDisputeParams{
		Outcome: StatusRejected, ResolvedBy: "admin-2", Reason: "proof confirmed fabricated",
	})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, sub.Status)
	require.Equal(t, "dispute_overturned", sub.RejectionCategory)

	// overturning lifts the hold but does not claw back the payout on
	// its own
	balance, err = env.wallet.GetBalance(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(850), balance.Balance)
	require.Zero(t, balance.Pending)
}

func TestResolveDisputeRestoresVerification(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)
	sub = passProofs(t, env, sub.ID)
	sub, err = env.subs.Verify(ctx, sub.ID, "admin-1", VerifyParams{})
	require.NoError(t, err)
	credits := *sub.CreditsEarned

	sub, err = env.subs.Dispute(ctx, sub.ID, "operator contests nothing really")
	require.NoError(t, err)

	sub, err = env.subs.ResolveDispute(ctx, sub.ID, ResolveDisputeParams{
		Outcome: StatusVerified, ResolvedBy: "admin-2", Reason: "dispute withdrawn",
	})
	require.NoError(t, err)
	require.Equal(t, StatusVerified, sub.Status)
	require.Equal(t, credits, *sub.CreditsEarned)

	// the hold is released and the payout replay is idempotent
	balance, err := env.wallet.GetBalance(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(850), balance.Balance)
	require.Zero(t, balance.Pending)

	entries, err := env.wallet.ListTransactions(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestResolveDisputeCannotVerifyNeverVerified(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 1)

	sub, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)
	sub = passProofs(t, env, sub.ID)
	sub, err = env.subs.Reject(ctx, sub.ID, "admin-1", "bad proof", "quality")
	require.NoError(t, err)

	sub, err = env.subs.Dispute(ctx, sub.ID, "operator insists the proof is fine")
	require.NoError(t, err)

	_, err = env.subs.ResolveDispute(ctx, sub.ID, ResolveDisputeParams{
		Outcome: StatusVerified, ResolvedBy: "admin-2", Reason: "benefit of the doubt",
	})
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	open := &Submission{Status: StatusPendingAuto, SubmittedAt: now.Add(-72 * time.Hour)}

	require.True(t, IsExpired(open, 48, now))
	require.False(t, IsExpired(open, 96, now))
	require.False(t, IsExpired(open, 0, now))
	require.False(t, IsExpired(nil, 48, now))

	terminal := &Submission{Status: StatusVerified, SubmittedAt: now.Add(-72 * time.Hour)}
	require.False(t, IsExpired(terminal, 48, now))
}

func TestExpireSweep(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	createTemplate(t, env, nil)
	ord := activeOrder(t, env, "survey-basic", 2)

	stale, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-1", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)
	fresh, err := env.subs.Create(ctx, CreateParams{
		OrderID: ord.ID, OperatorID: "op-2", Proofs: []ProofInput{{ProofType: "screenshot"}},
	})
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&Submission{}).Where("id = ?", stale.ID).
		Update("submitted_at", time.Now().Add(-72*time.Hour)).Error)

	expired, err := env.subs.ExpireSweep(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	stale, err = env.subs.GetSubmission(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, stale.Status)
	require.Equal(t, CategoryExpired, stale.RejectionCategory)

	fresh, err = env.subs.GetSubmission(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingAuto, fresh.Status)

	stats, err := env.rank.GetOperatorStats(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.FailedExecutions)
}
