package wallet

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskpoint/pkg/errutil"
	"taskpoint/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &WalletTransaction{}, &Balance{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func TestComputeFee(t *testing.T) {
	fee, err := ComputeFee(850, 15)
	require.NoError(t, err)
	require.Equal(t, int64(150), fee)

	total, err := ComputeBrandTotalCost(850, 15)
	require.NoError(t, err)
	require.Equal(t, int64(1000), total)
}

func TestComputeFeeValidation(t *testing.T) {
	_, err := ComputeFee(0, 15)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = ComputeFee(100, -1)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = ComputeFee(100, 100)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	fee, err := ComputeFee(100, 0)
	require.NoError(t, err)
	require.Zero(t, fee)
}

func TestComputeFeePercentOfTotalInvariant(t *testing.T) {
	// the fee is a share of the total cost, not of the payout: the
	// smallest fee satisfying 100*fee >= percent*(payout+fee)
	for _, payout := range []int64{1, 7, 99, 100, 850, 12345} {
		for _, percent := range []int64{1, 5, 10, 15, 20, 33, 50, 99} {
			fee, err := ComputeFee(payout, percent)
			require.NoError(t, err)

			total := payout + fee
			require.GreaterOrEqual(t, 100*fee, percent*total,
				"payout=%d percent=%d fee=%d", payout, percent, fee)
			if fee > 0 {
				require.Less(t, 100*(fee-1), percent*(total-1),
					"fee not minimal: payout=%d percent=%d fee=%d", payout, percent, fee)
			}
		}
	}
}

func TestDepositAndBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	entry, err := svc.Deposit(ctx, DepositParams{BrandID: "brand-1", Amount: 1000, ReferenceID: "settle-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1000), entry.ResultingBalance)
	require.Equal(t, "GENESIS", entry.PreviousHash)

	balance, err := svc.GetBalance(ctx, "brand-1")
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance.Balance)
}

func TestDepositDuplicateReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositParams{BrandID: "brand-1", Amount: 500, ReferenceID: "settle-1"})
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, DepositParams{BrandID: "brand-1", Amount: 500, ReferenceID: "settle-1"})
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))

	// the rejected replay leaves no ledger entry and no balance change
	entries, err := svc.ListTransactions(ctx, "brand-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	balance, err := svc.GetBalance(ctx, "brand-1")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance.Balance)
}

func TestChargeInsufficientFunds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositParams{BrandID: "brand-1", Amount: 400})
	require.NoError(t, err)

	_, err = svc.Charge(ctx, ChargeParams{BrandID: "brand-1", Amount: 500, OrderID: "order-1"})
	require.True(t, errutil.HasStatus(err, errutil.StatusInsufficientFunds))

	// the failed charge must leave no trace
	balance, err := svc.GetBalance(ctx, "brand-1")
	require.NoError(t, err)
	require.Equal(t, int64(400), balance.Balance)

	entries, err := svc.ListTransactions(ctx, "brand-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestChargeRefundRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositParams{BrandID: "brand-1", Amount: 1000})
	require.NoError(t, err)

	_, err = svc.Charge(ctx, ChargeParams{BrandID: "brand-1", Amount: 1000, OrderID: "order-1"})
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, "brand-1")
	require.NoError(t, err)
	require.Zero(t, balance.Balance)

	_, err = svc.Refund(ctx, RefundParams{BrandID: "brand-1", Amount: 1000, OrderID: "order-1"})
	require.NoError(t, err)

	balance, err = svc.GetBalance(ctx, "brand-1")
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance.Balance)
}

func TestLedgerConservation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositParams{BrandID: "brand-1", Amount: 5000})
	require.NoError(t, err)
	_, err = svc.Charge(ctx, ChargeParams{BrandID: "brand-1", Amount: 2000, OrderID: "order-1"})
	require.NoError(t, err)
	_, err = svc.Refund(ctx, RefundParams{BrandID: "brand-1", Amount: 500, OrderID: "order-1"})
	require.NoError(t, err)
	_, err = svc.Charge(ctx, ChargeParams{BrandID: "brand-1", Amount: 1500, OrderID: "order-2"})
	require.NoError(t, err)

	entries, err := svc.ListTransactions(ctx, "brand-1")
	require.NoError(t, err)

	var sum int64
	for _, entry := range entries {
		sum += entry.Type.Sign() * entry.Amount
	}

	balance, err := svc.GetBalance(ctx, "brand-1")
	require.NoError(t, err)
	require.Equal(t, sum, balance.Balance)
	require.Equal(t, int64(2000), balance.Balance)

	// every entry records the balance it produced
	require.Equal(t, balance.Balance, entries[len(entries)-1].ResultingBalance)
}

func TestPayoutIdempotentPerSubmission(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Payout(ctx, PayoutParams{
		OperatorID: "op-1", Amount: 850, SubmissionID: "sub-1", OrderID: "order-1",
	})
	require.NoError(t, err)

	replay, err := svc.Payout(ctx, PayoutParams{
		OperatorID: "op-1", Amount: 850, SubmissionID: "sub-1", OrderID: "order-1",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, replay.ID)

	balance, err := svc.GetBalance(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(850), balance.Balance)
	require.Equal(t, int64(850), balance.Lifetime)

	entries, err := svc.ListTransactions(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPayoutRequiresSubmissionID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Payout(context.Background(), PayoutParams{OperatorID: "op-1", Amount: 100})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))
}

func TestReversePayout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Payout(ctx, PayoutParams{
		OperatorID: "op-1", Amount: 850, SubmissionID: "sub-1", OrderID: "order-1",
	})
	require.NoError(t, err)

	entry, err := svc.ReversePayout(ctx, ReversePayoutParams{
		OperatorID: "op-1", Amount: 850, SubmissionID: "sub-1", Reason: "dispute overturned",
	})
	require.NoError(t, err)
	require.Equal(t, TypePayoutReversal, entry.Type)
	require.Zero(t, entry.ResultingBalance)

	// reversal is idempotent per submission too
	again, err := svc.ReversePayout(ctx, ReversePayoutParams{
		OperatorID: "op-1", Amount: 850, SubmissionID: "sub-1", Reason: "dispute overturned",
	})
	require.NoError(t, err)
	require.Equal(t, entry.ID, again.ID)

	// original payout is untouched in the ledger
	entries, err := svc.ListTransactions(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, TypePayout, entries[0].Type)
}

func TestReversePayoutWithoutPayout(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ReversePayout(context.Background(), ReversePayoutParams{
		OperatorID: "op-1", Amount: 850, SubmissionID: "sub-404", Reason: "nope",
	})
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestVerifyChain(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositParams{BrandID: "brand-1", Amount: 1000})
	require.NoError(t, err)
	_, err = svc.Charge(ctx, ChargeParams{BrandID: "brand-1", Amount: 400, OrderID: "order-1"})
	require.NoError(t, err)
	_, err = svc.Refund(ctx, RefundParams{BrandID: "brand-1", Amount: 400, OrderID: "order-1"})
	require.NoError(t, err)

	valid, err := svc.VerifyChain(ctx, "brand-1")
	require.NoError(t, err)
	require.True(t, valid)

	// tamper with an amount and the chain breaks
	require.NoError(t, db.Model(&WalletTransaction{}).
		Where("account_id = ? AND type = ?", "brand-1", TypeCampaignCharge).
		Update("amount", 1).Error)

	valid, err = svc.VerifyChain(ctx, "brand-1")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestAmountMustBePositive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositParams{BrandID: "brand-1", Amount: 0})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = svc.Refund(ctx, RefundParams{BrandID: "brand-1", Amount: -10})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))
}

func TestDisputeHoldMovesPayoutToPending(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Payout(ctx, PayoutParams{OperatorID: "op-1", Amount: 850, SubmissionID: "sub-1", OrderID: "order-1"})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		held, txErr := svc.HoldForDisputeInTx(ctx, tx, "sub-1")
		if txErr != nil {
			return txErr
		}
		require.Equal(t, int64(850), held)
		return nil
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, "op-1")
	require.NoError(t, err)
	require.Zero(t, balance.Balance)
	require.Equal(t, int64(850), balance.Pending)

	// the hold is a balance split, not a ledger event
	entries, err := svc.ListTransactions(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	err = db.Transaction(func(tx *gorm.DB) error {
		released, txErr := svc.ReleaseDisputeHoldInTx(ctx, tx, "sub-1")
		if txErr != nil {
			return txErr
		}
		require.Equal(t, int64(850), released)
		return nil
	})
	require.NoError(t, err)

	balance, err = svc.GetBalance(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(850), balance.Balance)
	require.Zero(t, balance.Pending)

	// releasing twice is a no-op
	err = db.Transaction(func(tx *gorm.DB) error {
		released, txErr := svc.ReleaseDisputeHoldInTx(ctx, tx, "sub-1")
		if txErr != nil {
			return txErr
		}
		require.Zero(t, released)
		return nil
	})
	require.NoError(t, err)
}

func TestDisputeHoldWithoutPayout(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		held, txErr := svc.HoldForDisputeInTx(ctx, tx, "sub-none")
		if txErr != nil {
			return txErr
		}
		require.Zero(t, held)
		return nil
	})
	require.NoError(t, err)
}
