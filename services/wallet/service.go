package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"taskpoint/pkg/db/option"
	"taskpoint/pkg/errutil"
	"taskpoint/pkg/repository"
	"taskpoint/pkg/sequence"
)

// Service owns the escrow and credit ledger. All writes go through
// appendEntry inside a transaction holding the account's balance row, so
// concurrent charges against the same brand serialize.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	sequence sequence.Generator

	ledger  repository.Repository[WalletTransaction]
	balance repository.Repository[Balance]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Sequence sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		sequence: p.Sequence,

		ledger:  repository.ProvideStore[WalletTransaction](p.DB),
		balance: repository.ProvideStore[Balance](p.DB),
	}
}

// ComputeFee derives the platform fee from the operator payout so that
// fee / (payout + fee) >= feePercent / 100. Integer math, rounded up.
func ComputeFee(operatorPayout, feePercent int64) (int64, error) {
	if operatorPayout <= 0 {
		return 0, errutil.ValidationFailed("operator payout must be positive")
	}
	if feePercent < 0 || feePercent >= 100 {
		return 0, errutil.ValidationFailed("fee percent must be in [0, 100)")
	}
	if feePercent == 0 {
		return 0, nil
	}

	denom := 100 - feePercent
	fee := (operatorPayout*feePercent + denom - 1) / denom
	return fee, nil
}

// ComputeBrandTotalCost is the per-unit escrow amount: operator payout
// plus the platform fee on top.
func ComputeBrandTotalCost(operatorPayout, feePercent int64) (int64, error) {
	fee, err := ComputeFee(operatorPayout, feePercent)
	if err != nil {
		return 0, err
	}
	return operatorPayout + fee, nil
}

type EntryParams struct {
	AccountID      string
	AccountKind    AccountKind
	Type           TransactionType
	Amount         int64
	ReferenceID    string
	RelatedOrderID string
	Description    string
	Metadata       datatypes.JSON
}

type DepositParams struct {
	BrandID     string
	Amount      int64
	ReferenceID string
	Description string
}

// Deposit credits a brand account from the settlement gateway. The
// reference is the gateway's settlement id and duplicate references are
// rejected.
func (s *Service) Deposit(ctx context.Context, p DepositParams) (*WalletTransaction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var entry *WalletTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if p.ReferenceID != "" {
			// the duplicate check runs under the account's balance-row
			// lock, so same-reference deposits serialize
			if _, txErr := s.balance.WithTrx(tx).FindOne(ctx, &Balance{
				AccountID: p.BrandID,
			}, option.WithLockingUpdate()); txErr != nil {
				return txErr
			}
			exist, txErr := s.ledger.WithTrx(tx).FindOne(ctx, &WalletTransaction{
				Type: TypeDeposit, ReferenceID: p.ReferenceID,
			})
			if txErr != nil {
				return txErr
			}
			if exist != nil {
				zap.L().Warn("duplicate deposit reference", zap.String("reference_id", p.ReferenceID))
				return errutil.Conflict("deposit reference already processed")
			}
		}

		var txErr error
		entry, txErr = s.appendEntry(ctx, tx, EntryParams{
			AccountID:   p.BrandID,
			AccountKind: KindBrand,
			Type:        TypeDeposit,
			Amount:      p.Amount,
			ReferenceID: p.ReferenceID,
			Description: p.Description,
		})
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

type ChargeParams struct {
	BrandID     string
	Amount      int64
	OrderID     string
	Description string
}

// Charge moves escrow out of a brand account. Fails with
// InsufficientFunds when the balance cannot cover the amount.
func (s *Service) Charge(ctx context.Context, p ChargeParams) (*WalletTransaction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var entry *WalletTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.ChargeInTx(ctx, tx, p)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ChargeInTx performs a charge inside an existing transaction so the
// caller can commit it atomically with an order state change.
func (s *Service) ChargeInTx(ctx context.Context, tx *gorm.DB, p ChargeParams) (*WalletTransaction, error) {
	return s.appendEntry(ctx, tx, EntryParams{
		AccountID:      p.BrandID,
		AccountKind:    KindBrand,
		Type:           TypeCampaignCharge,
		Amount:         p.Amount,
		RelatedOrderID: p.OrderID,
		Description:    p.Description,
	})
}

type RefundParams struct {
	BrandID     string
	Amount      int64
	OrderID     string
	Description string
}

// Refund returns escrow to a brand account.
func (s *Service) Refund(ctx context.Context, p RefundParams) (*WalletTransaction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var entry *WalletTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.RefundInTx(ctx, tx, p)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) RefundInTx(ctx context.Context, tx *gorm.DB, p RefundParams) (*WalletTransaction, error) {
	return s.appendEntry(ctx, tx, EntryParams{
		AccountID:      p.BrandID,
		AccountKind:    KindBrand,
		Type:           TypeRefund,
		Amount:         p.Amount,
		RelatedOrderID: p.OrderID,
		Description:    p.Description,
	})
}

type PayoutParams struct {
	OperatorID   string
	Amount       int64
	SubmissionID string
	OrderID      string
	Metadata     datatypes.JSON
}

// Payout credits an operator for a verified submission. Idempotent per
// submission: a second call with the same submission id returns the
// original entry without writing anything.
func (s *Service) Payout(ctx context.Context, p PayoutParams) (*WalletTransaction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var entry *WalletTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.PayoutInTx(ctx, tx, p)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) PayoutInTx(ctx context.Context, tx *gorm.DB, p PayoutParams) (*WalletTransaction, error) {
	if p.SubmissionID == "" {
		return nil, errutil.ValidationFailed("submission id is required for payout")
	}

	existing, err := s.ledger.WithTrx(tx).FindOne(ctx, &WalletTransaction{
		Type: TypePayout, ReferenceID: p.SubmissionID,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		zap.L().Info("payout already recorded",
			zap.String("submission_id", p.SubmissionID),
			zap.String("transaction_id", existing.ID),
		)
		return existing, nil
	}

	return s.appendEntry(ctx, tx, EntryParams{
		AccountID:      p.OperatorID,
		AccountKind:    KindOperator,
		Type:           TypePayout,
		Amount:         p.Amount,
		ReferenceID:    p.SubmissionID,
		RelatedOrderID: p.OrderID,
		Metadata:       p.Metadata,
	})
}

type ReversePayoutParams struct {
	OperatorID   string
	Amount       int64
	SubmissionID string
	OrderID      string
	Reason       string
}

// ReversePayout debits an operator after a verified submission is
// overturned. The original payout entry stays in the ledger untouched.
func (s *Service) ReversePayout(ctx context.Context, p ReversePayoutParams) (*WalletTransaction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var entry *WalletTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.ReversePayoutInTx(ctx, tx, p)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ReversePayoutInTx(ctx context.Context, tx *gorm.DB, p ReversePayoutParams) (*WalletTransaction, error) {
	if p.SubmissionID == "" {
		return nil, errutil.ValidationFailed("submission id is required for payout reversal")
	}

	original, err := s.ledger.WithTrx(tx).FindOne(ctx, &WalletTransaction{
		Type: TypePayout, ReferenceID: p.SubmissionID,
	})
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, errutil.NotFound("no payout found for submission")
	}

	if existing, _ := s.ledger.WithTrx(tx).FindOne(ctx, &WalletTransaction{
		Type: TypePayoutReversal, ReferenceID: p.SubmissionID,
	}); existing != nil {
		return existing, nil
	}

	return s.appendEntry(ctx, tx, EntryParams{
		AccountID:      p.OperatorID,
		AccountKind:    KindOperator,
		Type:           TypePayoutReversal,
		Amount:         p.Amount,
		ReferenceID:    p.SubmissionID,
		RelatedOrderID: p.OrderID,
		Description:    p.Reason,
	})
}

// HoldForDisputeInTx moves a submission's released payout from the
// operator's available balance into pending while a dispute is open.
// Returns the held amount; zero when no payout was released for the
// submission or it was already reversed. The ledger is not touched, the
// hold is a split of the materialized balance.
func (s *Service) HoldForDisputeInTx(ctx context.Context, tx *gorm.DB, submissionID string) (int64, error) {
	payout, err := s.ledger.WithTrx(tx).FindOne(ctx, &WalletTransaction{
		Type: TypePayout, ReferenceID: submissionID,
	})
	if err != nil {
		return 0, err
	}
	if payout == nil {
		return 0, nil
	}

	reversed, err := s.ledger.WithTrx(tx).FindOne(ctx, &WalletTransaction{
		Type: TypePayoutReversal, ReferenceID: submissionID,
	})
	if err != nil {
		return 0, err
	}
	if reversed != nil {
		return 0, nil
	}

	balance, err := s.balance.WithTrx(tx).FindOne(ctx, &Balance{
		AccountID: payout.AccountID,
	}, option.WithLockingUpdate())
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, nil
	}

	updates := map[string]any{
		"balance":    balance.Balance - payout.Amount,
		"pending":    balance.Pending + payout.Amount,
		"updated_at": time.Now(),
	}
	if err := s.balance.WithTrx(tx).Update(ctx, balance.ID, &updates); err != nil {
		return 0, err
	}
	return payout.Amount, nil
}

// ReleaseDisputeHoldInTx returns a held payout to the available balance
// once the dispute is resolved. A missing hold is a no-op.
func (s *Service) ReleaseDisputeHoldInTx(ctx context.Context, tx *gorm.DB, submissionID string) (int64, error) {
	payout, err := s.ledger.WithTrx(tx).FindOne(ctx, &WalletTransaction{
		Type: TypePayout, ReferenceID: submissionID,
	})
	if err != nil || payout == nil {
		return 0, err
	}

	balance, err := s.balance.WithTrx(tx).FindOne(ctx, &Balance{
		AccountID: payout.AccountID,
	}, option.WithLockingUpdate())
	if err != nil {
		return 0, err
	}
	if balance == nil || balance.Pending < payout.Amount {
		return 0, nil
	}

	updates := map[string]any{
		"balance":    balance.Balance + payout.Amount,
		"pending":    balance.Pending - payout.Amount,
		"updated_at": time.Now(),
	}
	if err := s.balance.WithTrx(tx).Update(ctx, balance.ID, &updates); err != nil {
		return 0, err
	}
	return payout.Amount, nil
}

// appendEntry is the single write path for the ledger. It locks the
// account's balance row, verifies funds for debits, chains the entry
// hash off the account's previous entry and updates the balance.
func (s *Service) appendEntry(ctx context.Context, tx *gorm.DB, p EntryParams) (*WalletTransaction, error) {
	if p.Amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be positive")
	}

	balanceTx := s.balance.WithTrx(tx)
	ledgerTx := s.ledger.WithTrx(tx)

	balance, err := balanceTx.FindOne(ctx, &Balance{
		AccountID: p.AccountID,
	}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}

	var previousBalance int64
	if balance != nil {
		previousBalance = balance.Balance
	}

	resulting := previousBalance + p.Type.Sign()*p.Amount

	if p.Type == TypeCampaignCharge && resulting < 0 {
		zap.L().Warn("insufficient escrow balance",
			zap.String("account_id", p.AccountID),
			zap.Int64("balance", previousBalance),
			zap.Int64("amount", p.Amount),
		)
		return nil, errutil.InsufficientFunds(
			fmt.Sprintf("insufficient balance: need=%d available=%d", p.Amount, previousBalance))
	}

	previousHash := "GENESIS"
	lastEntry, err := s.getLastEntry(ctx, tx, p.AccountID)
	if err != nil {
		return nil, err
	}
	if lastEntry != nil {
		previousHash = lastEntry.Hash
	}

	code, err := s.nextTransactionCode(ctx, p.AccountID)
	if err != nil {
		zap.L().Error("failed to generate transaction code", zap.Error(err))
		return nil, err
	}

	entry := NewWalletTransaction(TransactionParams{
		TransactionID:   s.node.Generate().String(),
		AccountID:       p.AccountID,
		AccountKind:     p.AccountKind,
		Type:            p.Type,
		Amount:          p.Amount,
		ResultingBal:    resulting,
		TransactionCode: code,
		ReferenceID:     p.ReferenceID,
		RelatedOrderID:  p.RelatedOrderID,
		Description:     p.Description,
		PreviousHash:    previousHash,
		Metadata:        p.Metadata,
	})
	entry.CreatedAt = time.Now()
	entry.Hash = entry.GenerateHash()

	if err := ledgerTx.Create(ctx, entry); err != nil {
		return nil, err
	}

	var lifetimeDelta int64
	if p.AccountKind == KindOperator && p.Type == TypePayout {
		lifetimeDelta = p.Amount
	}

	if balance == nil {
		if err := balanceTx.Create(ctx, &Balance{
			ID:        s.node.Generate().String(),
			AccountID: p.AccountID,
			Kind:      p.AccountKind,
			Balance:   resulting,
			Lifetime:  lifetimeDelta,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}); err != nil {
			return nil, err
		}
	} else {
		updates := map[string]any{
			"balance":    resulting,
			"updated_at": time.Now(),
		}
		if lifetimeDelta != 0 {
			updates["lifetime"] = gorm.Expr("lifetime + ?", lifetimeDelta)
		}
		if err := balanceTx.Update(ctx, balance.ID, &updates); err != nil {
			return nil, err
		}
	}

	return entry, nil
}

func (s *Service) getLastEntry(ctx context.Context, tx *gorm.DB, accountID string) (*WalletTransaction, error) {
	return s.ledger.WithTrx(tx).FindOne(ctx, &WalletTransaction{
		AccountID: accountID,
	}, option.WithSortBy(
		option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow: map[string]bool{
				"created_at": true,
			},
		},
	), option.WithLockingUpdate())
}

func (s *Service) nextTransactionCode(ctx context.Context, accountID string) (string, error) {
	if s.sequence != nil {
		code, err := s.sequence.NextTransactionCode(ctx, accountID)
		if err == nil {
			return code, nil
		}
		zap.L().Warn("sequence generator unavailable, using fallback code", zap.Error(err))
	}
	return GenerateTransactionCode()
}

// GetBalance returns the current balance row for an account, or a zero
// snapshot when the account has no ledger history.
func (s *Service) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	balance, err := s.balance.FindOne(ctx, &Balance{AccountID: accountID})
	if err != nil {
		zap.L().Error("failed to query balance", zap.Error(err))
		return nil, err
	}
	if balance == nil {
		return &Balance{AccountID: accountID}, nil
	}
	return balance, nil
}

// ListTransactions returns an account's entries, oldest first.
func (s *Service) ListTransactions(ctx context.Context, accountID string) ([]*WalletTransaction, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	return s.ledger.Find(ctx, &WalletTransaction{
		AccountID: accountID,
	}, option.WithSortBy(
		option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow: map[string]bool{
				"created_at": true,
			},
		},
	))
}

// VerifyChain recomputes an account's hash chain from genesis. Any
// mutated, reordered or missing entry breaks verification.
func (s *Service) VerifyChain(ctx context.Context, accountID string) (bool, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	entries, err := s.ListTransactions(ctx, accountID)
	if err != nil {
		return false, err
	}

	lastHash := "GENESIS"
	for _, entry := range entries {
		if entry.PreviousHash != lastHash {
			return false, nil
		}
		if entry.Hash != entry.GenerateHash() {
			return false, nil
		}
		lastHash = entry.Hash
	}
	return true, nil
}
