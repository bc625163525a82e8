package wallet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// TransactionType enumerates ledger entry kinds. Deposits come from the
// external settlement gateway; everything else is engine-originated.
type TransactionType string

const (
	TypeDeposit        TransactionType = "deposit"
	TypeCampaignCharge TransactionType = "campaign_charge"
	TypeRefund         TransactionType = "refund"
	TypePayout         TransactionType = "payout"
	TypePayoutReversal TransactionType = "payout_reversal"
)

// Sign returns the signed direction of the entry on its account balance.
func (t TransactionType) Sign() int64 {
	switch t {
	case TypeCampaignCharge, TypePayoutReversal:
		return -1
	case TypeDeposit, TypeRefund, TypePayout:
		return +1
	default:
		return 0
	}
}

// AccountKind separates brand escrow accounts from operator credit
// accounts in the shared ledger table.
type AccountKind string

const (
	KindBrand    AccountKind = "brand"
	KindOperator AccountKind = "operator"
)

// WalletTransaction is an append-only ledger entry. Entries are
// hash-chained per account; they are never mutated or deleted, and the
// account balance is always the sum of signed amounts.
type WalletTransaction struct {
	ID               string          `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	AccountID        string          `gorm:"column:account_id;index;not null"`
	AccountKind      AccountKind     `gorm:"column:account_kind;type:varchar(20);not null"`
	Type             TransactionType `gorm:"column:type;type:varchar(30);not null"`
	Amount           int64           `gorm:"column:amount;not null"`
	ResultingBalance int64           `gorm:"column:resulting_balance;not null"`
	TransactionCode  string          `gorm:"column:transaction_code;index"`
	ReferenceID      string          `gorm:"column:reference_id;index"`
	RelatedOrderID   string          `gorm:"column:related_order_id;index"`
	Description      string          `gorm:"column:description;type:text"`
	PreviousHash     string          `gorm:"column:previous_hash"`
	Hash             string          `gorm:"column:hash"`
	Metadata         datatypes.JSON  `gorm:"column:metadata;type:jsonb"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

// Balance is the materialized per-account balance. Pending carries the
// slice of an operator's credits held while a payout is under dispute;
// Lifetime is the operator's total earned. Both stay zero for brands.
type Balance struct {
	ID        string      `gorm:"column:id;primaryKey;type:char(26)"`
	AccountID string      `gorm:"column:account_id;uniqueIndex;not null"`
	Kind      AccountKind `gorm:"column:kind;type:varchar(20);not null"`
	Balance   int64       `gorm:"column:balance;not null"`
	Pending   int64       `gorm:"column:pending;not null"`
	Lifetime  int64       `gorm:"column:lifetime;not null"`
	CreatedAt time.Time   `gorm:"column:created_at"`
	UpdatedAt time.Time   `gorm:"column:updated_at"`
}

func (Balance) TableName() string { return "wallet_balances" }

type TransactionParams struct {
	TransactionID   string
	AccountID       string
	AccountKind     AccountKind
	Type            TransactionType
	Amount          int64
	ResultingBal    int64
	TransactionCode string
	ReferenceID     string
	RelatedOrderID  string
	Description     string
	PreviousHash    string
	Metadata        datatypes.JSON
}

func NewWalletTransaction(p TransactionParams) *WalletTransaction {
	return &WalletTransaction{
		ID:               p.TransactionID,
		AccountID:        p.AccountID,
		AccountKind:      p.AccountKind,
		Type:             p.Type,
		Amount:           p.Amount,
		ResultingBalance: p.ResultingBal,
		TransactionCode:  p.TransactionCode,
		ReferenceID:      p.ReferenceID,
		RelatedOrderID:   p.RelatedOrderID,
		Description:      p.Description,
		PreviousHash:     p.PreviousHash,
		Metadata:         p.Metadata,
	}
}

func (m *WalletTransaction) HashFields() map[string]string {
	return map[string]string{
		"id":                m.ID,
		"account_id":        m.AccountID,
		"account_kind":      string(m.AccountKind),
		"type":              string(m.Type),
		"amount":            fmt.Sprintf("%d", m.Amount),
		"resulting_balance": fmt.Sprintf("%d", m.ResultingBalance),
		"transaction_code":  m.TransactionCode,
		"reference_id":      m.ReferenceID,
		"related_order_id":  m.RelatedOrderID,
		"description":       m.Description,
		"created_at":        m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":     m.PreviousHash,
	}
}

func (m *WalletTransaction) GenerateHash() string {
	fields := m.HashFields()
	var keys []string
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

// GenerateTransactionCode builds a YYYYMMDD-XXXXXX fallback code used when
// the redis sequence generator is unavailable.
func GenerateTransactionCode() (string, error) {
	datePart := time.Now().Format("20060102")

	r := make([]byte, 3)
	_, err := rand.Read(r)
	if err != nil {
		return "", err
	}
	randomPart := strings.ToUpper(fmt.Sprintf("%x", r))

	return fmt.Sprintf("%s-%s", datePart, randomPart), nil
}
