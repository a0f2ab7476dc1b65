package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	MaxSourceNameLength  = 100
	MaxDescriptionLength = 255
)

type (
	TransactionType string

	Source struct {
		ID             int64           `json:"id"`
		Name           string          `json:"name"`
		InitialBalance decimal.Decimal `json:"initial_balance"`
		CreatedAt      time.Time       `json:"created_at"`
		ArchivedAt     *time.Time      `json:"archived_at,omitempty"`
	}

	// SourceBalance is a source together with its projected balance.
	SourceBalance struct {
		Source
		Balance decimal.Decimal `json:"balance"`
	}

	NewSource struct {
		Name           string
		InitialBalance decimal.Decimal
	}

	// Transaction is a single ledger entry. Transfer legs are transactions
	// with a non-empty TransferID and the reserved transfer category.
	Transaction struct {
		ID             int64           `json:"id"`
		Type           TransactionType `json:"type"`
		Description    string          `json:"description"`
		Amount         decimal.Decimal `json:"amount"`
		Category       string          `json:"category"`
		SourceID       int64           `json:"source_id"`
		SourceName     string          `json:"source_name,omitempty"`
		TransferID     string          `json:"transfer_id,omitempty"`
		OccurredAt     time.Time       `json:"date"`
		IdempotencyKey string          `json:"-"`
	}

	Transfer struct {
		ID             string          `json:"id"`
		FromSourceID   int64           `json:"from_source_id"`
		ToSourceID     int64           `json:"to_source_id"`
		Amount         decimal.Decimal `json:"amount"`
		Description    string          `json:"description"`
		OccurredAt     time.Time       `json:"date"`
		Legs           []Transaction   `json:"legs,omitempty"`
		IdempotencyKey string          `json:"-"`
	}

	// BalanceSnapshot caches a folded balance up to and including LastEntryID.
	BalanceSnapshot struct {
		SourceID    int64
		Balance     decimal.Decimal
		LastEntryID int64
		ComputedAt  time.Time
	}

	TransactionFilter struct {
		SourceID int64 // 0 means all sources
		From     time.Time
		To       time.Time
		Limit    int
	}
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Signed returns the amount with the sign it contributes to its source balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// IsTransferLeg reports whether the entry is one side of a transfer.
func (t Transaction) IsTransferLeg() bool {
	return t.TransferID != ""
}

func (s Source) Archived() bool {
	return s.ArchivedAt != nil
}

func (n NewSource) Validate() error {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return ErrInvalidSourceName
	}
	if len(name) > MaxSourceNameLength {
		return ErrInvalidSourceName
	}
	return ValidateBalance(n.InitialBalance)
}

// Validate checks a user-created transaction in the order amount, category,
// description. Source existence is checked by the caller against the store.
func (t Transaction) Validate() error {
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if !CategoryAllowed(t.Type, t.Category) {
		return ErrInvalidCategory
	}
	return ValidateDescription(t.Description)
}

func ValidateDescription(desc string) error {
	if len(strings.TrimSpace(desc)) == 0 {
		return ErrInvalidDescription
	}
	if len(desc) > MaxDescriptionLength {
		return ErrInvalidDescription
	}
	return nil
}

// Validate checks amount, the distinct-source rule and the optional
// description of a transfer.
func (t Transfer) Validate() error {
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if t.FromSourceID == t.ToSourceID {
		return ErrSameSourceTransfer
	}
	if len(t.Description) > MaxDescriptionLength {
		return ErrInvalidDescription
	}
	return nil
}

// TransferLegs builds the outgoing and incoming entries of a transfer. The
// legs share the transfer id and carry the reserved transfer category.
func TransferLegs(t Transfer, from, to Source) (out, in Transaction) {
	var suffix string
	if d := strings.TrimSpace(t.Description); d != "" {
		suffix = ": " + d
	}
	out = Transaction{
		Type:        Expense,
		Description: "Transferencia a " + to.Name + suffix,
		Amount:      t.Amount,
		Category:    TransferCategory,
		SourceID:    from.ID,
		SourceName:  from.Name,
		TransferID:  t.ID,
		OccurredAt:  t.OccurredAt,
	}
	in = Transaction{
		Type:        Income,
		Description: "Transferencia desde " + from.Name + suffix,
		Amount:      t.Amount,
		Category:    TransferCategory,
		SourceID:    to.ID,
		SourceName:  to.Name,
		TransferID:  t.ID,
		OccurredAt:  t.OccurredAt,
	}
	return out, in
}
