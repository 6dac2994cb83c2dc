package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/store"
)

// LedgerService owns the balance invariant: every transaction mutation it
// performs adjusts the affected local-balance accounts by the transaction's
// signed delta, inside the same storage transaction as the row mutation.
type LedgerService struct {
	store store.Store
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store store.Store) *LedgerService {
	return &LedgerService{store: store}
}

// CreateTransactionInput carries the fields of a new transaction.
type CreateTransactionInput struct {
	Type        model.TransactionType
	Category    string
	AmountCents int64
	Description string
	Date        time.Time
	AccountID   string
	CardID      string
	IsPending   bool
}

// UpdateTransactionInput carries a partial update; nil fields are left
// untouched. AccountID may be set to the empty string to detach the
// transaction from its account.
type UpdateTransactionInput struct {
	Type        *model.TransactionType
	Category    *string
	AmountCents *int64
	Description *string
	Date        *time.Time
	AccountID   *string
	CardID      *string
	IsPending   *bool
}

func validTransactionType(t model.TransactionType) bool {
	switch t {
	case model.TransactionTypeIncome, model.TransactionTypeExpense, model.TransactionTypeTransfer:
		return true
	}
	return false
}

// CreateTransaction validates and inserts a transaction, adjusting its
// account's balance in the same unit of work. Accountless transactions are
// valid and touch no balance.
func (s *LedgerService) CreateTransaction(ctx context.Context, userID string, in CreateTransactionInput) (*model.Transaction, error) {
	if !validTransactionType(in.Type) {
		return nil, invalidArgument("type must be INCOME, EXPENSE or TRANSFER")
	}
	if in.AmountCents <= 0 {
		return nil, invalidArgument("amount must be positive")
	}
	if in.Date.IsZero() {
		return nil, invalidArgument("date is required")
	}

	now := time.Now()
	t := &model.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        in.Type,
		Category:    in.Category,
		AmountCents: in.AmountCents,
		Description: in.Description,
		Date:        in.Date,
		AccountID:   in.AccountID,
		CardID:      in.CardID,
		IsPending:   in.IsPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	adjustments, err := s.balanceAdjustments(ctx, userID, nil, t)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateTransaction(ctx, t, adjustments); err != nil {
		return nil, storeError("create transaction", err)
	}
	return t, nil
}

// UpdateTransaction applies a partial update. The original row's balance
// effect is reversed against its original account and the new row's effect is
// applied against its (possibly different) account, both inside one storage
// transaction, so a cross-account move adjusts exactly two balances and a
// same-account edit nets into one.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, transactionID string, in UpdateTransactionInput) (*model.Transaction, error) {
	old, err := s.getOwnedTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}

	updated := *old
	if in.Type != nil {
		updated.Type = *in.Type
	}
	if in.Category != nil {
		updated.Category = *in.Category
	}
	if in.AmountCents != nil {
		updated.AmountCents = *in.AmountCents
	}
	if in.Description != nil {
		updated.Description = *in.Description
	}
	if in.Date != nil {
		updated.Date = *in.Date
	}
	if in.AccountID != nil {
		updated.AccountID = *in.AccountID
	}
	if in.CardID != nil {
		updated.CardID = *in.CardID
	}
	if in.IsPending != nil {
		updated.IsPending = *in.IsPending
	}
	updated.UpdatedAt = time.Now()

	if !validTransactionType(updated.Type) {
		return nil, invalidArgument("type must be INCOME, EXPENSE or TRANSFER")
	}
	if updated.AmountCents <= 0 {
		return nil, invalidArgument("amount must be positive")
	}

	adjustments, err := s.balanceAdjustments(ctx, userID, old, &updated)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTransaction(ctx, &updated, adjustments); err != nil {
		return nil, storeError("update transaction", err)
	}
	return &updated, nil
}

// DeleteTransaction reverses the row's balance effect and removes it, as one
// unit of work.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	old, err := s.getOwnedTransaction(ctx, userID, transactionID)
	if err != nil {
		return err
	}

	adjustments, err := s.balanceAdjustments(ctx, userID, old, nil)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, transactionID, adjustments); err != nil {
		return storeError("delete transaction", err)
	}
	return nil
}

// GetTransaction retrieves a single transaction owned by the user.
func (s *LedgerService) GetTransaction(ctx context.Context, userID, transactionID string) (*model.Transaction, error) {
	return s.getOwnedTransaction(ctx, userID, transactionID)
}

// ListTransactions lists the user's transactions, optionally filtered by
// account and date range.
func (s *LedgerService) ListTransactions(ctx context.Context, userID, accountID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	transactions, nextToken, err := s.store.ListTransactions(ctx, userID, accountID, startDate, endDate, pageSize, pageToken)
	if err != nil {
		return nil, "", storeError("list transactions", err)
	}
	return transactions, nextToken, nil
}

func (s *LedgerService) getOwnedTransaction(ctx context.Context, userID, transactionID string) (*model.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("transaction")
	}
	if err != nil {
		return nil, storeError("get transaction", err)
	}
	// A row belonging to another user is indistinguishable from a missing one.
	if t.UserID != userID {
		return nil, notFound("transaction")
	}
	return t, nil
}

// balanceAdjustments derives the delta list for one mutation: old == nil for
// a create, updated == nil for a delete. Reversal and reapplication stay
// separate entries when the account changed and collapse into one net entry
// when it did not. Accounts whose balance is provider-authoritative are never
// adjusted; overwriting their cached balance is the reconciler's job.
func (s *LedgerService) balanceAdjustments(ctx context.Context, userID string, old, updated *model.Transaction) ([]store.BalanceAdjustment, error) {
	deltas := make(map[string]int64)
	order := make([]string, 0, 2)

	add := func(accountID string, delta int64) {
		if _, seen := deltas[accountID]; !seen {
			order = append(order, accountID)
		}
		deltas[accountID] += delta
	}

	if old != nil && old.AccountID != "" {
		account, err := s.getOwnedAccount(ctx, userID, old.AccountID)
		if err != nil {
			return nil, err
		}
		if account.BalanceSource == model.BalanceSourceLocal {
			add(account.ID, -old.SignedAmountCents())
		}
	}
	if updated != nil && updated.AccountID != "" {
		account, err := s.getOwnedAccount(ctx, userID, updated.AccountID)
		if err != nil {
			return nil, err
		}
		if account.BalanceSource == model.BalanceSourceLocal {
			add(account.ID, updated.SignedAmountCents())
		}
	}

	adjustments := make([]store.BalanceAdjustment, 0, len(order))
	for _, accountID := range order {
		if deltas[accountID] == 0 {
			continue
		}
		adjustments = append(adjustments, store.BalanceAdjustment{
			AccountID:  accountID,
			DeltaCents: deltas[accountID],
		})
	}
	return adjustments, nil
}

func (s *LedgerService) getOwnedAccount(ctx context.Context, userID, accountID string) (*model.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("account")
	}
	if err != nil {
		return nil, storeError("get account", err)
	}
	if account.UserID != userID {
		return nil, notFound("account")
	}
	return account, nil
}
