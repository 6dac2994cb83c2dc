package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/store"
)

// InstallmentCategory is the category stamped on every derived installment
// row.
const InstallmentCategory = "Parcelado"

// InstallmentService expands a multi-installment purchase into its group
// anchor and per-month transaction rows.
type InstallmentService struct {
	store store.Store
}

// NewInstallmentService creates a new installment service.
func NewInstallmentService(store store.Store) *InstallmentService {
	return &InstallmentService{store: store}
}

// CreateInstallmentInput declares one installment purchase. AccountID is
// optional: card-only installments affect no account balance.
type CreateInstallmentInput struct {
	CardID            string
	Description       string
	TotalCents        int64
	TotalInstallments int32
	StartDate         time.Time
	AccountID         string
}

// CreateInstallmentResult is the created group and its derived rows.
type CreateInstallmentResult struct {
	Group        *model.InstallmentGroup
	Transactions []*model.Transaction
}

// CreateInstallmentPurchase derives TotalInstallments transaction rows, one
// calendar month apart, from a single purchase declaration and inserts them
// with the group anchor as one batch. Amounts come from
// model.SplitInstallments: every row is positive and the rows always sum to
// the declared total, with the trailing installments carrying the remainder
// cent.
func (s *InstallmentService) CreateInstallmentPurchase(ctx context.Context, userID string, in CreateInstallmentInput) (*CreateInstallmentResult, error) {
	if in.CardID == "" {
		return nil, invalidArgument("card is required")
	}
	if in.TotalCents <= 0 {
		return nil, invalidArgument("total value must be positive")
	}
	if in.TotalInstallments < 2 {
		return nil, invalidArgument("installment count must be at least 2")
	}
	// Below one cent per installment the split cannot keep every row positive.
	if in.TotalCents < int64(in.TotalInstallments) {
		return nil, invalidArgument("total value must be at least one cent per installment")
	}
	if in.StartDate.IsZero() {
		return nil, invalidArgument("start date is required")
	}

	now := time.Now()
	group := &model.InstallmentGroup{
		ID:           uuid.New().String(),
		UserID:       userID,
		Description:  in.Description,
		TotalCents:   in.TotalCents,
		Installments: in.TotalInstallments,
		StartDate:    in.StartDate,
		CardID:       in.CardID,
		CreatedAt:    now,
	}

	amounts := model.SplitInstallments(in.TotalCents, in.TotalInstallments)
	rows := make([]*model.Transaction, 0, len(amounts))
	var adjustments []store.BalanceAdjustment
	var totalDelta int64

	for i, amountCents := range amounts {
		row := &model.Transaction{
			ID:                 uuid.New().String(),
			UserID:             userID,
			Type:               model.TransactionTypeExpense,
			Category:           InstallmentCategory,
			AmountCents:        amountCents,
			Description:        in.Description,
			Date:               in.StartDate.AddDate(0, i, 0),
			AccountID:          in.AccountID,
			CardID:             in.CardID,
			InstallmentGroupID: group.ID,
			CurrentInstallment: int32(i + 1),
			TotalInstallments:  in.TotalInstallments,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		rows = append(rows, row)
		totalDelta += row.SignedAmountCents()
	}

	if in.AccountID != "" {
		account, err := s.store.GetAccount(ctx, in.AccountID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("account")
		}
		if err != nil {
			return nil, storeError("get account", err)
		}
		if account.UserID != userID {
			return nil, notFound("account")
		}
		if account.BalanceSource == model.BalanceSourceLocal {
			adjustments = append(adjustments, store.BalanceAdjustment{
				AccountID:  account.ID,
				DeltaCents: totalDelta,
			})
		}
	}

	if err := s.store.CreateInstallmentPurchase(ctx, group, rows, adjustments); err != nil {
		return nil, storeError("create installment purchase", err)
	}
	return &CreateInstallmentResult{Group: group, Transactions: rows}, nil
}
