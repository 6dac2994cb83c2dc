package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/store"
)

// AccountService manages user-created accounts. Connected accounts are
// created by reconciliation, not here.
type AccountService struct {
	store store.Store
}

// NewAccountService creates a new account service.
func NewAccountService(store store.Store) *AccountService {
	return &AccountService{store: store}
}

// CreateAccountInput carries the fields of a new user-created account.
type CreateAccountInput struct {
	Name         string
	Type         model.AccountType
	Institution  string
	BalanceCents int64
	Currency     string
}

func validAccountType(t model.AccountType) bool {
	switch t {
	case model.AccountTypeChecking, model.AccountTypeSavings, model.AccountTypeInvestment,
		model.AccountTypeCash, model.AccountTypeOther:
		return true
	}
	return false
}

// CreateAccount creates an unconnected account whose balance is derived from
// its transactions.
func (s *AccountService) CreateAccount(ctx context.Context, userID string, in CreateAccountInput) (*model.Account, error) {
	if in.Name == "" {
		return nil, invalidArgument("name is required")
	}
	if !validAccountType(in.Type) {
		return nil, invalidArgument("invalid account type")
	}
	currency := in.Currency
	if currency == "" {
		currency = "BRL"
	}

	now := time.Now()
	account := &model.Account{
		ID:            uuid.New().String(),
		UserID:        userID,
		Name:          in.Name,
		Type:          in.Type,
		Institution:   in.Institution,
		BalanceCents:  in.BalanceCents,
		Currency:      currency,
		BalanceSource: model.BalanceSourceLocal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, storeError("create account", err)
	}
	return account, nil
}

// GetAccount retrieves one account owned by the user.
func (s *AccountService) GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeError("get account", err)
	}
	if account.UserID != userID {
		return nil, notFound("account")
	}
	return account, nil
}

// ListAccounts lists the user's accounts.
func (s *AccountService) ListAccounts(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.Account, string, error) {
	accounts, nextToken, err := s.store.ListAccounts(ctx, userID, pageSize, pageToken)
	if err != nil {
		return nil, "", storeError("list accounts", err)
	}
	return accounts, nextToken, nil
}
