package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/store"
)

func seedAccount(t *testing.T, s store.Store, userID string, balanceCents int64, source model.BalanceSource) *model.Account {
	t.Helper()
	account := &model.Account{
		ID:            uuid.New().String(),
		UserID:        userID,
		Name:          "Test Account",
		Type:          model.AccountTypeChecking,
		BalanceCents:  balanceCents,
		Currency:      "BRL",
		BalanceSource: source,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func accountBalance(t *testing.T, s store.Store, accountID string) int64 {
	t.Helper()
	account, err := s.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return account.BalanceCents
}

func TestCreateTransactionAdjustsBalance(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 100_00, model.BalanceSourceLocal)

	tests := []struct {
		name        string
		input       CreateTransactionInput
		wantBalance int64
	}{
		{
			name: "expense subtracts",
			input: CreateTransactionInput{
				Type:        model.TransactionTypeExpense,
				AmountCents: 30_00,
				Description: "Groceries",
				Date:        time.Now(),
				AccountID:   account.ID,
			},
			wantBalance: 70_00,
		},
		{
			name: "income adds",
			input: CreateTransactionInput{
				Type:        model.TransactionTypeIncome,
				AmountCents: 50_00,
				Description: "Salary",
				Date:        time.Now(),
				AccountID:   account.ID,
			},
			wantBalance: 120_00,
		},
		{
			name: "transfer subtracts",
			input: CreateTransactionInput{
				Type:        model.TransactionTypeTransfer,
				AmountCents: 20_00,
				Description: "To savings",
				Date:        time.Now(),
				AccountID:   account.ID,
			},
			wantBalance: 100_00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.CreateTransaction(ctx, "user-1", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBalance, accountBalance(t, memStore, account.ID))
		})
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateTransactionInput
	}{
		{
			name: "invalid type",
			input: CreateTransactionInput{
				Type:        "REFUND",
				AmountCents: 10_00,
				Date:        time.Now(),
			},
		},
		{
			name: "zero amount",
			input: CreateTransactionInput{
				Type:        model.TransactionTypeExpense,
				AmountCents: 0,
				Date:        time.Now(),
			},
		},
		{
			name: "negative amount",
			input: CreateTransactionInput{
				Type:        model.TransactionTypeExpense,
				AmountCents: -5_00,
				Date:        time.Now(),
			},
		},
		{
			name: "missing date",
			input: CreateTransactionInput{
				Type:        model.TransactionTypeExpense,
				AmountCents: 10_00,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.CreateTransaction(ctx, "user-1", tt.input)
			require.Error(t, err)
			assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
		})
	}
}

func TestAccountlessTransactionTouchesNoBalance(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 100_00, model.BalanceSourceLocal)

	created, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type:        model.TransactionTypeExpense,
		AmountCents: 40_00,
		Description: "Cash lunch",
		Date:        time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, created.AccountID)
	assert.Equal(t, int64(100_00), accountBalance(t, memStore, account.ID))
}

func TestProviderAccountIsNeverAdjusted(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 500_00, model.BalanceSourceProvider)

	_, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type:        model.TransactionTypeExpense,
		AmountCents: 50_00,
		Description: "Manual note against synced account",
		Date:        time.Now(),
		AccountID:   account.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500_00), accountBalance(t, memStore, account.ID))
}

func TestUpdateTransactionAmount(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 100_00, model.BalanceSourceLocal)
	created, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type:        model.TransactionTypeExpense,
		AmountCents: 30_00,
		Date:        time.Now(),
		AccountID:   account.ID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(70_00), accountBalance(t, memStore, account.ID))

	newAmount := int64(45_00)
	_, err = ledger.UpdateTransaction(ctx, "user-1", created.ID, UpdateTransactionInput{
		AmountCents: &newAmount,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55_00), accountBalance(t, memStore, account.ID))
}

func TestUpdateTransactionMovesAcrossAccounts(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	accountA := seedAccount(t, memStore, "user-1", 100_00, model.BalanceSourceLocal)
	accountB := seedAccount(t, memStore, "user-1", 200_00, model.BalanceSourceLocal)

	created, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type:        model.TransactionTypeExpense,
		AmountCents: 25_00,
		Date:        time.Now(),
		AccountID:   accountA.ID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(75_00), accountBalance(t, memStore, accountA.ID))

	_, err = ledger.UpdateTransaction(ctx, "user-1", created.ID, UpdateTransactionInput{
		AccountID: &accountB.ID,
	})
	require.NoError(t, err)

	// The move reverses A and applies to B in one unit of work.
	assert.Equal(t, int64(100_00), accountBalance(t, memStore, accountA.ID))
	assert.Equal(t, int64(175_00), accountBalance(t, memStore, accountB.ID))
}

func TestUpdateTransactionMoveUnderConcurrentWrites(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	accountA := seedAccount(t, memStore, "user-1", 1000_00, model.BalanceSourceLocal)
	accountB := seedAccount(t, memStore, "user-1", 200_00, model.BalanceSourceLocal)

	created, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type:        model.TransactionTypeExpense,
		AmountCents: 25_00,
		Date:        time.Now(),
		AccountID:   accountA.ID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(975_00), accountBalance(t, memStore, accountA.ID))

	// Race the cross-account move against unrelated creates on account A.
	// Each mutation is one atomic unit of work, so whatever the interleaving,
	// A must end up with the move fully reversed and every create applied.
	const concurrentCreates = 10
	var wg sync.WaitGroup
	errs := make(chan error, concurrentCreates+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := ledger.UpdateTransaction(ctx, "user-1", created.ID, UpdateTransactionInput{
			AccountID: &accountB.ID,
		})
		errs <- err
	}()
	for i := 0; i < concurrentCreates; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
				Type:        model.TransactionTypeExpense,
				AmountCents: 10_00,
				Date:        time.Now(),
				AccountID:   accountA.ID,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1000_00-concurrentCreates*10_00), accountBalance(t, memStore, accountA.ID))
	assert.Equal(t, int64(175_00), accountBalance(t, memStore, accountB.ID))
}

func TestUpdateTransactionDetachesAccount(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 100_00, model.BalanceSourceLocal)
	created, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type:        model.TransactionTypeExpense,
		AmountCents: 25_00,
		Date:        time.Now(),
		AccountID:   account.ID,
	})
	require.NoError(t, err)

	detached := ""
	updated, err := ledger.UpdateTransaction(ctx, "user-1", created.ID, UpdateTransactionInput{
		AccountID: &detached,
	})
	require.NoError(t, err)
	assert.Empty(t, updated.AccountID)
	assert.Equal(t, int64(100_00), accountBalance(t, memStore, account.ID))
}

func TestDeleteTransactionReversesBalance(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 100_00, model.BalanceSourceLocal)
	created, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type:        model.TransactionTypeIncome,
		AmountCents: 60_00,
		Date:        time.Now(),
		AccountID:   account.ID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(160_00), accountBalance(t, memStore, account.ID))

	require.NoError(t, ledger.DeleteTransaction(ctx, "user-1", created.ID))
	assert.Equal(t, int64(100_00), accountBalance(t, memStore, account.ID))

	_, err = ledger.GetTransaction(ctx, "user-1", created.ID)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestForeignRowsAreIndistinguishableFromMissing(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 0, model.BalanceSourceLocal)
	created, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
		Type:        model.TransactionTypeExpense,
		AmountCents: 10_00,
		Date:        time.Now(),
		AccountID:   account.ID,
	})
	require.NoError(t, err)

	_, err = ledger.GetTransaction(ctx, "user-2", created.ID)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = ledger.CreateTransaction(ctx, "user-2", CreateTransactionInput{
		Type:        model.TransactionTypeExpense,
		AmountCents: 10_00,
		Date:        time.Now(),
		AccountID:   account.ID,
	})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	err = ledger.DeleteTransaction(ctx, "user-2", created.ID)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestListTransactionsFilters(t *testing.T) {
	memStore := store.NewMemoryStore()
	ledger := NewLedgerService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 0, model.BalanceSourceLocal)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := ledger.CreateTransaction(ctx, "user-1", CreateTransactionInput{
			Type:        model.TransactionTypeExpense,
			AmountCents: int64((i + 1) * 10_00),
			Date:        base.AddDate(0, 0, i),
			AccountID:   account.ID,
		})
		require.NoError(t, err)
	}

	start := base.AddDate(0, 0, 1)
	end := base.AddDate(0, 0, 3)
	got, _, err := ledger.ListTransactions(ctx, "user-1", account.ID, &start, &end, 50, "")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, _, err = ledger.ListTransactions(ctx, "user-2", "", nil, nil, 50, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
