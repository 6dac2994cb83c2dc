package service

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/store"
)

func TestCreateAccount(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewAccountService(memStore)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "user-1", CreateAccountInput{
		Name:         "Carteira",
		Type:         model.AccountTypeCash,
		BalanceCents: 50_00,
	})
	require.NoError(t, err)
	assert.Equal(t, "BRL", account.Currency)
	assert.Equal(t, model.BalanceSourceLocal, account.BalanceSource)
	assert.False(t, account.Connected())

	stored, err := memStore.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_00), stored.BalanceCents)
}

func TestCreateAccountValidation(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewAccountService(memStore)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "user-1", CreateAccountInput{Type: model.AccountTypeCash})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = svc.CreateAccount(ctx, "user-1", CreateAccountInput{Name: "Conta", Type: "WALLET"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestGetAccountOwnership(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewAccountService(memStore)
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 0, model.BalanceSourceLocal)

	got, err := svc.GetAccount(ctx, "user-1", account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	_, err = svc.GetAccount(ctx, "user-2", account.ID)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestListAccountsPagination(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewAccountService(memStore)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedAccount(t, memStore, "user-1", 0, model.BalanceSourceLocal)
	}

	first, token, err := svc.ListAccounts(ctx, "user-1", 3, "")
	require.NoError(t, err)
	assert.Len(t, first, 3)
	require.NotEmpty(t, token)

	rest, token, err := svc.ListAccounts(ctx, "user-1", 3, token)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.Empty(t, token)
}
