package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/store"
)

func TestImportTransactionsPartialSuccess(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewImportService(NewLedgerService(memStore))
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 0, model.BalanceSourceLocal)

	rows := []ImportRow{
		{Date: "2026-01-02", Description: "Market", Amount: "45.90", AccountID: account.ID},
		{Date: "2026-01-03", Description: "Salary", Amount: "3200.00", Type: "INCOME", AccountID: account.ID},
		{Date: "2026-01-04", Description: "Refund gone wrong", Amount: "-12.00", AccountID: account.ID},
		{Date: "2026-01-05", Description: "Bus", Amount: "4.40", AccountID: account.ID},
		{Date: "2026-01-06", Description: "Coffee", Amount: "8.50", Category: "Food", AccountID: account.ID},
	}

	result, err := svc.ImportTransactions(ctx, "user-1", rows)
	require.NoError(t, err)
	assert.Equal(t, int32(4), result.SuccessCount)
	assert.Equal(t, int32(1), result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)

	// The four committed rows stay committed despite row 3 failing.
	assert.Equal(t, int64(3200_00-45_90-4_40-8_50), accountBalance(t, memStore, account.ID))

	got, _, err := memStore.ListTransactions(ctx, "user-1", account.ID, nil, nil, 50, "")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestImportTransactionsRowValidation(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewImportService(NewLedgerService(memStore))
	ctx := context.Background()

	rows := []ImportRow{
		{Date: "02/01/2026", Description: "bad date", Amount: "10.00"},
		{Date: "2026-01-02", Description: "bad amount", Amount: "ten"},
		{Date: "2026-01-02", Description: "sub-cent precision", Amount: "10.001"},
		{Date: "2026-01-02", Description: "bad type", Amount: "10.00", Type: "REFUND"},
	}

	result, err := svc.ImportTransactions(ctx, "user-1", rows)
	require.NoError(t, err)
	assert.Equal(t, int32(0), result.SuccessCount)
	assert.Equal(t, int32(4), result.FailedCount)
	assert.Len(t, result.Errors, 4)
}

func TestImportCSV(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewImportService(NewLedgerService(memStore))
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 0, model.BalanceSourceLocal)

	csvData := strings.Join([]string{
		"date,description,amount,type,category",
		"2026-01-02,Market,45.90,EXPENSE,Food",
		"2026-01-03,Salary,3200.00,INCOME",
		"2026-01-04,Bus,4.40",
	}, "\n")

	result, err := svc.ImportCSV(ctx, "user-1", account.ID, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, int32(3), result.SuccessCount)
	assert.Equal(t, int32(0), result.FailedCount)
	assert.Equal(t, int64(3200_00-45_90-4_40), accountBalance(t, memStore, account.ID))
}

func TestImportCSVWithoutHeader(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewImportService(NewLedgerService(memStore))
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 0, model.BalanceSourceLocal)

	csvData := "2026-01-02,Market,45.90\n2026-01-03,Bus,4.40\n"
	result, err := svc.ImportCSV(ctx, "user-1", account.ID, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, int32(2), result.SuccessCount)
}

func TestImportCSVCountsMalformedFirstDataRow(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewImportService(NewLedgerService(memStore))
	ctx := context.Background()

	account := seedAccount(t, memStore, "user-1", 0, model.BalanceSourceLocal)

	// No header: the first record has a bad date but a parseable amount, so
	// it is a data row and must surface in FailedCount, not be skipped as a
	// header line.
	csvData := "02/01/2026,Market,45.90\n2026-01-03,Bus,4.40\n"
	result, err := svc.ImportCSV(ctx, "user-1", account.ID, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, int32(1), result.SuccessCount)
	assert.Equal(t, int32(1), result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Row)
}

func TestImportCSVMalformed(t *testing.T) {
	memStore := store.NewMemoryStore()
	svc := NewImportService(NewLedgerService(memStore))
	ctx := context.Background()

	_, err := svc.ImportCSV(ctx, "user-1", "acc-1", strings.NewReader("only,two\ncolumns\n"))
	require.Error(t, err)
}
