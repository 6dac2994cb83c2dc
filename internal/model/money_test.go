package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentsFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{1523.47, 152347},
		{-120.50, -12050},
		{0.005, 1},
		{-0.005, -1},
		{19.999, 2000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CentsFromFloat(tt.in), "CentsFromFloat(%v)", tt.in)
	}
}

func TestCentsFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1234.56", 123456, false},
		{"  45.90 ", 4590, false},
		{"-12.00", -1200, false},
		{"100", 10000, false},
		{"0.1", 10, false},
		{"10.001", 0, true},
		{"ten", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := CentsFromString(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "CentsFromString(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "CentsFromString(%q)", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "1234.56", FormatCents(123456))
	assert.Equal(t, "-0.05", FormatCents(-5))
	assert.Equal(t, "0.00", FormatCents(0))
}

func TestSplitInstallments(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		count int32
		want  []int64
	}{
		{name: "even split", total: 90000, count: 3, want: []int64{30000, 30000, 30000}},
		{name: "remainder on last", total: 100000, count: 3, want: []int64{33333, 33333, 33334}},
		{name: "two installments", total: 101, count: 2, want: []int64{50, 51}},
		{name: "ten installments", total: 99999, count: 10, want: []int64{9999, 10000, 10000, 10000, 10000, 10000, 10000, 10000, 10000, 10000}},
		{name: "one cent each", total: 3, count: 3, want: []int64{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitInstallments(tt.total, tt.count)
			assert.Equal(t, tt.want, got)

			var sum int64
			for _, v := range got {
				sum += v
				assert.Positive(t, v)
			}
			assert.Equal(t, tt.total, sum)
		})
	}
}

// Small totals spread over many installments must never round a row down to
// zero or flip it negative.
func TestSplitInstallmentsKeepsEveryRowPositive(t *testing.T) {
	tests := []struct {
		total int64
		count int32
	}{
		{total: 150, count: 100},
		{total: 101, count: 100},
		{total: 100, count: 100},
		{total: 5000, count: 100},
	}

	for _, tt := range tests {
		got := SplitInstallments(tt.total, tt.count)
		require.Len(t, got, int(tt.count))

		var sum int64
		for _, v := range got {
			assert.Positive(t, v, "SplitInstallments(%d, %d)", tt.total, tt.count)
			sum += v
		}
		assert.Equal(t, tt.total, sum)
	}
}

func TestSignedAmountCents(t *testing.T) {
	income := &Transaction{Type: TransactionTypeIncome, AmountCents: 500}
	expense := &Transaction{Type: TransactionTypeExpense, AmountCents: 500}
	transfer := &Transaction{Type: TransactionTypeTransfer, AmountCents: 500}

	assert.Equal(t, int64(500), income.SignedAmountCents())
	assert.Equal(t, int64(-500), expense.SignedAmountCents())
	assert.Equal(t, int64(-500), transfer.SignedAmountCents())
}

func TestSyncAllowed(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   bool
	}{
		{ConnectionStatusActive, true},
		{ConnectionStatusOutdated, true},
		{ConnectionStatusUpdating, false},
		{ConnectionStatusLoginError, false},
		{ConnectionStatusDisconnected, false},
	}

	for _, tt := range tests {
		c := &BankConnection{Status: tt.status}
		assert.Equal(t, tt.want, c.SyncAllowed(), "status %s", tt.status)
	}
}
