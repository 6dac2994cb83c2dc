// Package model holds the domain types shared by the store and service layers.
package model

import "time"

// AccountType classifies an account.
type AccountType string

const (
	AccountTypeChecking   AccountType = "CHECKING"
	AccountTypeSavings    AccountType = "SAVINGS"
	AccountTypeInvestment AccountType = "INVESTMENT"
	AccountTypeCash       AccountType = "CASH"
	AccountTypeOther      AccountType = "OTHER"
)

// BalanceSource states who owns an account's cached balance.
//
// Local accounts derive their balance from the signed sum of attributed
// transactions and are adjusted by the ledger on every mutation. Provider
// accounts take their balance verbatim from the aggregator and are never
// locally adjusted.
type BalanceSource string

const (
	BalanceSourceLocal    BalanceSource = "LOCAL"
	BalanceSourceProvider BalanceSource = "PROVIDER"
)

// TransactionType determines the sign a transaction applies to its account
// balance: INCOME adds, EXPENSE and TRANSFER subtract.
type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "INCOME"
	TransactionTypeExpense  TransactionType = "EXPENSE"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// ConnectionStatus is the state of a bank connection.
type ConnectionStatus string

const (
	ConnectionStatusActive       ConnectionStatus = "ACTIVE"
	ConnectionStatusUpdating     ConnectionStatus = "UPDATING"
	ConnectionStatusLoginError   ConnectionStatus = "LOGIN_ERROR"
	ConnectionStatusOutdated     ConnectionStatus = "OUTDATED"
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Account is a user-owned account carrying a cached balance in cents.
type Account struct {
	ID                string
	UserID            string
	Name              string
	Type              AccountType
	Institution       string
	BalanceCents      int64
	Currency          string
	BalanceSource     BalanceSource
	ConnectionID      string
	ExternalAccountID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Connected reports whether the account is currently owned by a bank connection.
func (a *Account) Connected() bool {
	return a.ConnectionID != ""
}

// Transaction is a single posting. AmountCents is always positive; the sign
// applied to the account balance is implied by Type. AccountID may be empty,
// in which case the row affects no balance.
type Transaction struct {
	ID                    string
	UserID                string
	Type                  TransactionType
	Category              string
	AmountCents           int64
	Description           string
	Date                  time.Time
	AccountID             string
	CardID                string
	ExternalTransactionID string
	InstallmentGroupID    string
	CurrentInstallment    int32
	TotalInstallments     int32
	IsPending             bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SignedAmountCents returns the delta this transaction applies to its
// account balance.
func (t *Transaction) SignedAmountCents() int64 {
	if t.Type == TransactionTypeIncome {
		return t.AmountCents
	}
	return -t.AmountCents
}

// InstallmentGroup anchors the N derived transaction rows of one
// multi-installment purchase. It never carries a balance itself.
type InstallmentGroup struct {
	ID           string
	UserID       string
	Description  string
	TotalCents   int64
	Installments int32
	StartDate    time.Time
	CardID       string
	CreatedAt    time.Time
}

// BankConnection is the aggregator-side handle for one authorized link to a
// financial institution. ItemID is the provider's connection identifier and
// is unique across connections.
type BankConnection struct {
	ID            string
	UserID        string
	Provider      string
	ConnectorName string
	ItemID        string
	Status        ConnectionStatus
	LastError     string
	LastSyncAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SyncAllowed reports whether a manual sync may be requested in the current
// status. LOGIN_ERROR and DISCONNECTED require user re-authorization, and an
// in-flight UPDATING sync must not be interleaved with a second one.
func (c *BankConnection) SyncAllowed() bool {
	switch c.Status {
	case ConnectionStatusActive, ConnectionStatusOutdated:
		return true
	default:
		return false
	}
}
