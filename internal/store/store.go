package store

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/abreulima/finsync/internal/model"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// Sentinel errors returned by Store implementations. The service layer maps
// these onto the caller-facing error taxonomy.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSyncInProgress is returned by ClaimConnectionSync when the
	// connection is already UPDATING.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrSyncNotAllowed is returned by ClaimConnectionSync when the
	// connection requires user re-authorization (LOGIN_ERROR) or has been
	// disconnected.
	ErrSyncNotAllowed = errors.New("connection requires re-authorization")
	// ErrDuplicateItemID is returned when creating a connection whose
	// provider item ID is already registered.
	ErrDuplicateItemID = errors.New("item id already registered")
)

// BalanceAdjustment is one signed delta against one account's cached balance.
// A ledger mutation carries zero or more adjustments; the store applies all of
// them and the row mutation in a single atomic unit of work.
type BalanceAdjustment struct {
	AccountID  string
	DeltaCents int64
}

// Store defines the persistence operations used by the services.
//
// Every transaction-row mutation that carries adjustments is atomic: either
// the row change and every balance delta commit together, or none do. If any
// adjustment references a missing account the whole mutation fails.
type Store interface {
	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	UpdateAccount(ctx context.Context, account *model.Account) error
	ListAccounts(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.Account, string, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, t *model.Transaction, adjustments []BalanceAdjustment) error
	GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, t *model.Transaction, adjustments []BalanceAdjustment) error
	DeleteTransaction(ctx context.Context, transactionID string, adjustments []BalanceAdjustment) error
	ListTransactions(ctx context.Context, userID, accountID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Transaction, string, error)

	// Installment operations. The group anchor and all derived rows are
	// inserted as one batch.
	CreateInstallmentPurchase(ctx context.Context, group *model.InstallmentGroup, rows []*model.Transaction, adjustments []BalanceAdjustment) error
	GetInstallmentGroup(ctx context.Context, groupID string) (*model.InstallmentGroup, error)

	// Connection operations
	CreateConnection(ctx context.Context, conn *model.BankConnection) error
	GetConnection(ctx context.Context, connectionID string) (*model.BankConnection, error)
	GetConnectionByItemID(ctx context.Context, itemID string) (*model.BankConnection, error)
	UpdateConnection(ctx context.Context, conn *model.BankConnection) error
	ListConnections(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.BankConnection, string, error)

	// ClaimConnectionSync conditionally moves the connection to UPDATING.
	// The claim is the per-connection serialization point for reconciliation:
	// it fails with ErrSyncInProgress or ErrSyncNotAllowed instead of letting
	// two passes interleave.
	ClaimConnectionSync(ctx context.Context, connectionID string) (*model.BankConnection, error)

	// DetachConnectionAccounts clears ConnectionID and ExternalAccountID on
	// every account owned by the connection, leaving rows and balances in
	// place. Returns the number of detached accounts.
	DetachConnectionAccounts(ctx context.Context, connectionID string) (int, error)

	// Reconciliation upserts, keyed on the stable external identifiers. The
	// external ID uniqueness is enforced by the storage layer itself, so a
	// replayed upsert can never produce a second row.
	GetAccountByExternalID(ctx context.Context, externalID string) (*model.Account, error)
	UpsertProviderAccount(ctx context.Context, account *model.Account) (created bool, err error)
	UpsertProviderTransaction(ctx context.Context, t *model.Transaction) (created bool, err error)
}

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
