package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/abreulima/finsync/internal/model"
)

// Collection names. The external* collections hold one document per external
// identifier and exist purely to make that identifier unique at the storage
// layer: a replayed upsert that races another replica loses the Create and
// retries as an update instead of inserting a second row.
const (
	colAccounts             = "bankAccounts"
	colTransactions         = "transactions"
	colInstallmentGroups    = "installmentGroups"
	colConnections          = "bankConnections"
	colExternalAccounts     = "externalAccounts"
	colExternalTransactions = "externalTransactions"
	colConnectionItems      = "connectionItems"
)

// externalRef is the payload of an external-identifier index document.
type externalRef struct {
	RowID string
}

// FirestoreStore implements the Store interface using Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) Store {
	return &FirestoreStore{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// applyCursorPagination adds OrderBy + StartAfter + Limit to a query for
// cursor-based pagination. It fetches pageSize+1 docs so the caller can detect
// whether a next page exists.
func applyCursorPagination(query firestore.Query, pageSize int32, pageToken string) (firestore.Query, error) {
	query = query.OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return query, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.StartAfter(docID)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	query = query.Limit(int(pageSize) + 1) // +1 to detect next page
	return query, nil
}

// Account operations

func (s *FirestoreStore) CreateAccount(ctx context.Context, account *model.Account) error {
	_, err := s.client.Collection(colAccounts).Doc(account.ID).Create(ctx, account)
	return err
}

func (s *FirestoreStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	doc, err := s.client.Collection(colAccounts).Doc(accountID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	var account model.Account
	if err := doc.DataTo(&account); err != nil {
		return nil, fmt.Errorf("failed to parse account: %w", err)
	}
	return &account, nil
}

func (s *FirestoreStore) UpdateAccount(ctx context.Context, account *model.Account) error {
	_, err := s.client.Collection(colAccounts).Doc(account.ID).Set(ctx, account)
	return err
}

func (s *FirestoreStore) ListAccounts(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.Account, string, error) {
	query := s.client.Collection(colAccounts).Where("UserID", "==", userID)
	query, err := applyCursorPagination(query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list accounts: %w", err)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	var nextPageToken string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		nextPageToken = EncodePageToken(docs[pageSize-1].Ref.ID)
	}

	accounts := make([]*model.Account, 0, len(docs))
	for _, doc := range docs {
		var account model.Account
		if err := doc.DataTo(&account); err != nil {
			return nil, "", fmt.Errorf("failed to parse account: %w", err)
		}
		accounts = append(accounts, &account)
	}
	return accounts, nextPageToken, nil
}

// Transaction operations

// applyAdjustments stages one balance increment per adjustment. The updates
// use field transforms, so they commit atomically with the row mutation and
// fail the whole transaction when an account document is missing.
func applyAdjustments(tx *firestore.Transaction, accounts *firestore.CollectionRef, adjustments []BalanceAdjustment) error {
	for _, adj := range adjustments {
		err := tx.Update(accounts.Doc(adj.AccountID), []firestore.Update{
			{Path: "BalanceCents", Value: firestore.Increment(adj.DeltaCents)},
			{Path: "UpdatedAt", Value: time.Now()},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *FirestoreStore) CreateTransaction(ctx context.Context, t *model.Transaction, adjustments []BalanceAdjustment) error {
	accounts := s.client.Collection(colAccounts)
	ref := s.client.Collection(colTransactions).Doc(t.ID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(ref, t); err != nil {
			return err
		}
		return applyAdjustments(tx, accounts, adjustments)
	})
}

func (s *FirestoreStore) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	doc, err := s.client.Collection(colTransactions).Doc(transactionID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	var t model.Transaction
	if err := doc.DataTo(&t); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return &t, nil
}

func (s *FirestoreStore) UpdateTransaction(ctx context.Context, t *model.Transaction, adjustments []BalanceAdjustment) error {
	accounts := s.client.Collection(colAccounts)
	ref := s.client.Collection(colTransactions).Doc(t.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		if err := tx.Set(ref, t); err != nil {
			return err
		}
		return applyAdjustments(tx, accounts, adjustments)
	})
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func (s *FirestoreStore) DeleteTransaction(ctx context.Context, transactionID string, adjustments []BalanceAdjustment) error {
	accounts := s.client.Collection(colAccounts)
	ref := s.client.Collection(colTransactions).Doc(transactionID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var t model.Transaction
		if err := doc.DataTo(&t); err != nil {
			return fmt.Errorf("failed to parse transaction: %w", err)
		}
		if t.ExternalTransactionID != "" {
			if err := tx.Delete(s.client.Collection(colExternalTransactions).Doc(t.ExternalTransactionID)); err != nil {
				return err
			}
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		return applyAdjustments(tx, accounts, adjustments)
	})
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func (s *FirestoreStore) ListTransactions(ctx context.Context, userID, accountID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	query := s.client.Collection(colTransactions).Query
	if userID != "" {
		query = query.Where("UserID", "==", userID)
	}
	if accountID != "" {
		query = query.Where("AccountID", "==", accountID)
	}
	if startDate != nil {
		query = query.Where("Date", ">=", *startDate)
	}
	if endDate != nil {
		query = query.Where("Date", "<=", *endDate)
	}

	// Firestore requires OrderBy on the range field first, so the cursor is
	// the composite (Date, document ID) of the last row of the prior page.
	query = query.OrderBy("Date", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		cursorDoc, err := s.client.Collection(colTransactions).Doc(docID).Get(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch cursor document: %w", err)
		}
		query = query.StartAfter(cursorDoc.Data()["Date"], docID)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	docs, err := query.Limit(int(pageSize) + 1).Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list transactions: %w", err)
	}

	var nextPageToken string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		nextPageToken = EncodePageToken(docs[pageSize-1].Ref.ID)
	}

	transactions := make([]*model.Transaction, 0, len(docs))
	for _, doc := range docs {
		var t model.Transaction
		if err := doc.DataTo(&t); err != nil {
			return nil, "", fmt.Errorf("failed to parse transaction: %w", err)
		}
		transactions = append(transactions, &t)
	}
	return transactions, nextPageToken, nil
}

// Installment operations

func (s *FirestoreStore) CreateInstallmentPurchase(ctx context.Context, group *model.InstallmentGroup, rows []*model.Transaction, adjustments []BalanceAdjustment) error {
	accounts := s.client.Collection(colAccounts)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.client.Collection(colInstallmentGroups).Doc(group.ID), group); err != nil {
			return err
		}
		for _, row := range rows {
			if err := tx.Create(s.client.Collection(colTransactions).Doc(row.ID), row); err != nil {
				return err
			}
		}
		return applyAdjustments(tx, accounts, adjustments)
	})
}

func (s *FirestoreStore) GetInstallmentGroup(ctx context.Context, groupID string) (*model.InstallmentGroup, error) {
	doc, err := s.client.Collection(colInstallmentGroups).Doc(groupID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get installment group: %w", err)
	}
	var group model.InstallmentGroup
	if err := doc.DataTo(&group); err != nil {
		return nil, fmt.Errorf("failed to parse installment group: %w", err)
	}
	return &group, nil
}

// Connection operations

func (s *FirestoreStore) CreateConnection(ctx context.Context, conn *model.BankConnection) error {
	itemRef := s.client.Collection(colConnectionItems).Doc(conn.ItemID)
	connRef := s.client.Collection(colConnections).Doc(conn.ID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(itemRef)
		if err == nil {
			return ErrDuplicateItemID
		}
		if !isNotFound(err) {
			return err
		}
		if err := tx.Create(itemRef, externalRef{RowID: conn.ID}); err != nil {
			return err
		}
		return tx.Create(connRef, conn)
	})
}

func (s *FirestoreStore) GetConnection(ctx context.Context, connectionID string) (*model.BankConnection, error) {
	doc, err := s.client.Collection(colConnections).Doc(connectionID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	var conn model.BankConnection
	if err := doc.DataTo(&conn); err != nil {
		return nil, fmt.Errorf("failed to parse connection: %w", err)
	}
	return &conn, nil
}

func (s *FirestoreStore) GetConnectionByItemID(ctx context.Context, itemID string) (*model.BankConnection, error) {
	doc, err := s.client.Collection(colConnectionItems).Doc(itemID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve item id: %w", err)
	}
	var ref externalRef
	if err := doc.DataTo(&ref); err != nil {
		return nil, fmt.Errorf("failed to parse item index: %w", err)
	}
	return s.GetConnection(ctx, ref.RowID)
}

func (s *FirestoreStore) UpdateConnection(ctx context.Context, conn *model.BankConnection) error {
	_, err := s.client.Collection(colConnections).Doc(conn.ID).Set(ctx, conn)
	return err
}

func (s *FirestoreStore) ListConnections(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.BankConnection, string, error) {
	query := s.client.Collection(colConnections).Where("UserID", "==", userID)
	query, err := applyCursorPagination(query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list connections: %w", err)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	var nextPageToken string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		nextPageToken = EncodePageToken(docs[pageSize-1].Ref.ID)
	}

	connections := make([]*model.BankConnection, 0, len(docs))
	for _, doc := range docs {
		var conn model.BankConnection
		if err := doc.DataTo(&conn); err != nil {
			return nil, "", fmt.Errorf("failed to parse connection: %w", err)
		}
		connections = append(connections, &conn)
	}
	return connections, nextPageToken, nil
}

func (s *FirestoreStore) ClaimConnectionSync(ctx context.Context, connectionID string) (*model.BankConnection, error) {
	ref := s.client.Collection(colConnections).Doc(connectionID)
	var claimed model.BankConnection
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		if err := doc.DataTo(&claimed); err != nil {
			return fmt.Errorf("failed to parse connection: %w", err)
		}
		switch {
		case claimed.Status == model.ConnectionStatusUpdating:
			return ErrSyncInProgress
		case !claimed.SyncAllowed():
			return ErrSyncNotAllowed
		}
		claimed.Status = model.ConnectionStatusUpdating
		claimed.UpdatedAt = time.Now()
		return tx.Set(ref, &claimed)
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (s *FirestoreStore) DetachConnectionAccounts(ctx context.Context, connectionID string) (int, error) {
	iter := s.client.Collection(colAccounts).Where("ConnectionID", "==", connectionID).Documents(ctx)
	defer iter.Stop()

	type detachTarget struct {
		accountRef *firestore.DocumentRef
		externalID string
	}
	var targets []detachTarget
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to list connection accounts: %w", err)
		}
		var account model.Account
		if err := doc.DataTo(&account); err != nil {
			return 0, fmt.Errorf("failed to parse account: %w", err)
		}
		targets = append(targets, detachTarget{accountRef: doc.Ref, externalID: account.ExternalAccountID})
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, target := range targets {
			err := tx.Update(target.accountRef, []firestore.Update{
				{Path: "ConnectionID", Value: ""},
				{Path: "ExternalAccountID", Value: ""},
				{Path: "BalanceSource", Value: model.BalanceSourceLocal},
				{Path: "UpdatedAt", Value: time.Now()},
			})
			if err != nil {
				return err
			}
			if target.externalID != "" {
				if err := tx.Delete(s.client.Collection(colExternalAccounts).Doc(target.externalID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(targets), nil
}

// Reconciliation upserts

func (s *FirestoreStore) GetAccountByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	doc, err := s.client.Collection(colExternalAccounts).Doc(externalID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve external account id: %w", err)
	}
	var ref externalRef
	if err := doc.DataTo(&ref); err != nil {
		return nil, fmt.Errorf("failed to parse account index: %w", err)
	}
	return s.GetAccount(ctx, ref.RowID)
}

func (s *FirestoreStore) UpsertProviderAccount(ctx context.Context, account *model.Account) (bool, error) {
	indexRef := s.client.Collection(colExternalAccounts).Doc(account.ExternalAccountID)
	var created bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		indexDoc, err := tx.Get(indexRef)
		if isNotFound(err) {
			// First sighting: insert a fresh row and register the external ID.
			created = true
			if err := tx.Create(indexRef, externalRef{RowID: account.ID}); err != nil {
				return err
			}
			return tx.Create(s.client.Collection(colAccounts).Doc(account.ID), account)
		}
		if err != nil {
			return err
		}

		var ref externalRef
		if err := indexDoc.DataTo(&ref); err != nil {
			return fmt.Errorf("failed to parse account index: %w", err)
		}
		// Repeat sighting: overwrite only the provider-authoritative fields.
		// The provider's reported balance is authoritative for connected
		// accounts, so BalanceCents is replaced, never incremented.
		return tx.Update(s.client.Collection(colAccounts).Doc(ref.RowID), []firestore.Update{
			{Path: "Name", Value: account.Name},
			{Path: "Type", Value: account.Type},
			{Path: "Institution", Value: account.Institution},
			{Path: "BalanceCents", Value: account.BalanceCents},
			{Path: "Currency", Value: account.Currency},
			{Path: "UpdatedAt", Value: time.Now()},
		})
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *FirestoreStore) UpsertProviderTransaction(ctx context.Context, t *model.Transaction) (bool, error) {
	indexRef := s.client.Collection(colExternalTransactions).Doc(t.ExternalTransactionID)
	var created bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		indexDoc, err := tx.Get(indexRef)
		if isNotFound(err) {
			created = true
			if err := tx.Create(indexRef, externalRef{RowID: t.ID}); err != nil {
				return err
			}
			return tx.Create(s.client.Collection(colTransactions).Doc(t.ID), t)
		}
		if err != nil {
			return err
		}

		var ref externalRef
		if err := indexDoc.DataTo(&ref); err != nil {
			return fmt.Errorf("failed to parse transaction index: %w", err)
		}
		return tx.Update(s.client.Collection(colTransactions).Doc(ref.RowID), []firestore.Update{
			{Path: "Category", Value: t.Category},
			{Path: "Description", Value: t.Description},
			{Path: "IsPending", Value: t.IsPending},
			{Path: "UpdatedAt", Value: time.Now()},
		})
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
