package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abreulima/finsync/internal/model"
)

// MemoryStore implements the Store interface with in-memory storage. It is
// used for local development and as the test substrate for the services.
type MemoryStore struct {
	mu sync.RWMutex

	accounts          map[string]*model.Account
	transactions      map[string]*model.Transaction
	installmentGroups map[string]*model.InstallmentGroup
	connections       map[string]*model.BankConnection

	// External-identifier indexes; the storage-level uniqueness constraints.
	externalAccounts     map[string]string // external account ID -> account ID
	externalTransactions map[string]string // external transaction ID -> transaction ID
	connectionItems      map[string]string // provider item ID -> connection ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:             make(map[string]*model.Account),
		transactions:         make(map[string]*model.Transaction),
		installmentGroups:    make(map[string]*model.InstallmentGroup),
		connections:          make(map[string]*model.BankConnection),
		externalAccounts:     make(map[string]string),
		externalTransactions: make(map[string]string),
		connectionItems:      make(map[string]string),
	}
}

// paginateIDs applies cursor-based pagination to a sorted slice of IDs.
// Returns the paginated IDs and the next page token (empty if no more pages).
func paginateIDs(ids []string, pageSize int32, pageToken string) ([]string, string) {
	if pageSize <= 0 {
		pageSize = 100
	}

	startIdx := 0
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err == nil {
			startIdx = len(ids)
			for i, id := range ids {
				if id > cursorID {
					startIdx = i
					break
				}
			}
		}
	}
	ids = ids[startIdx:]

	var nextToken string
	if int32(len(ids)) > pageSize {
		nextToken = EncodePageToken(ids[pageSize-1])
		ids = ids[:pageSize]
	}
	return ids, nextToken
}

// applyAdjustmentsLocked validates every referenced account before touching
// any balance, so a mutation either applies completely or not at all.
// Callers must hold the write lock.
func (m *MemoryStore) applyAdjustmentsLocked(adjustments []BalanceAdjustment) error {
	for _, adj := range adjustments {
		if _, ok := m.accounts[adj.AccountID]; !ok {
			return fmt.Errorf("account %s: %w", adj.AccountID, ErrNotFound)
		}
	}
	now := time.Now()
	for _, adj := range adjustments {
		account := m.accounts[adj.AccountID]
		account.BalanceCents += adj.DeltaCents
		account.UpdatedAt = now
	}
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	return &c
}

func cloneTransaction(t *model.Transaction) *model.Transaction {
	c := *t
	return &c
}

func cloneConnection(c *model.BankConnection) *model.BankConnection {
	cc := *c
	return &cc
}

// Account operations

func (m *MemoryStore) CreateAccount(ctx context.Context, account *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if _, ok := m.accounts[account.ID]; ok {
		return fmt.Errorf("account already exists: %s", account.ID)
	}
	m.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (m *MemoryStore) UpdateAccount(ctx context.Context, account *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[account.ID]; !ok {
		return ErrNotFound
	}
	m.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.Account, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, account := range m.accounts {
		if account.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids, nextToken := paginateIDs(ids, pageSize, pageToken)

	accounts := make([]*model.Account, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, cloneAccount(m.accounts[id]))
	}
	return accounts, nextToken, nil
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(ctx context.Context, t *model.Transaction, adjustments []BalanceAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if _, ok := m.transactions[t.ID]; ok {
		return fmt.Errorf("transaction already exists: %s", t.ID)
	}
	if err := m.applyAdjustmentsLocked(adjustments); err != nil {
		return err
	}
	m.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transactions[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, t *model.Transaction, adjustments []BalanceAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[t.ID]; !ok {
		return ErrNotFound
	}
	if err := m.applyAdjustmentsLocked(adjustments); err != nil {
		return err
	}
	m.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (m *MemoryStore) DeleteTransaction(ctx context.Context, transactionID string, adjustments []BalanceAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[transactionID]
	if !ok {
		return ErrNotFound
	}
	if err := m.applyAdjustmentsLocked(adjustments); err != nil {
		return err
	}
	if t.ExternalTransactionID != "" {
		delete(m.externalTransactions, t.ExternalTransactionID)
	}
	delete(m.transactions, transactionID)
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID, accountID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, t := range m.transactions {
		if userID != "" && t.UserID != userID {
			continue
		}
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		if startDate != nil && t.Date.Before(*startDate) {
			continue
		}
		if endDate != nil && t.Date.After(*endDate) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ids, nextToken := paginateIDs(ids, pageSize, pageToken)

	transactions := make([]*model.Transaction, 0, len(ids))
	for _, id := range ids {
		transactions = append(transactions, cloneTransaction(m.transactions[id]))
	}
	return transactions, nextToken, nil
}

// Installment operations

func (m *MemoryStore) CreateInstallmentPurchase(ctx context.Context, group *model.InstallmentGroup, rows []*model.Transaction, adjustments []BalanceAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if _, ok := m.installmentGroups[group.ID]; ok {
		return fmt.Errorf("installment group already exists: %s", group.ID)
	}
	if err := m.applyAdjustmentsLocked(adjustments); err != nil {
		return err
	}
	g := *group
	m.installmentGroups[group.ID] = &g
	for _, row := range rows {
		m.transactions[row.ID] = cloneTransaction(row)
	}
	return nil
}

func (m *MemoryStore) GetInstallmentGroup(ctx context.Context, groupID string) (*model.InstallmentGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group, ok := m.installmentGroups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	g := *group
	return &g, nil
}

// Connection operations

func (m *MemoryStore) CreateConnection(ctx context.Context, conn *model.BankConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	if _, ok := m.connectionItems[conn.ItemID]; ok {
		return ErrDuplicateItemID
	}
	m.connections[conn.ID] = cloneConnection(conn)
	m.connectionItems[conn.ItemID] = conn.ID
	return nil
}

func (m *MemoryStore) GetConnection(ctx context.Context, connectionID string) (*model.BankConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConnection(conn), nil
}

func (m *MemoryStore) GetConnectionByItemID(ctx context.Context, itemID string) (*model.BankConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connID, ok := m.connectionItems[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConnection(m.connections[connID]), nil
}

func (m *MemoryStore) UpdateConnection(ctx context.Context, conn *model.BankConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[conn.ID]; !ok {
		return ErrNotFound
	}
	m.connections[conn.ID] = cloneConnection(conn)
	return nil
}

func (m *MemoryStore) ListConnections(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.BankConnection, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, conn := range m.connections {
		if conn.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids, nextToken := paginateIDs(ids, pageSize, pageToken)

	connections := make([]*model.BankConnection, 0, len(ids))
	for _, id := range ids {
		connections = append(connections, cloneConnection(m.connections[id]))
	}
	return connections, nextToken, nil
}

func (m *MemoryStore) ClaimConnectionSync(ctx context.Context, connectionID string) (*model.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return nil, ErrNotFound
	}
	switch {
	case conn.Status == model.ConnectionStatusUpdating:
		return nil, ErrSyncInProgress
	case !conn.SyncAllowed():
		return nil, ErrSyncNotAllowed
	}
	conn.Status = model.ConnectionStatusUpdating
	conn.UpdatedAt = time.Now()
	return cloneConnection(conn), nil
}

func (m *MemoryStore) DetachConnectionAccounts(ctx context.Context, connectionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	detached := 0
	now := time.Now()
	for _, account := range m.accounts {
		if account.ConnectionID != connectionID {
			continue
		}
		if account.ExternalAccountID != "" {
			delete(m.externalAccounts, account.ExternalAccountID)
		}
		account.ConnectionID = ""
		account.ExternalAccountID = ""
		account.BalanceSource = model.BalanceSourceLocal
		account.UpdatedAt = now
		detached++
	}
	return detached, nil
}

// Reconciliation upserts

func (m *MemoryStore) GetAccountByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accountID, ok := m.externalAccounts[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(m.accounts[accountID]), nil
}

func (m *MemoryStore) UpsertProviderAccount(ctx context.Context, account *model.Account) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if accountID, ok := m.externalAccounts[account.ExternalAccountID]; ok {
		existing := m.accounts[accountID]
		existing.Name = account.Name
		existing.Type = account.Type
		existing.Institution = account.Institution
		existing.BalanceCents = account.BalanceCents
		existing.Currency = account.Currency
		existing.UpdatedAt = time.Now()
		return false, nil
	}

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	m.accounts[account.ID] = cloneAccount(account)
	m.externalAccounts[account.ExternalAccountID] = account.ID
	return true, nil
}

func (m *MemoryStore) UpsertProviderTransaction(ctx context.Context, t *model.Transaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if transactionID, ok := m.externalTransactions[t.ExternalTransactionID]; ok {
		existing := m.transactions[transactionID]
		existing.Category = t.Category
		existing.Description = t.Description
		existing.IsPending = t.IsPending
		existing.UpdatedAt = time.Now()
		return false, nil
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	m.transactions[t.ID] = cloneTransaction(t)
	m.externalTransactions[t.ExternalTransactionID] = t.ID
	return true, nil
}
