package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/provider"
	"github.com/abreulima/finsync/internal/store"
)

// ConnectionService manages the lifecycle of bank connections: widget token
// issuance, registration after user authorization, manual refresh and
// disconnection.
type ConnectionService struct {
	store    store.Store
	provider provider.Client
	sync     *SyncService
}

// NewConnectionService creates a new connection service.
func NewConnectionService(store store.Store, client provider.Client, sync *SyncService) *ConnectionService {
	return &ConnectionService{store: store, provider: client, sync: sync}
}

// CreateConnectToken issues a short-lived token for the provider's connect
// widget.
func (s *ConnectionService) CreateConnectToken(ctx context.Context) (string, error) {
	token, err := s.provider.CreateConnectToken(ctx)
	if err != nil {
		return "", providerUnavailable(err)
	}
	return token, nil
}

// RegisterConnection records the item the user just authorized and runs the
// initial reconciliation. Each provider item maps to at most one connection;
// registering the same item twice is a conflict. A failed initial sync keeps
// the connection; the provider retries through webhooks.
func (s *ConnectionService) RegisterConnection(ctx context.Context, userID, itemID string) (*model.BankConnection, error) {
	if itemID == "" {
		return nil, invalidArgument("item id is required")
	}

	item, err := s.provider.GetItem(ctx, itemID)
	if err != nil {
		return nil, providerUnavailable(err)
	}

	now := time.Now()
	conn := &model.BankConnection{
		ID:            uuid.New().String(),
		UserID:        userID,
		Provider:      "openfinance",
		ConnectorName: item.Connector.Name,
		ItemID:        itemID,
		Status:        provider.MapItemStatus(item.Status),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateConnection(ctx, conn); err != nil {
		if errors.Is(err, store.ErrDuplicateItemID) {
			return nil, conflict(errors.New("item is already registered"))
		}
		return nil, storeError("create connection", err)
	}

	if err := s.sync.ReconcileConnection(ctx, conn); err != nil {
		log.Printf("[Connection] initial sync for item %s failed: %v", itemID, err)
	}
	return s.getOwnedConnection(ctx, userID, conn.ID)
}

// RequestSync asks the provider to refresh the item and reconciles the
// result. The connection is claimed UPDATING first so concurrent requests
// are rejected rather than run twice; on provider failure the prior status
// is restored.
func (s *ConnectionService) RequestSync(ctx context.Context, userID, connectionID string) (*model.BankConnection, error) {
	conn, err := s.getOwnedConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	prior := conn.Status

	claimed, err := s.store.ClaimConnectionSync(ctx, connectionID)
	if errors.Is(err, store.ErrSyncInProgress) || errors.Is(err, store.ErrSyncNotAllowed) {
		return nil, conflict(err)
	}
	if err != nil {
		return nil, storeError("claim sync", err)
	}

	if err := s.provider.UpdateItem(ctx, claimed.ItemID); err != nil {
		s.restoreStatus(ctx, claimed, prior)
		return nil, providerUnavailable(err)
	}

	if err := s.sync.ReconcileConnection(ctx, claimed); err != nil {
		s.restoreStatus(ctx, claimed, prior)
		return nil, providerUnavailable(err)
	}
	return s.getOwnedConnection(ctx, userID, connectionID)
}

// Disconnect deletes the item at the provider (best effort), detaches the
// connection's accounts to local bookkeeping and marks the connection
// DISCONNECTED. Account rows, transactions and balances are all kept.
func (s *ConnectionService) Disconnect(ctx context.Context, userID, connectionID string) (*model.BankConnection, error) {
	conn, err := s.getOwnedConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status == model.ConnectionStatusDisconnected {
		return conn, nil
	}

	if err := s.provider.DeleteItem(ctx, conn.ItemID); err != nil {
		log.Printf("[Connection] provider delete for item %s failed: %v", conn.ItemID, err)
	}

	detached, err := s.store.DetachConnectionAccounts(ctx, conn.ID)
	if err != nil {
		return nil, storeError("detach accounts", err)
	}

	conn.Status = model.ConnectionStatusDisconnected
	conn.LastError = ""
	conn.UpdatedAt = time.Now()
	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		return nil, storeError("update connection", err)
	}
	log.Printf("[Connection] %s disconnected, detached %d accounts", conn.ID, detached)
	return conn, nil
}

// GetConnection retrieves one connection owned by the user.
func (s *ConnectionService) GetConnection(ctx context.Context, userID, connectionID string) (*model.BankConnection, error) {
	return s.getOwnedConnection(ctx, userID, connectionID)
}

// ListConnections lists the user's connections.
func (s *ConnectionService) ListConnections(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.BankConnection, string, error) {
	connections, nextToken, err := s.store.ListConnections(ctx, userID, pageSize, pageToken)
	if err != nil {
		return nil, "", storeError("list connections", err)
	}
	return connections, nextToken, nil
}

func (s *ConnectionService) getOwnedConnection(ctx context.Context, userID, connectionID string) (*model.BankConnection, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("connection")
	}
	if err != nil {
		return nil, storeError("get connection", err)
	}
	if conn.UserID != userID {
		return nil, notFound("connection")
	}
	return conn, nil
}

func (s *ConnectionService) restoreStatus(ctx context.Context, conn *model.BankConnection, prior model.ConnectionStatus) {
	conn.Status = prior
	conn.UpdatedAt = time.Now()
	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		log.Printf("[Connection] restoring status of %s failed: %v", conn.ID, err)
	}
}
