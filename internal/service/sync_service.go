package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/provider"
	"github.com/abreulima/finsync/internal/store"
)

// transactionSyncWindow is the trailing window of provider transactions
// reconciled on every sync pass.
const transactionSyncWindow = 90 * 24 * time.Hour

// SyncService mirrors provider state into local rows. It orchestrates the
// connection state machine and the account/transaction reconcilers in
// response to webhook events and manual sync requests.
type SyncService struct {
	store    store.Store
	provider provider.Client
}

// NewSyncService creates a new sync service.
func NewSyncService(store store.Store, client provider.Client) *SyncService {
	return &SyncService{store: store, provider: client}
}

// ProcessEvent handles one parsed webhook event. Unknown event kinds and
// events referencing items this system never registered are logged and
// dropped; the transport layer acknowledges them either way.
func (s *SyncService) ProcessEvent(ctx context.Context, ev provider.WebhookEvent) error {
	if ev.Kind == provider.EventUnknown {
		log.Printf("[Webhook] unhandled event type: %s", ev.Event)
		return nil
	}

	conn, err := s.store.GetConnectionByItemID(ctx, ev.ItemID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[Webhook] ignoring %s for unknown item %s", ev.Event, ev.ItemID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve item %s: %w", ev.ItemID, err)
	}

	switch ev.Kind {
	case provider.EventItemCreated, provider.EventItemUpdated:
		return s.ReconcileConnection(ctx, conn)
	case provider.EventItemError:
		return s.markLoginError(ctx, conn, s.fetchItemError(ctx, conn.ItemID))
	case provider.EventItemWaitingUserInput:
		return s.markLoginError(ctx, conn, "connection is waiting for user input")
	case provider.EventItemDeleted:
		return s.disconnect(ctx, conn)
	default:
		return nil
	}
}

// ReconcileConnection fetches the item's current state and, when the
// provider has fresh data, reconciles every owned account and its trailing
// transaction window. A fetch failure leaves the connection's prior state
// untouched.
func (s *SyncService) ReconcileConnection(ctx context.Context, conn *model.BankConnection) error {
	item, err := s.provider.GetItem(ctx, conn.ItemID)
	if err != nil {
		return fmt.Errorf("fetch item %s: %w", conn.ItemID, err)
	}

	status := provider.MapItemStatus(item.Status)
	switch status {
	case model.ConnectionStatusLoginError:
		msg := "login failed"
		if item.Error != nil && item.Error.Message != "" {
			msg = item.Error.Message
		}
		return s.markLoginError(ctx, conn, msg)

	case model.ConnectionStatusUpdating:
		// The provider is still refreshing; the follow-up webhook carries
		// the data.
		conn.Status = model.ConnectionStatusUpdating
		conn.UpdatedAt = time.Now()
		if err := s.store.UpdateConnection(ctx, conn); err != nil {
			return fmt.Errorf("update connection: %w", err)
		}
		return nil

	default:
		if err := s.reconcileAccounts(ctx, conn); err != nil {
			return err
		}
		now := time.Now()
		conn.Status = status
		conn.LastError = ""
		conn.LastSyncAt = now
		conn.UpdatedAt = now
		if err := s.store.UpdateConnection(ctx, conn); err != nil {
			return fmt.Errorf("update connection: %w", err)
		}
		return nil
	}
}

// reconcileAccounts upserts every provider account of the connection and
// then reconciles each account's transactions.
func (s *SyncService) reconcileAccounts(ctx context.Context, conn *model.BankConnection) error {
	providerAccounts, err := s.provider.ListAccounts(ctx, conn.ItemID)
	if err != nil {
		return fmt.Errorf("fetch accounts for item %s: %w", conn.ItemID, err)
	}

	for _, pa := range providerAccounts {
		currency := pa.CurrencyCode
		if currency == "" {
			currency = "BRL"
		}
		now := time.Now()
		account := &model.Account{
			ID:                uuid.New().String(),
			UserID:            conn.UserID,
			Name:              provider.AccountDisplayName(pa.Name, conn.ConnectorName, pa.Subtype),
			Type:              provider.MapAccountType(pa.Type, pa.Subtype),
			Institution:       conn.ConnectorName,
			BalanceCents:      model.CentsFromFloat(pa.Balance),
			Currency:          currency,
			BalanceSource:     model.BalanceSourceProvider,
			ConnectionID:      conn.ID,
			ExternalAccountID: pa.ID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		created, err := s.store.UpsertProviderAccount(ctx, account)
		if err != nil {
			return fmt.Errorf("upsert account %s: %w", pa.ID, err)
		}
		if created {
			log.Printf("[Sync] item=%s created account %s (%s)", conn.ItemID, account.ID, account.Name)
		}

		local, err := s.store.GetAccountByExternalID(ctx, pa.ID)
		if err != nil {
			return fmt.Errorf("resolve account %s: %w", pa.ID, err)
		}
		if err := s.reconcileTransactions(ctx, conn, local, pa.ID); err != nil {
			return err
		}
	}
	return nil
}

// reconcileTransactions upserts the trailing transaction window of one
// account. Repeat sightings update provider-authoritative fields only and
// never re-apply a ledger effect; the account's balance was already taken
// verbatim from the provider.
func (s *SyncService) reconcileTransactions(ctx context.Context, conn *model.BankConnection, account *model.Account, externalAccountID string) error {
	to := time.Now()
	from := to.Add(-transactionSyncWindow)

	providerTransactions, err := s.provider.ListTransactions(ctx, externalAccountID, from, to)
	if err != nil {
		return fmt.Errorf("fetch transactions for account %s: %w", externalAccountID, err)
	}

	inserted := 0
	for _, pt := range providerTransactions {
		amountCents := model.CentsFromFloat(math.Abs(pt.Amount))
		if amountCents == 0 {
			log.Printf("[Sync] skipping zero-amount transaction %s", pt.ID)
			continue
		}
		now := time.Now()
		t := &model.Transaction{
			ID:                    uuid.New().String(),
			UserID:                conn.UserID,
			Type:                  provider.MapTransactionType(pt.Type),
			Category:              pt.Category,
			AmountCents:           amountCents,
			Description:           pt.Description,
			Date:                  pt.Date,
			AccountID:             account.ID,
			ExternalTransactionID: pt.ID,
			IsPending:             pt.Status == "PENDING",
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		created, err := s.store.UpsertProviderTransaction(ctx, t)
		if err != nil {
			return fmt.Errorf("upsert transaction %s: %w", pt.ID, err)
		}
		if created {
			inserted++
		}
	}
	if inserted > 0 {
		log.Printf("[Sync] item=%s account=%s inserted %d transactions", conn.ItemID, account.ID, inserted)
	}
	return nil
}

// fetchItemError retrieves the provider's error detail for an item, falling
// back to a generic message when the fetch itself fails.
func (s *SyncService) fetchItemError(ctx context.Context, itemID string) string {
	item, err := s.provider.GetItem(ctx, itemID)
	if err == nil && item.Error != nil && item.Error.Message != "" {
		return item.Error.Message
	}
	return "provider reported a connection error"
}

func (s *SyncService) markLoginError(ctx context.Context, conn *model.BankConnection, message string) error {
	conn.Status = model.ConnectionStatusLoginError
	conn.LastError = message
	conn.UpdatedAt = time.Now()
	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	log.Printf("[Sync] item=%s entered LOGIN_ERROR: %s", conn.ItemID, message)
	return nil
}

// disconnect detaches the connection's accounts and marks it DISCONNECTED.
// Accounts keep their rows, transactions and balances; only the link to the
// provider is severed.
func (s *SyncService) disconnect(ctx context.Context, conn *model.BankConnection) error {
	detached, err := s.store.DetachConnectionAccounts(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("detach accounts: %w", err)
	}
	conn.Status = model.ConnectionStatusDisconnected
	conn.UpdatedAt = time.Now()
	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	log.Printf("[Sync] item=%s disconnected, detached %d accounts", conn.ItemID, detached)
	return nil
}
