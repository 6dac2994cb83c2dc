//go:build ignore
// +build ignore

// Seeds demo accounts and transactions for local development.
//
// Usage:
//
//	GOOGLE_CLOUD_PROJECT=my-project go run scripts/seed-data.go
//	USER_ID=some-user go run scripts/seed-data.go
package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/abreulima/finsync/internal/model"
	"github.com/abreulima/finsync/internal/service"
	"github.com/abreulima/finsync/internal/store"
)

func main() {
	userID := os.Getenv("USER_ID")
	if userID == "" {
		userID = "local-dev-user"
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		log.Fatal("GOOGLE_CLOUD_PROJECT is required")
	}

	ctx := context.Background()
	firestoreClient, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	storeImpl := store.NewFirestoreStore(firestoreClient)
	accounts := service.NewAccountService(storeImpl)
	ledger := service.NewLedgerService(storeImpl)
	installments := service.NewInstallmentService(storeImpl)

	log.Printf("🌱 Seeding data for user: %s", userID)

	checking, err := accounts.CreateAccount(ctx, userID, service.CreateAccountInput{
		Name:         "Conta Corrente",
		Type:         model.AccountTypeChecking,
		Institution:  "Banco Exemplo",
		BalanceCents: 0,
	})
	if err != nil {
		log.Fatalf("Failed to create checking account: %v", err)
	}

	wallet, err := accounts.CreateAccount(ctx, userID, service.CreateAccountInput{
		Name: "Carteira",
		Type: model.AccountTypeCash,
	})
	if err != nil {
		log.Fatalf("Failed to create wallet account: %v", err)
	}

	now := time.Now()
	seedTransactions := []service.CreateTransactionInput{
		{Type: model.TransactionTypeIncome, Category: "Salary", AmountCents: 6500_00, Description: "Salário", Date: now.AddDate(0, 0, -25), AccountID: checking.ID},
		{Type: model.TransactionTypeExpense, Category: "Housing", AmountCents: 1800_00, Description: "Aluguel", Date: now.AddDate(0, 0, -20), AccountID: checking.ID},
		{Type: model.TransactionTypeExpense, Category: "Groceries", AmountCents: 432_75, Description: "Mercado", Date: now.AddDate(0, 0, -12), AccountID: checking.ID},
		{Type: model.TransactionTypeTransfer, Category: "Transfers", AmountCents: 300_00, Description: "Saque", Date: now.AddDate(0, 0, -10), AccountID: checking.ID},
		{Type: model.TransactionTypeExpense, Category: "Food", AmountCents: 54_90, Description: "Restaurante", Date: now.AddDate(0, 0, -4), AccountID: wallet.ID},
	}
	for _, in := range seedTransactions {
		if _, err := ledger.CreateTransaction(ctx, userID, in); err != nil {
			log.Fatalf("Failed to create transaction %q: %v", in.Description, err)
		}
	}

	result, err := installments.CreateInstallmentPurchase(ctx, userID, service.CreateInstallmentInput{
		CardID:            "demo-card",
		Description:       "Notebook",
		TotalCents:        3499_90,
		TotalInstallments: 10,
		StartDate:         now.AddDate(0, -1, 0),
	})
	if err != nil {
		log.Fatalf("Failed to create installment purchase: %v", err)
	}

	log.Printf("✅ Seeded 2 accounts, %d transactions and a %d-installment purchase",
		len(seedTransactions), len(result.Transactions))
}
