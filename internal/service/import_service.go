package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"connectrpc.com/connect"

	"github.com/abreulima/finsync/internal/model"
)

// ImportService runs bulk transaction imports. Import is the one flow with
// intentional partial success: each row commits (row plus balance effect)
// independently, and a failed row is recorded without rolling back the rows
// already committed.
type ImportService struct {
	ledger *LedgerService
	bucket *gcsstorage.BucketHandle
}

// NewImportService creates a new import service.
func NewImportService(ledger *LedgerService) *ImportService {
	return &ImportService{ledger: ledger}
}

// SetStorageBucket sets the GCS bucket used by ImportFromObject.
func (s *ImportService) SetStorageBucket(bucket *gcsstorage.BucketHandle) {
	s.bucket = bucket
}

// ImportRow is one transaction row as provided by a CSV export.
type ImportRow struct {
	Date        string
	Description string
	Amount      string
	Type        string
	Category    string
	AccountID   string
}

// ImportRowError records why one row was rejected.
type ImportRowError struct {
	Row     int
	Message string
}

// ImportResult reports exact per-row outcome counts.
type ImportResult struct {
	SuccessCount int32
	FailedCount  int32
	Errors       []ImportRowError
}

const importDateLayout = "2006-01-02"

// looksLikeHeader reports whether a first CSV record is a column-name line.
// Both the date and the amount column must fail to parse: a data row with
// just a bad date still enters the import and is counted as a failed row
// instead of vanishing.
func looksLikeHeader(record []string) bool {
	if _, err := time.Parse(importDateLayout, strings.TrimSpace(record[0])); err == nil {
		return false
	}
	if _, err := model.CentsFromString(record[2]); err == nil {
		return false
	}
	return true
}

// parseImportRow validates one row before any write.
func parseImportRow(row ImportRow) (CreateTransactionInput, error) {
	date, err := time.Parse(importDateLayout, strings.TrimSpace(row.Date))
	if err != nil {
		return CreateTransactionInput{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", row.Date)
	}

	amountCents, err := model.CentsFromString(row.Amount)
	if err != nil {
		return CreateTransactionInput{}, err
	}
	if amountCents <= 0 {
		return CreateTransactionInput{}, fmt.Errorf("amount must be positive, got %q", row.Amount)
	}

	txType := model.TransactionType(strings.ToUpper(strings.TrimSpace(row.Type)))
	if txType == "" {
		txType = model.TransactionTypeExpense
	}
	if !validTransactionType(txType) {
		return CreateTransactionInput{}, fmt.Errorf("invalid type %q", row.Type)
	}

	return CreateTransactionInput{
		Type:        txType,
		Category:    strings.TrimSpace(row.Category),
		AmountCents: amountCents,
		Description: strings.TrimSpace(row.Description),
		Date:        date,
		AccountID:   row.AccountID,
	}, nil
}

// ImportTransactions processes rows one at a time through the ledger create
// path. One row's failure never affects the others.
func (s *ImportService) ImportTransactions(ctx context.Context, userID string, rows []ImportRow) (*ImportResult, error) {
	result := &ImportResult{}
	for i, row := range rows {
		in, err := parseImportRow(row)
		if err == nil {
			_, err = s.ledger.CreateTransaction(ctx, userID, in)
		}
		if err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, ImportRowError{Row: i + 1, Message: err.Error()})
			continue
		}
		result.SuccessCount++
	}
	log.Printf("[Import] user=%s imported=%d failed=%d", userID, result.SuccessCount, result.FailedCount)
	return result, nil
}

// ImportCSV reads a bank-export CSV (date,description,amount,type,category)
// and imports its rows into accountID. A header line is skipped when present.
func (s *ImportService) ImportCSV(ctx context.Context, userID, accountID string, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, invalidArgument("malformed csv: %v", err)
	}

	rows := make([]ImportRow, 0, len(records))
	for i, record := range records {
		if len(record) < 3 {
			return nil, invalidArgument("row %d: expected at least date, description and amount", i+1)
		}
		if i == 0 && looksLikeHeader(record) {
			continue
		}
		row := ImportRow{
			Date:        record[0],
			Description: record[1],
			Amount:      record[2],
			AccountID:   accountID,
		}
		if len(record) > 3 {
			row.Type = record[3]
		}
		if len(record) > 4 {
			row.Category = record[4]
		}
		rows = append(rows, row)
	}
	return s.ImportTransactions(ctx, userID, rows)
}

// ImportFromObject imports a CSV export previously uploaded to the
// configured GCS bucket.
func (s *ImportService) ImportFromObject(ctx context.Context, userID, accountID, objectName string) (*ImportResult, error) {
	if s.bucket == nil {
		return nil, connect.NewError(connect.CodeUnavailable, fmt.Errorf("storage bucket is not configured"))
	}
	rc, err := s.bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, storeError("open import object", err)
	}
	defer rc.Close()
	return s.ImportCSV(ctx, userID, accountID, rc)
}
