package provider

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/abreulima/finsync/internal/model"
)

// MapItemStatus converts a provider item status into a connection status.
// Unrecognized codes map to OUTDATED: the connection is not known-broken, but
// its data can no longer be assumed fresh.
func MapItemStatus(status string) model.ConnectionStatus {
	switch status {
	case "UPDATED":
		return model.ConnectionStatusActive
	case "UPDATING", "CREATED", "MERGING":
		return model.ConnectionStatusUpdating
	case "LOGIN_ERROR", "INVALID_CREDENTIALS", "WAITING_USER_INPUT":
		return model.ConnectionStatusLoginError
	case "OUTDATED":
		return model.ConnectionStatusOutdated
	case "DELETED":
		return model.ConnectionStatusDisconnected
	default:
		return model.ConnectionStatusOutdated
	}
}

// MapAccountType converts the provider's account type/subtype pair into a
// domain account type.
func MapAccountType(accountType, subtype string) model.AccountType {
	switch accountType {
	case "BANK":
		switch subtype {
		case "SAVINGS_ACCOUNT":
			return model.AccountTypeSavings
		case "CHECKING_ACCOUNT":
			return model.AccountTypeChecking
		default:
			return model.AccountTypeChecking
		}
	case "CREDIT":
		return model.AccountTypeOther
	case "INVESTMENT":
		return model.AccountTypeInvestment
	default:
		return model.AccountTypeOther
	}
}

// MapTransactionType converts the provider's CREDIT/DEBIT flag into a
// transaction type.
func MapTransactionType(transactionType string) model.TransactionType {
	if transactionType == "CREDIT" {
		return model.TransactionTypeIncome
	}
	return model.TransactionTypeExpense
}

var titleCaser = cases.Title(language.Und)

// AccountDisplayName derives a readable account name when the provider did
// not report one, from the institution and account subtype
// ("NUBANK" + "CHECKING_ACCOUNT" -> "Nubank Checking Account").
func AccountDisplayName(name, institution, subtype string) string {
	if name != "" {
		return name
	}
	parts := make([]string, 0, 2)
	if institution != "" {
		parts = append(parts, titleCaser.String(strings.ToLower(institution)))
	}
	if subtype != "" {
		human := strings.ReplaceAll(strings.ToLower(subtype), "_", " ")
		parts = append(parts, titleCaser.String(human))
	}
	if len(parts) == 0 {
		return "Bank Account"
	}
	return strings.Join(parts, " ")
}
