package enums

import "fmt"

// WalletTransactionKind is the sign of a ledger entry.
type WalletTransactionKind string

const (
	WalletTransactionKindCredit WalletTransactionKind = "credit"
	WalletTransactionKindDebit  WalletTransactionKind = "debit"
)

var validWalletTransactionKinds = []WalletTransactionKind{
	WalletTransactionKindCredit,
	WalletTransactionKindDebit,
}

// String implements fmt.Stringer.
func (k WalletTransactionKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known WalletTransactionKind.
func (k WalletTransactionKind) IsValid() bool {
	for _, candidate := range validWalletTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseWalletTransactionKind converts raw input into a WalletTransactionKind.
func ParseWalletTransactionKind(value string) (WalletTransactionKind, error) {
	for _, candidate := range validWalletTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction kind %q", value)
}
