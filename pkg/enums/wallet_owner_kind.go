package enums

import "fmt"

// WalletOwnerKind discriminates which party type owns a wallet.
type WalletOwnerKind string

const (
	WalletOwnerKindUser   WalletOwnerKind = "user"
	WalletOwnerKindVendor WalletOwnerKind = "vendor"
)

var validWalletOwnerKinds = []WalletOwnerKind{
	WalletOwnerKindUser,
	WalletOwnerKindVendor,
}

// String implements fmt.Stringer.
func (k WalletOwnerKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known WalletOwnerKind.
func (k WalletOwnerKind) IsValid() bool {
	for _, candidate := range validWalletOwnerKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseWalletOwnerKind converts raw input into a WalletOwnerKind.
func ParseWalletOwnerKind(value string) (WalletOwnerKind, error) {
	for _, candidate := range validWalletOwnerKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet owner kind %q", value)
}
