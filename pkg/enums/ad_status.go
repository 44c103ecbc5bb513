package enums

import "fmt"

// AdStatus tracks whether an ad is currently billable.
type AdStatus string

const (
	AdStatusActive   AdStatus = "active"
	AdStatusInactive AdStatus = "inactive"
)

var validAdStatuses = []AdStatus{
	AdStatusActive,
	AdStatusInactive,
}

// String implements fmt.Stringer.
func (s AdStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AdStatus.
func (s AdStatus) IsValid() bool {
	for _, candidate := range validAdStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAdStatus converts raw input into an AdStatus.
func ParseAdStatus(value string) (AdStatus, error) {
	for _, candidate := range validAdStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ad status %q", value)
}
