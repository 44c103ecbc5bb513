package enums

import "fmt"

// SubscriptionFrequency is the delivery cadence of a subscription box.
type SubscriptionFrequency string

const (
	SubscriptionFrequencyDaily   SubscriptionFrequency = "daily"
	SubscriptionFrequencyWeekly  SubscriptionFrequency = "weekly"
	SubscriptionFrequencyMonthly SubscriptionFrequency = "monthly"
)

var validSubscriptionFrequencies = []SubscriptionFrequency{
	SubscriptionFrequencyDaily,
	SubscriptionFrequencyWeekly,
	SubscriptionFrequencyMonthly,
}

// String implements fmt.Stringer.
func (f SubscriptionFrequency) String() string {
	return string(f)
}

// IsValid reports whether the value is a known SubscriptionFrequency.
func (f SubscriptionFrequency) IsValid() bool {
	for _, candidate := range validSubscriptionFrequencies {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseSubscriptionFrequency converts raw input into a SubscriptionFrequency.
func ParseSubscriptionFrequency(value string) (SubscriptionFrequency, error) {
	for _, candidate := range validSubscriptionFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription frequency %q", value)
}
