package domain

import (
	"fmt"
	"time"
)

const ProtocolKindPayment = "PAYMENT"

// Protocol is the human-facing receipt number issued for a payment attempt.
// It is immutable once stored.
type Protocol struct {
	ID            string
	Number        string
	TransactionID *string
	EntityType    string
	EntityID      string
	Kind          string
	CreatedAt     time.Time
}

// FormatProtocolNumber renders a sequence value as PREFIX-YEAR-NNNNNN.
func FormatProtocolNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}
