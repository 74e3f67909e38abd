package pagseguro

import "github.com/kursadbilgin/federation-engine/internal/domain"

const statusWaiting = "WAITING"

// MapStatus translates a PagSeguro charge status. Unknown values map to
// PENDING.
func MapStatus(status string) domain.PaymentStatus {
	switch status {
	case statusWaiting:
		return domain.PaymentStatusPending
	case "IN_ANALYSIS", "AUTHORIZED":
		return domain.PaymentStatusProcessing
	case "PAID":
		return domain.PaymentStatusPaid
	case "DECLINED":
		return domain.PaymentStatusFailed
	case "CANCELED":
		return domain.PaymentStatusCancelled
	default:
		return domain.PaymentStatusPending
	}
}
