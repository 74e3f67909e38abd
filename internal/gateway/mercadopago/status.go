package mercadopago

import "github.com/kursadbilgin/federation-engine/internal/domain"

// MapStatus translates a Mercado Pago payment status. Unknown values map to
// PENDING so that a new upstream status never marks a payment as settled.
func MapStatus(status string) domain.PaymentStatus {
	switch status {
	case "pending", "in_process":
		return domain.PaymentStatusPending
	case "authorized", "in_mediation":
		return domain.PaymentStatusProcessing
	case "approved":
		return domain.PaymentStatusPaid
	case "rejected":
		return domain.PaymentStatusFailed
	case "cancelled":
		return domain.PaymentStatusCancelled
	case "refunded", "charged_back":
		return domain.PaymentStatusRefunded
	default:
		return domain.PaymentStatusPending
	}
}
