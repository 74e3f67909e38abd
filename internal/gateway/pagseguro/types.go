package pagseguro

import (
	"time"

	"github.com/shopspring/decimal"
)

type amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency,omitempty"`
}

func amountFromDecimal(value decimal.Decimal, currency string) amount {
	return amount{Value: value.Shift(2).Round(0).IntPart(), Currency: currency}
}

func (a amount) decimal() decimal.Decimal {
	return decimal.New(a.Value, -2)
}

type phone struct {
	Country string `json:"country"`
	Area    string `json:"area"`
	Number  string `json:"number"`
	Type    string `json:"type"`
}

type customer struct {
	Name   string  `json:"name"`
	Email  string  `json:"email,omitempty"`
	TaxID  string  `json:"tax_id"`
	Phones []phone `json:"phones,omitempty"`
}

type item struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
}

type qrCodeRequest struct {
	Amount         amount `json:"amount"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

type holder struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
	Email string `json:"email,omitempty"`
}

type boletoRequest struct {
	DueDate string `json:"due_date"`
	Holder  holder `json:"holder"`
}

type paymentMethodRequest struct {
	Type   string         `json:"type"`
	Boleto *boletoRequest `json:"boleto,omitempty"`
}

type chargeRequest struct {
	ReferenceID   string               `json:"reference_id"`
	Description   string               `json:"description,omitempty"`
	Amount        amount               `json:"amount"`
	PaymentMethod paymentMethodRequest `json:"payment_method"`
}

type orderRequest struct {
	ReferenceID      string          `json:"reference_id"`
	Customer         customer        `json:"customer"`
	Items            []item          `json:"items"`
	QRCodes          []qrCodeRequest `json:"qr_codes,omitempty"`
	Charges          []chargeRequest `json:"charges,omitempty"`
	NotificationURLs []string        `json:"notification_urls,omitempty"`
}

type checkoutMethod struct {
	Type string `json:"type"`
}

type checkoutRequest struct {
	ReferenceID             string           `json:"reference_id"`
	Customer                customer         `json:"customer"`
	Items                   []item           `json:"items"`
	PaymentMethods          []checkoutMethod `json:"payment_methods"`
	RedirectURL             string           `json:"redirect_url,omitempty"`
	NotificationURLs        []string         `json:"notification_urls,omitempty"`
	PaymentNotificationURLs []string         `json:"payment_notification_urls,omitempty"`
}

type link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Media string `json:"media"`
}

func findLink(links []link, rel string) string {
	for _, l := range links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

type charge struct {
	ID          string     `json:"id"`
	ReferenceID string     `json:"reference_id"`
	Status      string     `json:"status"`
	Amount      amount     `json:"amount"`
	PaidAt      *time.Time `json:"paid_at"`
	Links       []link     `json:"links"`
}

type qrCode struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Links []link `json:"links"`
}

type order struct {
	ID          string   `json:"id"`
	ReferenceID string   `json:"reference_id"`
	Charges     []charge `json:"charges"`
	QRCodes     []qrCode `json:"qr_codes"`
	Items       []item   `json:"items"`
}

// firstCharge is nil until the buyer pays or a boleto is issued.
func (o *order) firstCharge() *charge {
	if len(o.Charges) == 0 {
		return nil
	}
	return &o.Charges[0]
}

type orderRef struct {
	ID string `json:"id"`
}

type checkout struct {
	ID          string     `json:"id"`
	ReferenceID string     `json:"reference_id"`
	Status      string     `json:"status"`
	Links       []link     `json:"links"`
	Orders      []orderRef `json:"orders"`
}

type errorEntry struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter_name"`
}

type errorResponse struct {
	ErrorMessages []errorEntry `json:"error_messages"`
}
