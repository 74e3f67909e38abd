package whatsapp

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

const countryCode = "55"

// NormalizePhone converts a Brazilian phone number to 55DDNNNNNNNNN.
//
//	"(62) 99424-2329" => "5562994242329"
//	"62 9424-2329"    => "5562994242329"
//	"0629999999"      => "55629999999"
//
// The country code is added first and a trunk zero right after it is dropped.
// Legacy seven-digit locals come out as 11 digits.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) <= 11 || !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	if strings.HasPrefix(digits, countryCode+"0") {
		digits = countryCode + digits[3:]
	}
	// Eight-digit mobile numbers predate the extra leading 9.
	if len(digits) == 12 && digits[4] >= '6' && digits[4] <= '9' {
		digits = digits[:4] + "9" + digits[4:]
	}

	if len(digits) < 11 || len(digits) > 13 {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPhone, raw)
	}
	return digits, nil
}
