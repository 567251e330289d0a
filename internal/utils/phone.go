package utils

import (
	"strings"

	"transitpay/internal/domain"
)

const (
	CountryCode     = "254"
	trunkPrefix     = '0'
	intlPhoneLength = len(CountryCode) + 9
)

// NormalizePhone converts local (07XXXXXXXX), short (7XXXXXXXX) and international
// (2547XXXXXXXX) numbers to the canonical 254XXXXXXXXX form.
func NormalizePhone(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")

	if s == "" || !isDigits(s) {
		return "", domain.ErrInvalidPhoneFormat
	}

	switch {
	case len(s) == 10 && s[0] == trunkPrefix && isSubscriberPrefix(s[1]):
		return CountryCode + s[1:], nil
	case len(s) == 9 && isSubscriberPrefix(s[0]):
		return CountryCode + s, nil
	case len(s) == intlPhoneLength && strings.HasPrefix(s, CountryCode) && isSubscriberPrefix(s[len(CountryCode)]):
		return s, nil
	}
	return "", domain.ErrInvalidPhoneFormat
}

// MaskPhone keeps the country code and last three digits for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	return phone[:3] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-3:]
}

// Safaricom and Airtel subscriber ranges start with 7 or 1.
func isSubscriberPrefix(b byte) bool {
	return b == '7' || b == '1'
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
