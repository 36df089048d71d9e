package checkout

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

// Field limits for checkout input, counted in characters.
const (
	MaxShippingAddressLength = 500
	MaxShippingCityLength    = 100
	MaxShippingPhoneLength   = 20
	MaxNotesLength           = 1000
)

// ShippingInput is the buyer-supplied part of a checkout request.
type ShippingInput struct {
	Address       string
	City          string
	Phone         string
	PaymentMethod string
	Notes         string
}

// ValidatedInput is ShippingInput after sanitizing and validation.
type ValidatedInput struct {
	Address       string
	City          string
	Phone         string
	PaymentMethod enums.PaymentMethod
	Notes         *string
}

// Sanitize trims surrounding whitespace and drops control characters.
// Newlines inside the text are dropped as well.
func Sanitize(value string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	return strings.TrimSpace(cleaned)
}

// ValidateShipping sanitizes every field and checks presence, length and
// payment method. All violations are reported together, keyed by field.
func ValidateShipping(input ShippingInput) (ValidatedInput, error) {
	out := ValidatedInput{
		Address: Sanitize(input.Address),
		City:    Sanitize(input.City),
		Phone:   Sanitize(input.Phone),
	}
	violations := map[string]string{}

	requireField(violations, "shipping_address", out.Address, MaxShippingAddressLength)
	requireField(violations, "shipping_city", out.City, MaxShippingCityLength)
	requireField(violations, "shipping_phone", out.Phone, MaxShippingPhoneLength)

	method, err := enums.ParsePaymentMethod(Sanitize(input.PaymentMethod))
	switch {
	case err != nil:
		violations["payment_method"] = "is invalid"
	case !method.AcceptedAtCheckout():
		violations["payment_method"] = "is not accepted at checkout"
	default:
		out.PaymentMethod = method
	}

	if notes := Sanitize(input.Notes); notes != "" {
		if utf8.RuneCountInString(notes) > MaxNotesLength {
			violations["notes"] = "is too long"
		}
		out.Notes = &notes
	}

	if len(violations) > 0 {
		return ValidatedInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout input").WithDetails(violations)
	}
	return out, nil
}

func requireField(violations map[string]string, field, value string, maxLen int) {
	if value == "" {
		violations[field] = "is required"
		return
	}
	if utf8.RuneCountInString(value) > maxLen {
		violations[field] = "is too long"
	}
}
