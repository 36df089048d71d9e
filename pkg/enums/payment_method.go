package enums

// PaymentMethod describes how a buyer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodGCash        PaymentMethod = "gcash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodPayPal       PaymentMethod = "paypal"
)

var paymentMethods = newSet("payment method",
	PaymentMethodCOD,
	PaymentMethodBankTransfer,
	PaymentMethodGCash,
	PaymentMethodCard,
	PaymentMethodPayPal,
)

// Card and PayPal exist in the schema but are not offered at checkout yet.
var checkoutPaymentMethods = newSet("payment method",
	PaymentMethodCOD,
	PaymentMethodBankTransfer,
	PaymentMethodGCash,
)

func (p PaymentMethod) String() string { return string(p) }
func (p PaymentMethod) IsValid() bool  { return paymentMethods.has(p) }

// AcceptedAtCheckout reports whether buyers can select the method when placing an order.
func (p PaymentMethod) AcceptedAtCheckout() bool { return checkoutPaymentMethods.has(p) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return paymentMethods.parse(value)
}
