package enums

// PaymentMethod is how the buyer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodPix        PaymentMethod = "pix"
	PaymentMethodBoleto     PaymentMethod = "boleto"
)

var paymentMethods = newSet("payment method", PaymentMethodCreditCard, PaymentMethodPix, PaymentMethodBoleto)

func (p PaymentMethod) String() string { return string(p) }
func (p PaymentMethod) IsValid() bool  { return paymentMethods.has(p) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return paymentMethods.parse(value)
}

// PaymentStatus is whether an order has been paid for. Only pending moves.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

var paymentStatuses = newSet("payment status", PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed)

func (p PaymentStatus) String() string { return string(p) }
func (p PaymentStatus) IsValid() bool  { return paymentStatuses.has(p) }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse(value)
}
