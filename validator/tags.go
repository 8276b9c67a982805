package validator

const (
	Email             = "email"
	URL               = "url"
	Min               = "min"
	Max               = "max"
	Required          = "required"
	PhoneNumber       = "phone_number"
	Role              = "role"
	PaymentType       = "payment_type"
	BackPaymentMethod = "back_payment_method"
	NotificationKind  = "notification_kind"
	NotEmpty          = "not_empty"
)
