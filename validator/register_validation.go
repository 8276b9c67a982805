package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"go-payment-service/domain"
	"go-payment-service/pkg/utils"
)

type Registration struct {
	Tag  string
	Func validator.Func
}

var defaultRegistrations = [...]Registration{
	{
		Tag:  PhoneNumber,
		Func: IsValidPhoneNumber,
	},
	{
		Tag:  Role,
		Func: IsValidRole,
	},
	{
		Tag:  PaymentType,
		Func: IsValidPaymentType,
	},
	{
		Tag:  BackPaymentMethod,
		Func: IsValidBackPaymentMethod,
	},
	{
		Tag:  NotificationKind,
		Func: IsValidNotificationKind,
	},
	{
		Tag:  NotEmpty,
		Func: IsNotEmpty,
	},
	{
		Tag:  Email,
		Func: IsValidEmail,
	},
}

// IsValidPhoneNumber accepts local Indonesian numbers and any E.164 number.
func IsValidPhoneNumber(fl validator.FieldLevel) bool {
	input := fl.Field().String()
	if input == "" {
		return true
	}

	e164, err := utils.FormatE164(input, utils.RegionID)
	if err != nil {
		return false
	}
	return utils.IsE164Format(e164)
}

func IsValidEmail(fl validator.FieldLevel) bool {
	return utils.IsEmail(fl.Field().String())
}

func IsValidRole(fl validator.FieldLevel) bool {
	return domain.Role(fl.Field().String()).IsValid()
}

func IsValidPaymentType(fl validator.FieldLevel) bool {
	return domain.PaymentType(fl.Field().String()).IsValid()
}

func IsValidBackPaymentMethod(fl validator.FieldLevel) bool {
	return domain.BackPaymentMethod(fl.Field().String()).IsValid()
}

func IsValidNotificationKind(fl validator.FieldLevel) bool {
	return domain.NotificationKind(fl.Field().String()).IsValid()
}

func IsNotEmpty(fl validator.FieldLevel) bool {
	return len(strings.TrimSpace(fl.Field().String())) > 0
}

// paymentCreateStructLevel enforces the cross-field rules of a new payment.
// DIKE payments carry complete back transfer details and UMUM payments carry
// none. E-wallet account numbers must be mobile numbers.
func paymentCreateStructLevel(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(domain.PaymentCreateRequest)
	if !ok {
		return
	}

	switch req.Type {
	case domain.PaymentTypeDike:
		if req.BackPaymentMethod == "" {
			sl.ReportError(req.BackPaymentMethod, "back_payment_method", "BackPaymentMethod", "required_for_dike", "")
		}
		if req.BackAccountNumber == "" {
			sl.ReportError(req.BackAccountNumber, "back_account_number", "BackAccountNumber", "required_for_dike", "")
		}
		if strings.TrimSpace(req.BackRecipient) == "" {
			sl.ReportError(req.BackRecipient, "back_recipient", "BackRecipient", "required_for_dike", "")
		}
		if req.BackPaymentMethod.IsEWallet() && req.BackAccountNumber != "" &&
			!utils.IsMobileNumber(req.BackAccountNumber, utils.RegionID) {
			sl.ReportError(req.BackAccountNumber, "back_account_number", "BackAccountNumber", "ewallet_account", "")
		}
	case domain.PaymentTypeUmum:
		if req.BackPaymentMethod != "" || req.BackAccountNumber != "" || req.BackRecipient != "" {
			sl.ReportError(req.BackPaymentMethod, "back_payment_method", "BackPaymentMethod", "forbidden_for_umum", "")
		}
	}
}
