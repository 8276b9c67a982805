package validator

import (
	"log"

	enLocale "github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

func (v *validatorImpl) initTranslator() {
	en := enLocale.New()
	v.uni = ut.New(en, en)

	trans, _ := v.uni.GetTranslator("en")
	v.translator = trans

	if err := en_translations.RegisterDefaultTranslations(v.validate, trans); err != nil {
		log.Printf("Failed to register English translations: %v", err)
	}
}

func (v *validatorImpl) registerCustomTranslations() {
	v.registerEnglishTranslations()
}

func (v *validatorImpl) registerEnglishTranslations() {
	trans, ok := v.uni.GetTranslator("en")
	if !ok {
		panic("Translator for 'en' not found")
	}

	translations := map[string]string{
		"phone_number":        "{0} must be a valid phone number",
		"email":               "{0} must be a valid email address",
		"role":                "{0} must be a valid role (ADMIN, DIKE, UMUM, USER)",
		"payment_type":        "{0} must be a valid payment type (DIKE, UMUM)",
		"back_payment_method": "{0} must be a valid back payment method (BANK, OVO, GOPAY, DANA, SHOPEEPAY)",
		"notification_kind":   "{0} must be a valid notification kind",
		"not_empty":           "{0} cannot be empty",
		"required_for_dike":   "{0} is required for DIKE payments",
		"forbidden_for_umum":  "back transfer details are not allowed for UMUM payments",
		"ewallet_account":     "{0} must be the mobile number registered to the e-wallet",
	}

	for tag, message := range translations {
		tag, message := tag, message
		err := v.validate.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error {
				return ut.Add(tag, message, true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(tag, fe.Field())
				return t
			},
		)
		if err != nil {
			log.Printf("Failed to register English translation for %s: %v", tag, err)
		}
	}
}
