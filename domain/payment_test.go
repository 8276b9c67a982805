package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validDikePayment() *Payment {
	return &Payment{
		UserID:            "u1",
		CourseID:          "c1",
		PackageID:         "pk1",
		Type:              PaymentTypeDike,
		Status:            PaymentSTTPaid,
		BackPaymentMethod: BackPaymentOVO,
		BackAccountNumber: "081234567890",
		BackRecipient:     "Siti",
	}
}

func TestPaymentValidate(t *testing.T) {
	assert.NoError(t, validDikePayment().Validate())

	p := validDikePayment()
	p.BackRecipient = ""
	assert.True(t, errors.Is(p.Validate(), ErrValidation))

	p = validDikePayment()
	p.Type = PaymentTypeUmum
	assert.True(t, errors.Is(p.Validate(), ErrValidation), "UMUM payments carry no back transfer details")

	p.BackPaymentMethod, p.BackAccountNumber, p.BackRecipient = "", "", ""
	assert.NoError(t, p.Validate())

	p.Type = "GOLD"
	assert.True(t, errors.Is(p.Validate(), ErrValidation))
}

func TestPaymentBackTransferGuards(t *testing.T) {
	p := validDikePayment()
	assert.False(t, p.CanRequestBackTransfer(), "not approved yet")

	p.Status = PaymentSTTApproved
	assert.True(t, p.CanRequestBackTransfer())
	assert.False(t, p.CanCompleteBackTransfer())

	p.BackStatus = BackSTTRequested
	assert.False(t, p.CanRequestBackTransfer())
	assert.True(t, p.CanCompleteBackTransfer())

	p.BackStatus = BackSTTCompleted
	assert.False(t, p.CanCompleteBackTransfer())

	umum := &Payment{Type: PaymentTypeUmum, Status: PaymentSTTApproved}
	assert.False(t, umum.CanRequestBackTransfer())
}

func TestDetailedErrorIsMatchesCopies(t *testing.T) {
	err := ErrInvalidStateTransition.WithReasonf("payment %s is %s", "p1", PaymentSTTApproved)
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))
	assert.False(t, errors.Is(err, ErrAlreadyExists))
	assert.Equal(t, "payment p1 is APPROVED", err.Reason())
	assert.Empty(t, ErrInvalidStateTransition.Reason(), "shared value untouched")
}
