package domain

import (
	"context"
	"net/http"
)

/*******************************
*        Payment errors        *
*******************************/
var (
	ErrPaymentNotFound = &DetailedError{
		IDField:         "PAYMENT_NOT_FOUND",
		StatusDescField: http.StatusText(http.StatusNotFound),
		ErrorField:      "Payment not found",
		StatusCodeField: http.StatusNotFound,
	}
	ErrCourseNotFound = &DetailedError{
		IDField:         "COURSE_NOT_FOUND",
		StatusDescField: http.StatusText(http.StatusNotFound),
		ErrorField:      "Course not found",
		StatusCodeField: http.StatusNotFound,
	}
	ErrAlreadyEnrolled = &DetailedError{
		IDField:         "ALREADY_ENROLLED",
		StatusDescField: http.StatusText(http.StatusConflict),
		ErrorField:      "User is already enrolled in this course",
		StatusCodeField: http.StatusConflict,
	}
)

/******************************************
*       Payment entities and types       *
******************************************/
type PaymentType string

const (
	PaymentTypeDike PaymentType = "DIKE"
	PaymentTypeUmum PaymentType = "UMUM"
)

func (t PaymentType) IsValid() bool {
	return t == PaymentTypeDike || t == PaymentTypeUmum
}

type PaymentStatus string

const (
	PaymentSTTPaid     PaymentStatus = "PAID"
	PaymentSTTApproved PaymentStatus = "APPROVED"
)

// BackStatus tracks the cashback transfer of a DIKE payment.
type BackStatus string

const (
	BackSTTNone      BackStatus = ""
	BackSTTRequested BackStatus = "REQUESTED"
	BackSTTCompleted BackStatus = "COMPLETED"
)

type BackPaymentMethod string

const (
	BackPaymentBank   BackPaymentMethod = "BANK"
	BackPaymentOVO    BackPaymentMethod = "OVO"
	BackPaymentGoPay  BackPaymentMethod = "GOPAY"
	BackPaymentDana   BackPaymentMethod = "DANA"
	BackPaymentShopee BackPaymentMethod = "SHOPEEPAY"
)

// IsEWallet reports whether the account number of m is a phone number.
func (m BackPaymentMethod) IsEWallet() bool {
	switch m {
	case BackPaymentOVO, BackPaymentGoPay, BackPaymentDana, BackPaymentShopee:
		return true
	}
	return false
}

func (m BackPaymentMethod) IsValid() bool {
	return m == BackPaymentBank || m.IsEWallet()
}

type Payment struct {
	SQLModel
	UserID            string            `json:"user_id" gorm:"type:varchar(36);not null;index"`
	PackageID         string            `json:"package_id" gorm:"type:varchar(36);not null"`
	CourseID          string            `json:"course_id" gorm:"type:varchar(36);not null;index"`
	Type              PaymentType       `json:"type" gorm:"type:varchar(10);not null"`
	Status            PaymentStatus     `json:"status" gorm:"type:varchar(20);not null;default:'PAID';index"`
	BackStatus        BackStatus        `json:"back_status,omitempty" gorm:"type:varchar(20);not null;default:''"`
	Amount            int64             `json:"amount"`
	ProofLink         string            `json:"proof_link,omitempty" gorm:"type:text"`
	BackPaymentMethod BackPaymentMethod `json:"back_payment_method,omitempty" gorm:"type:varchar(20)"`
	BackAccountNumber string            `json:"back_account_number,omitempty" gorm:"type:varchar(50)"`
	BackRecipient     string            `json:"back_recipient,omitempty" gorm:"type:varchar(100)"`
	ApprovedAt        int64             `json:"approved_at,omitempty"`
	ApprovedBy        string            `json:"approved_by,omitempty" gorm:"type:varchar(36)"`
}

func (p *Payment) Validate() error {
	if p.UserID == "" {
		return ErrValidation.WithReason("user_id must be not empty")
	}
	if p.CourseID == "" {
		return ErrValidation.WithReason("course_id must be not empty")
	}
	if p.PackageID == "" {
		return ErrValidation.WithReason("package_id must be not empty")
	}
	if !p.Type.IsValid() {
		return ErrValidation.WithReasonf("unknown payment type %q", p.Type)
	}
	hasBack := p.BackPaymentMethod != "" || p.BackAccountNumber != "" || p.BackRecipient != ""
	switch p.Type {
	case PaymentTypeDike:
		if !p.BackPaymentMethod.IsValid() || p.BackAccountNumber == "" || p.BackRecipient == "" {
			return ErrValidation.WithReason("back_payment_method, back_account_number and back_recipient are required for DIKE payments")
		}
	case PaymentTypeUmum:
		if hasBack {
			return ErrValidation.WithReason("back transfer details are only accepted for DIKE payments")
		}
	}
	return nil
}

func (p *Payment) IsApproved() bool {
	return p.Status == PaymentSTTApproved
}

// CanRequestBackTransfer holds only for approved DIKE payments without a pending transfer.
func (p *Payment) CanRequestBackTransfer() bool {
	return p.Type == PaymentTypeDike && p.IsApproved() && p.BackStatus == BackSTTNone
}

func (p *Payment) CanCompleteBackTransfer() bool {
	return p.Type == PaymentTypeDike && p.BackStatus == BackSTTRequested
}

type PaymentFilter struct {
	ID         *string        `json:"id" form:"id"`
	UserID     *string        `json:"user_id" form:"user_id"`
	CourseID   *string        `json:"course_id" form:"course_id"`
	PackageID  *string        `json:"package_id" form:"package_id"`
	Type       *PaymentType   `json:"type" form:"type"`
	Status     *PaymentStatus `json:"status" form:"status"`
	BackStatus *BackStatus    `json:"back_status" form:"back_status"`
}

/************************************************
*       Payment usecase interfaces and types     *
************************************************/
type PaymentUsecase interface {
	Create(ctx context.Context, req *PaymentCreateRequest) (*Payment, error)
	FindByID(ctx context.Context, paymentID string) (*Payment, error)
	FindPage(ctx context.Context, filter *PaymentFilter, option *FindPageOption) ([]*Payment, *Pagination, error)
	Approve(ctx context.Context, req *PaymentApproveRequest) (*Payment, error)
	RequestBackTransfer(ctx context.Context, req *BackTransferRequest) (*Payment, error)
	CompleteBackTransfer(ctx context.Context, paymentID string) (*Payment, error)
	AttachProof(ctx context.Context, req *PaymentProofRequest) (*Payment, error)
}

type PaymentCreateRequest struct {
	UserID            string            `json:"-"`
	PackageID         string            `json:"package_id" binding:"required"`
	CourseID          string            `json:"course_id" binding:"required"`
	Type              PaymentType       `json:"type" binding:"required,payment_type"`
	ProofLink         string            `json:"proof_link" binding:"omitempty,url"`
	BackPaymentMethod BackPaymentMethod `json:"back_payment_method" binding:"omitempty,back_payment_method"`
	BackAccountNumber string            `json:"back_account_number" binding:"omitempty,max=50"`
	BackRecipient     string            `json:"back_recipient" binding:"omitempty,max=100"`
}

type PaymentApproveRequest struct {
	PaymentID  string `json:"-"`
	ApprovedBy string `json:"-"`
}

type BackTransferRequest struct {
	PaymentID   string `json:"-"`
	RequestedBy string `json:"-"`
}

type PaymentProofRequest struct {
	PaymentID string     `json:"-"`
	UserID    string     `json:"-"`
	File      *ProofFile `json:"-"`
}
