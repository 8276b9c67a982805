package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"go-payment-service/common"
	"go-payment-service/domain"
	"go-payment-service/pkg/log"
	"go-payment-service/pkg/upload"
	"go-payment-service/pkg/utils"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (*domain.Payment, error)
	FindPage(ctx context.Context, filter *domain.PaymentFilter, option *domain.FindPageOption) ([]*domain.Payment, *domain.Pagination, error)
	UpdateFields(ctx context.Context, paymentID string, fields map[string]any) error
	TransitionStatus(ctx context.Context, paymentID string, guard domain.PaymentFilter, fields map[string]any) (bool, error)
}

type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier hands notification jobs to the dispatcher. Its errors never fail
// the operation that produced the job.
type Notifier interface {
	Enqueue(ctx context.Context, kind domain.NotificationKind, payload any) error
}

type Uploader interface {
	Put(ctx context.Context, file *upload.File, subPath string) (*upload.Stored, error)
	Remove(ctx context.Context, stored *upload.Stored) error
}

type Dependencies struct {
	Repo       PaymentRepository
	Tx         TxManager
	Enrollment domain.EnrollmentUsecase
	Catalog    domain.CourseCatalog
	Notifier   Notifier
	Uploader   Uploader
	Logger     log.Logger
}

type paymentUsecase struct {
	repo       PaymentRepository
	tx         TxManager
	enrollment domain.EnrollmentUsecase
	catalog    domain.CourseCatalog
	notifier   Notifier
	uploader   Uploader
	logger     log.Logger
	now        func() int64
}

func NewPaymentUsecase(deps Dependencies) domain.PaymentUsecase {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &paymentUsecase{
		repo:       deps.Repo,
		tx:         deps.Tx,
		enrollment: deps.Enrollment,
		catalog:    deps.Catalog,
		notifier:   deps.Notifier,
		uploader:   deps.Uploader,
		logger:     logger,
		now:        utils.NowUnixMillis,
	}
}

/****************************
*        Create / read      *
****************************/

// Create records a payment in PAID. The course must exist and the user must
// not be enrolled yet. The package price is copied when the course service
// answers; an unavailable upstream only leaves the amount empty.
func (u *paymentUsecase) Create(ctx context.Context, req *domain.PaymentCreateRequest) (*domain.Payment, error) {
	payment := &domain.Payment{
		SQLModel:          domain.SQLModel{ID: uuid.NewString()},
		UserID:            req.UserID,
		PackageID:         req.PackageID,
		CourseID:          req.CourseID,
		Type:              req.Type,
		Status:            domain.PaymentSTTPaid,
		BackStatus:        domain.BackSTTNone,
		ProofLink:         req.ProofLink,
		BackPaymentMethod: req.BackPaymentMethod,
		BackAccountNumber: req.BackAccountNumber,
		BackRecipient:     req.BackRecipient,
	}
	if err := payment.Validate(); err != nil {
		return nil, err
	}

	course, err := u.catalog.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, common.MapUpstreamError(err)
	}
	if !course.Published {
		return nil, domain.ErrValidation.WithReasonf("course %s is not open for enrollment", course.ID)
	}

	enrolled, err := u.enrollment.IsEnrolled(ctx, req.UserID, req.CourseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, domain.ErrAlreadyEnrolled.WithReasonf("user %s is already enrolled in course %s", req.UserID, req.CourseID)
	}

	pkg, err := u.catalog.GetPackage(ctx, req.PackageID)
	switch {
	case err == nil:
		if pkg.CourseID != "" && pkg.CourseID != req.CourseID {
			return nil, domain.ErrValidation.WithReasonf("package %s does not belong to course %s", req.PackageID, req.CourseID)
		}
		payment.Amount = pkg.Price
	case errors.Is(err, domain.ErrPackageNotFound):
		return nil, err
	default:
		u.logger.WarnContext(ctx, "Package lookup failed, creating payment without amount",
			log.PaymentID(payment.ID), log.String("package_id", req.PackageID), log.Error(err))
	}

	if err := u.repo.Create(ctx, payment); err != nil {
		return nil, domain.ErrInternalServerError.WithTrace(err)
	}
	u.logger.InfoContext(ctx, "Payment created",
		log.PaymentID(payment.ID), log.UserID(payment.UserID), log.CourseID(payment.CourseID))

	u.notify(ctx, domain.NotificationPaymentConfirmation, &domain.PaymentConfirmationPayload{
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		CourseID:  payment.CourseID,
		PackageID: payment.PackageID,
		Type:      payment.Type,
		Amount:    payment.Amount,
	})
	return payment, nil
}

func (u *paymentUsecase) FindByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := u.repo.FindByID(ctx, paymentID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound.WithReasonf("payment %s does not exist", paymentID)
	}
	if err != nil {
		return nil, domain.ErrInternalServerError.WithTrace(err)
	}
	return payment, nil
}

func (u *paymentUsecase) FindPage(ctx context.Context, filter *domain.PaymentFilter, option *domain.FindPageOption) ([]*domain.Payment, *domain.Pagination, error) {
	payments, pagination, err := u.repo.FindPage(ctx, filter, option)
	if err != nil {
		return nil, nil, domain.ErrInternalServerError.WithTrace(err)
	}
	return payments, pagination, nil
}

/****************************
*         Approval          *
****************************/

// Approve moves a PAID payment to APPROVED and creates its enrollment in the
// same transaction. Approving an APPROVED payment succeeds without changes,
// so retried webhooks are harmless. The confirmation is enqueued only after
// commit and only by the call that made the transition.
func (u *paymentUsecase) Approve(ctx context.Context, req *domain.PaymentApproveRequest) (*domain.Payment, error) {
	var (
		payment      *domain.Payment
		enrollment   *domain.Enrollment
		transitioned bool
	)

	err := u.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := u.FindByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}

		if current.Status == domain.PaymentSTTPaid {
			approvedAt := u.now()
			ok, err := u.repo.TransitionStatus(ctx, current.ID,
				domain.PaymentFilter{Status: lo.ToPtr(domain.PaymentSTTPaid)},
				map[string]any{
					"status":      domain.PaymentSTTApproved,
					"approved_at": approvedAt,
					"approved_by": req.ApprovedBy,
				})
			if err != nil {
				return domain.ErrInternalServerError.WithTrace(err)
			}
			if ok {
				current.Status = domain.PaymentSTTApproved
				current.ApprovedAt = approvedAt
				current.ApprovedBy = req.ApprovedBy
				transitioned = true
			} else if current, err = u.FindByID(ctx, req.PaymentID); err != nil {
				return err
			}
		}

		if !current.IsApproved() {
			return domain.ErrInvalidStateTransition.WithReasonf("payment %s is %s", current.ID, current.Status)
		}

		enrollment, err = u.enrollment.EnsureEnrollment(ctx, current.UserID, current.CourseID, current.ID)
		if err != nil {
			return err
		}
		payment = current
		return nil
	})
	if err != nil {
		u.logger.WarnContext(ctx, "Payment approval failed", log.PaymentID(req.PaymentID), log.Error(err))
		return nil, err
	}

	if !transitioned {
		u.logger.InfoContext(ctx, "Payment already approved", log.PaymentID(payment.ID))
		return payment, nil
	}

	u.logger.InfoContext(ctx, "Payment approved",
		log.PaymentID(payment.ID), log.String("approved_by", req.ApprovedBy), log.String("enrollment_id", enrollment.ID))
	u.notify(ctx, domain.NotificationEnrollmentConfirmation, &domain.EnrollmentConfirmationPayload{
		EnrollmentID: enrollment.ID,
		PaymentID:    payment.ID,
		UserID:       payment.UserID,
		CourseID:     payment.CourseID,
	})
	return payment, nil
}

/****************************
*       Back transfer       *
****************************/

func (u *paymentUsecase) RequestBackTransfer(ctx context.Context, req *domain.BackTransferRequest) (*domain.Payment, error) {
	payment, err := u.FindByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if req.RequestedBy != "" && req.RequestedBy != payment.UserID {
		return nil, domain.ErrForbidden.WithReason("only the payer can request a back transfer")
	}
	if !payment.CanRequestBackTransfer() {
		return nil, invalidBackTransfer(payment, domain.BackSTTRequested)
	}

	return u.transitionBack(ctx, payment,
		domain.PaymentFilter{
			Type:       lo.ToPtr(domain.PaymentTypeDike),
			Status:     lo.ToPtr(domain.PaymentSTTApproved),
			BackStatus: lo.ToPtr(domain.BackSTTNone),
		},
		domain.BackSTTRequested)
}

func (u *paymentUsecase) CompleteBackTransfer(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := u.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.CanCompleteBackTransfer() {
		return nil, invalidBackTransfer(payment, domain.BackSTTCompleted)
	}

	return u.transitionBack(ctx, payment,
		domain.PaymentFilter{BackStatus: lo.ToPtr(domain.BackSTTRequested)},
		domain.BackSTTCompleted)
}

func (u *paymentUsecase) transitionBack(ctx context.Context, payment *domain.Payment, guard domain.PaymentFilter, next domain.BackStatus) (*domain.Payment, error) {
	ok, err := u.repo.TransitionStatus(ctx, payment.ID, guard, map[string]any{"back_status": next})
	if err != nil {
		return nil, domain.ErrInternalServerError.WithTrace(err)
	}
	if !ok {
		return nil, domain.ErrInvalidStateTransition.WithReasonf("payment %s changed concurrently", payment.ID)
	}

	payment.BackStatus = next
	u.logger.InfoContext(ctx, "Back transfer updated",
		log.PaymentID(payment.ID), log.String("back_status", string(next)),
		log.String("account", utils.MaskAccountNumber(payment.BackAccountNumber)))
	return payment, nil
}

func invalidBackTransfer(payment *domain.Payment, next domain.BackStatus) error {
	if payment.Type != domain.PaymentTypeDike {
		return domain.ErrInvalidStateTransition.WithReasonf("payment %s is %s, back transfers apply to DIKE payments only", payment.ID, payment.Type)
	}
	from := payment.BackStatus
	if from == domain.BackSTTNone {
		from = "NONE"
	}
	return domain.ErrInvalidStateTransition.WithReasonf("payment %s: back transfer cannot move from %s to %s while payment is %s",
		payment.ID, from, next, payment.Status)
}

/****************************
*           Proof           *
****************************/

func (u *paymentUsecase) AttachProof(ctx context.Context, req *domain.PaymentProofRequest) (*domain.Payment, error) {
	if err := req.File.Validate(); err != nil {
		return nil, err
	}

	payment, err := u.FindByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if req.UserID != payment.UserID {
		return nil, domain.ErrForbidden.WithReason("only the payer can attach a proof")
	}

	stored, err := u.uploader.Put(ctx, &upload.File{
		Name:    req.File.Name,
		Mime:    req.File.Mime,
		Content: req.File.Content,
	}, fmt.Sprintf("payments/%s", payment.ID))
	if err != nil {
		return nil, domain.ErrUploadFilesFailed.WithTrace(err)
	}

	if err := u.repo.UpdateFields(ctx, payment.ID, map[string]any{"proof_link": stored.URL}); err != nil {
		if rmErr := u.uploader.Remove(ctx, stored); rmErr != nil {
			u.logger.WarnContext(ctx, "Failed to remove orphaned proof",
				log.PaymentID(payment.ID), log.String("storage_path", stored.StoragePath), log.Error(rmErr))
		}
		return nil, domain.ErrInternalServerError.WithTrace(err)
	}

	payment.ProofLink = stored.URL
	return payment, nil
}

func (u *paymentUsecase) notify(ctx context.Context, kind domain.NotificationKind, payload any) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Enqueue(ctx, kind, payload); err != nil {
		u.logger.WarnContext(ctx, "Notification not enqueued",
			log.JobKind(string(kind)), log.Error(err))
	}
}
