package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"go-payment-service/common"
	"go-payment-service/domain"
	"go-payment-service/middleware"
	"go-payment-service/validator"
)

const paymentContextKey = "payment"

var sortablePaymentFields = []string{"created_at", "updated_at", "approved_at", "amount"}

type PaymentHandler struct {
	usecase     domain.PaymentUsecase
	middlewares middleware.Middlewares
}

func NewPaymentHandler(usecase domain.PaymentUsecase, middlewares middleware.Middlewares) *PaymentHandler {
	return &PaymentHandler{
		usecase:     usecase,
		middlewares: middlewares,
	}
}

func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	m := h.middlewares

	payments := rg.Group("/payments")
	payments.Use(m.Authenticator(), m.RateLimit())
	{
		payments.POST("", m.Permit(domain.RoleDike, domain.RoleUmum), h.Create)
		payments.GET("", m.PermitWithPermission(domain.PermPaymentRead), h.List)
		payments.GET("/:id", m.PermitSelfOrAdmin(h.paymentOwner), h.GetByID)
		payments.POST("/:id/approve", m.PermitWithPermission(domain.PermPaymentApprove), h.Approve)
		payments.POST("/:id/back-transfer", m.Permit(domain.RoleDike), h.RequestBackTransfer)
		payments.POST("/:id/back-transfer/complete", m.PermitWithPermission(domain.PermPaymentRefund), h.CompleteBackTransfer)
		payments.POST("/:id/proof", m.PermitWithPermission(domain.PermPaymentUpdateSelf), h.AttachProof)
	}

	internal := rg.Group("/internal/payments")
	internal.Use(m.ServiceAuthenticator())
	{
		internal.POST("/:id/approve", m.PermitWithPermission(domain.PermPaymentApprove), h.Approve)
	}
}

// paymentOwner loads the addressed payment once and keeps it for the handler.
func (h *PaymentHandler) paymentOwner(c *gin.Context) (string, error) {
	payment, err := h.usecase.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		return "", err
	}
	c.Set(paymentContextKey, payment)
	return payment.UserID, nil
}

func (h *PaymentHandler) Create(c *gin.Context) {
	var req domain.PaymentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseError(c, validator.ToDetailedError(err))
		return
	}
	req.UserID = common.GetPrincipalFromCtx(c).UserID

	payment, err := h.usecase.Create(c.Request.Context(), &req)
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseCreated(c, payment, "Payment created successfully")
}

func (h *PaymentHandler) GetByID(c *gin.Context) {
	if v, ok := c.Get(paymentContextKey); ok {
		common.ResponseOK(c, v.(*domain.Payment), "Payment found")
		return
	}

	payment, err := h.usecase.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseOK(c, payment, "Payment found")
}

func (h *PaymentHandler) List(c *gin.Context) {
	var filter domain.PaymentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		common.ResponseError(c, validator.ToDetailedError(err))
		return
	}
	var option domain.FindPageOption
	if err := c.ShouldBindQuery(&option); err != nil {
		common.ResponseError(c, validator.ToDetailedError(err))
		return
	}
	option.Sort = sanitizeSort(option.Sort)

	payments, pagination, err := h.usecase.FindPage(c.Request.Context(), &filter, &option)
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseOK(c, gin.H{"items": payments, "pagination": pagination}, "Payments found")
}

func (h *PaymentHandler) Approve(c *gin.Context) {
	payment, err := h.usecase.Approve(c.Request.Context(), &domain.PaymentApproveRequest{
		PaymentID:  c.Param("id"),
		ApprovedBy: common.GetPrincipalFromCtx(c).UserID,
	})
	if err != nil {
		common.ResponseError(c, common.MapUpstreamError(err))
		return
	}
	common.ResponseOK(c, payment, "Payment approved")
}

func (h *PaymentHandler) RequestBackTransfer(c *gin.Context) {
	payment, err := h.usecase.RequestBackTransfer(c.Request.Context(), &domain.BackTransferRequest{
		PaymentID:   c.Param("id"),
		RequestedBy: common.GetPrincipalFromCtx(c).UserID,
	})
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseOK(c, payment, "Back transfer requested")
}

func (h *PaymentHandler) CompleteBackTransfer(c *gin.Context) {
	payment, err := h.usecase.CompleteBackTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseOK(c, payment, "Back transfer completed")
}

func (h *PaymentHandler) AttachProof(c *gin.Context) {
	fileHeader, err := c.FormFile("proof")
	if err != nil {
		common.ResponseError(c, domain.ErrUploadFilesRequired.WithWrap(err))
		return
	}

	file, err := domain.NewProofFile(fileHeader)
	if err != nil {
		common.ResponseError(c, domain.ErrUploadFilesFailed.WithWrap(err))
		return
	}

	payment, err := h.usecase.AttachProof(c.Request.Context(), &domain.PaymentProofRequest{
		PaymentID: c.Param("id"),
		UserID:    common.GetPrincipalFromCtx(c).UserID,
		File:      file,
	})
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseOK(c, payment, "Proof attached")
}

// sanitizeSort keeps "field" or "field asc|desc" entries on known columns,
// since sort values reach ORDER BY verbatim.
func sanitizeSort(sort []string) []string {
	out := make([]string, 0, len(sort))
	for _, s := range sort {
		parts := strings.Fields(strings.ToLower(s))
		if len(parts) == 0 || len(parts) > 2 || !lo.Contains(sortablePaymentFields, parts[0]) {
			continue
		}
		if len(parts) == 2 && parts[1] != "asc" && parts[1] != "desc" {
			continue
		}
		out = append(out, strings.Join(parts, " "))
	}
	if len(out) == 0 {
		out = append(out, "created_at desc")
	}
	return out
}
