package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"go-payment-service/common"
	"go-payment-service/domain"
	"go-payment-service/middleware"
	"go-payment-service/validator"
)

type NotificationHandler struct {
	usecase     domain.NotificationUsecase
	middlewares middleware.Middlewares
}

func NewNotificationHandler(usecase domain.NotificationUsecase, middlewares middleware.Middlewares) *NotificationHandler {
	return &NotificationHandler{
		usecase:     usecase,
		middlewares: middlewares,
	}
}

func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	m := h.middlewares

	internal := rg.Group("/internal/notifications")
	internal.Use(m.ServiceAuthenticator())
	{
		internal.POST("", m.PermitWithPermission(domain.PermNotificationSend), h.Enqueue)
	}

	admin := rg.Group("/admin/notifications")
	admin.Use(m.Authenticator(), m.PermitWithPermission(domain.PermNotificationManage))
	{
		admin.GET("/dead-letters", h.ListDeadLetters)
		admin.POST("/dead-letters/:id/requeue", h.RequeueDeadLetter)
	}
}

func (h *NotificationHandler) Enqueue(c *gin.Context) {
	var req domain.NotificationEnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseError(c, validator.ToDetailedError(err))
		return
	}

	if err := h.usecase.Enqueue(c.Request.Context(), req.Kind, req.Payload); err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseAccepted(c, gin.H{"kind": req.Kind}, "Notification queued")
}

func (h *NotificationHandler) ListDeadLetters(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			common.ResponseBadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	letters, err := h.usecase.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseOK(c, letters, "Dead letters retrieved successfully")
}

func (h *NotificationHandler) RequeueDeadLetter(c *gin.Context) {
	if err := h.usecase.RequeueDeadLetter(c.Request.Context(), c.Param("id")); err != nil {
		common.ResponseError(c, err)
		return
	}
	common.ResponseAccepted(c, gin.H{"job_id": c.Param("id")}, "Dead letter requeued")
}
