package handler

import (
	"context"
	"net/http"

	"github.com/eaglebank/usersync/shared/cqrs"
	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/gin-gonic/gin"
)

// EmailSender is the ad-hoc send operation used by NotificationHandler.
type EmailSender interface {
	SendCustomEmail(context.Context, cqrs.SendEmailCommand) error
}

type NotificationHandler struct {
	sender EmailSender
}

type SendEmailRequest struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=255"`
	Message string `json:"message" validate:"required"`
}

func NewNotificationHandler(sender EmailSender) *NotificationHandler {
	return &NotificationHandler{sender: sender}
}

// RegisterRoutes mounts the notification endpoints on r. A non-empty jwtSecret
// requires a bearer token.
func (h *NotificationHandler) RegisterRoutes(r gin.IRouter, jwtSecret []byte) {
	v1 := r.Group("/v1/notifications")
	if len(jwtSecret) > 0 {
		v1.Use(middleware.AuthMiddleware(jwtSecret))
	}
	v1.POST("/email", h.SendEmail)
}

// SendEmail always answers 202 for a valid request; delivery failures are only logged.
func (h *NotificationHandler) SendEmail(c *gin.Context) {
	var req SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	// the service logs the failure; the caller gets no delivery feedback
	_ = h.sender.SendCustomEmail(c.Request.Context(), cqrs.SendEmailCommand{
		To:      req.To,
		Subject: req.Subject,
		Message: req.Message,
	})

	c.Status(http.StatusAccepted)
}
