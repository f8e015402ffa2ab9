package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saas/backend/internal/interfaces/http/dto"
)

// DefaultSignatureHeader carries the signature for providers without their own header
const DefaultSignatureHeader = "X-Webhook-Signature"

// WebhookHandler receives payment provider notifications
type WebhookHandler struct {
	BaseHandler
	payments PaymentUseCases
	headers  map[string]string
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(payments PaymentUseCases) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		headers: map[string]string{
			"stripe": "Stripe-Signature",
		},
	}
}

// Receive godoc
//
//	@ID				receivePaymentWebhook
//	@Summary		Payment provider webhook
//	@Description	Verifies the signature over the raw body before anything is read or written.
//	@Description	Redelivered notifications are acknowledged with duplicate=true.
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string	true	"Provider name"
//	@Success		200			{object}	dto.Response{data=billingapp.WebhookOutcome}
//	@Failure		401			{object}	dto.Response
//	@Failure		404			{object}	dto.Response
//	@Router			/webhooks/{provider} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}

	header, ok := h.headers[provider]
	if !ok {
		header = DefaultSignatureHeader
	}

	outcome, err := h.payments.ProcessPaymentWebhook(c.Request.Context(), provider, c.GetHeader(header), payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, outcome)
}
