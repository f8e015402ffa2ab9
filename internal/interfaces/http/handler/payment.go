package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/saas/backend/internal/application/billing"
	"github.com/saas/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles payment intents and refunds
type PaymentHandler struct {
	BaseHandler
	payments PaymentUseCases
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments PaymentUseCases) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreatePaymentIntentRequest opens a payment at a provider
type CreatePaymentIntentRequest struct {
	SubscriptionID *uuid.UUID        `json:"subscription_id"`
	Provider       string            `json:"provider" binding:"omitempty,max=32" example:"stripe"`
	Amount         decimal.Decimal   `json:"amount" binding:"dpositive" swaggertype:"string" example:"49.90"`
	Currency       string            `json:"currency" binding:"required,iso4217" example:"USD"`
	Method         string            `json:"method" binding:"omitempty,max=32" example:"card"`
	Description    string            `json:"description" binding:"max=255"`
	ReturnURL      string            `json:"return_url" binding:"omitempty,url"`
	CancelURL      string            `json:"cancel_url" binding:"omitempty,url"`
	Metadata       map[string]string `json:"metadata"`
}

// RefundPaymentRequest refunds all or part of a completed payment
type RefundPaymentRequest struct {
	// Amount defaults to the full payment amount
	Amount *decimal.Decimal `json:"amount" swaggertype:"string" example:"10.00"`
}

// CreateIntent godoc
//
//	@ID				createPaymentIntent
//	@Summary		Open a payment intent
//	@Description	Records a pending payment; the provider's webhook completes it
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id	path		string						true	"Tenant ID"
//	@Param			request		body		CreatePaymentIntentRequest	true	"Payment"
//	@Success		201			{object}	dto.Response{data=billingapp.PaymentIntentResult}
//	@Failure		503			{object}	dto.Response
//	@Router			/tenants/{tenant_id}/payments [post]
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req CreatePaymentIntentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.payments.CreatePaymentIntent(c.Request.Context(), billingapp.CreatePaymentIntentInput{
		TenantID:       tenantID,
		SubscriptionID: req.SubscriptionID,
		Provider:       req.Provider,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Method:         req.Method,
		Description:    req.Description,
		ReturnURL:      req.ReturnURL,
		CancelURL:      req.CancelURL,
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Refund godoc
//
//	@ID				refundPayment
//	@Summary		Refund a payment
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id	path		string					true	"Tenant ID"
//	@Param			payment_id	path		string					true	"Payment ID"
//	@Param			request		body		RefundPaymentRequest	false	"Refund"
//	@Success		200			{object}	dto.Response{data=billingapp.PaymentDTO}
//	@Failure		422			{object}	dto.Response
//	@Router			/tenants/{tenant_id}/payments/{payment_id}/refund [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	tenantID, paymentID, ok := h.ids(c)
	if !ok {
		return
	}
	var req RefundPaymentRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Refund amount must be greater than 0")
		return
	}

	payment, err := h.payments.RefundPayment(c.Request.Context(), billingapp.RefundPaymentInput{
		TenantID:  tenantID,
		PaymentID: paymentID,
		Amount:    req.Amount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// Get returns one payment
func (h *PaymentHandler) Get(c *gin.Context) {
	tenantID, paymentID, ok := h.ids(c)
	if !ok {
		return
	}
	payment, err := h.payments.GetPayment(c.Request.Context(), tenantID, paymentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// List returns the tenant's payments
func (h *PaymentHandler) List(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	page, err := h.payments.ListPayments(c.Request.Context(), tenantID, toListFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

func (h *PaymentHandler) ids(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	paymentID, ok := h.ParamUUID(c, "payment_id")
	return tenantID, paymentID, ok
}
