package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/saas/backend/internal/application/billing"
	"github.com/saas/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// SubscriptionHandler handles a tenant's subscriptions
type SubscriptionHandler struct {
	BaseHandler
	subscriptions SubscriptionUseCases
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(subscriptions SubscriptionUseCases) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// CreateSubscriptionRequest opens a subscription in trial
type CreateSubscriptionRequest struct {
	Plan     string          `json:"plan" binding:"required,oneof=monthly yearly" example:"monthly"`
	Amount   decimal.Decimal `json:"amount" binding:"dpositive" swaggertype:"string" example:"49.90"`
	Currency string          `json:"currency" binding:"required,iso4217" example:"USD"`
}

// ActivateSubscriptionRequest activates a subscription without a payment
type ActivateSubscriptionRequest struct {
	EndsAt time.Time `json:"ends_at" binding:"required" example:"2025-01-01T00:00:00Z"`
}

// Create godoc
//
//	@ID				createSubscription
//	@Summary		Create a subscription
//	@Description	Creates a trial subscription; it becomes active when its first payment completes
//	@Tags			subscriptions
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id	path		string						true	"Tenant ID"
//	@Param			request		body		CreateSubscriptionRequest	true	"Subscription"
//	@Success		201			{object}	dto.Response{data=billingapp.SubscriptionDTO}
//	@Failure		409			{object}	dto.Response
//	@Router			/tenants/{tenant_id}/subscriptions [post]
func (h *SubscriptionHandler) Create(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req CreateSubscriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptions.CreateSubscription(c.Request.Context(), billingapp.CreateSubscriptionInput{
		TenantID: tenantID,
		Plan:     req.Plan,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, sub)
}

// Activate godoc
//
//	@ID				activateSubscription
//	@Summary		Activate a subscription manually
//	@Tags			subscriptions
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id		path		string						true	"Tenant ID"
//	@Param			subscription_id	path		string						true	"Subscription ID"
//	@Param			request			body		ActivateSubscriptionRequest	true	"Period end"
//	@Success		200				{object}	dto.Response{data=billingapp.SubscriptionDTO}
//	@Router			/tenants/{tenant_id}/subscriptions/{subscription_id}/activate [post]
func (h *SubscriptionHandler) Activate(c *gin.Context) {
	tenantID, subID, ok := h.ids(c)
	if !ok {
		return
	}
	var req ActivateSubscriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptions.ActivateSubscription(c.Request.Context(), billingapp.ActivateSubscriptionInput{
		TenantID:       tenantID,
		SubscriptionID: subID,
		EndsAt:         req.EndsAt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sub)
}

// Cancel cancels a subscription; it keeps running until its period ends
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	tenantID, subID, ok := h.ids(c)
	if !ok {
		return
	}
	sub, err := h.subscriptions.CancelSubscription(c.Request.Context(), tenantID, subID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sub)
}

// Suspend suspends a subscription
func (h *SubscriptionHandler) Suspend(c *gin.Context) {
	tenantID, subID, ok := h.ids(c)
	if !ok {
		return
	}
	sub, err := h.subscriptions.SuspendSubscription(c.Request.Context(), tenantID, subID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sub)
}

// Get returns one subscription
func (h *SubscriptionHandler) Get(c *gin.Context) {
	tenantID, subID, ok := h.ids(c)
	if !ok {
		return
	}
	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), tenantID, subID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sub)
}

// List returns the tenant's subscriptions
func (h *SubscriptionHandler) List(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	page, err := h.subscriptions.ListSubscriptions(c.Request.Context(), tenantID, toListFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

func (h *SubscriptionHandler) ids(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	subID, ok := h.ParamUUID(c, "subscription_id")
	return tenantID, subID, ok
}
