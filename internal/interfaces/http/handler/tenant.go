package handler

import (
	"github.com/gin-gonic/gin"
	billingapp "github.com/saas/backend/internal/application/billing"
	"github.com/saas/backend/internal/interfaces/http/dto"
)

// TenantHandler handles tenant sign-up and lookup
type TenantHandler struct {
	BaseHandler
	tenants TenantUseCases
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(tenants TenantUseCases) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// CreateTenantRequest is the sign-up payload
//
//	@Description	New tenant; the tenant starts in a seven day trial
type CreateTenantRequest struct {
	Name      string         `json:"name" binding:"required,min=2,max=100" example:"Acme Coffee"`
	Subdomain string         `json:"subdomain" binding:"required,min=3,max=63,hostname_rfc1123" example:"acme"`
	Email     string         `json:"email" binding:"required,email" example:"billing@acme.io"`
	Settings  map[string]any `json:"settings"`
}

// Create godoc
//
//	@ID				createTenant
//	@Summary		Sign up a tenant
//	@Tags			tenants
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateTenantRequest	true	"Tenant"
//	@Success		201		{object}	dto.Response{data=billingapp.TenantDTO}
//	@Failure		400		{object}	dto.Response
//	@Failure		409		{object}	dto.Response
//	@Router			/tenants [post]
func (h *TenantHandler) Create(c *gin.Context) {
	var req CreateTenantRequest
	if !h.BindJSON(c, &req) {
		return
	}

	tenant, err := h.tenants.CreateTenant(c.Request.Context(), billingapp.CreateTenantInput{
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Email:     req.Email,
		Settings:  req.Settings,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tenant)
}

// Get godoc
//
//	@ID				getTenant
//	@Summary		Get a tenant
//	@Tags			tenants
//	@Produce		json
//	@Param			tenant_id	path		string	true	"Tenant ID"
//	@Success		200			{object}	dto.Response{data=billingapp.TenantDTO}
//	@Failure		404			{object}	dto.Response
//	@Router			/tenants/{tenant_id} [get]
func (h *TenantHandler) Get(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	tenant, err := h.tenants.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}

// List returns tenants page by page
func (h *TenantHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	page, err := h.tenants.ListTenants(c.Request.Context(), toListFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}
