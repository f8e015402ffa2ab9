package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/saas/backend/internal/application/billing"
	"github.com/saas/backend/internal/interfaces/http/dto"
)

// Document link lifetimes
const (
	DefaultDocumentURLTTL = 15 * time.Minute
	MaxDocumentURLTTL     = 7 * 24 * time.Hour
)

// InvoiceHandler handles invoice lifecycle actions
type InvoiceHandler struct {
	BaseHandler
	invoices InvoiceUseCases
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices InvoiceUseCases) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

type invoiceAction func(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error)

func (h *InvoiceHandler) run(c *gin.Context, action invoiceAction) {
	tenantID, invoiceID, ok := h.ids(c)
	if !ok {
		return
	}
	invoice, err := action(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Issue godoc
//
//	@ID				issueInvoice
//	@Summary		Issue a draft invoice
//	@Description	Pushes the draft to the invoice provider and marks it pending
//	@Tags			invoices
//	@Produce		json
//	@Param			tenant_id	path		string	true	"Tenant ID"
//	@Param			invoice_id	path		string	true	"Invoice ID"
//	@Success		200			{object}	dto.Response{data=billingapp.InvoiceDTO}
//	@Failure		422			{object}	dto.Response
//	@Failure		503			{object}	dto.Response
//	@Router			/tenants/{tenant_id}/invoices/{invoice_id}/issue [post]
func (h *InvoiceHandler) Issue(c *gin.Context) {
	h.run(c, h.invoices.IssueInvoice)
}

// Send emails the invoice to the tenant through the provider
func (h *InvoiceHandler) Send(c *gin.Context) {
	h.run(c, h.invoices.SendInvoice)
}

// MarkPaid marks the invoice as paid
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	h.run(c, h.invoices.MarkInvoicePaid)
}

// Cancel cancels an unpaid invoice
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	h.run(c, h.invoices.CancelInvoice)
}

// Archive stores the provider's PDF in the document store
func (h *InvoiceHandler) Archive(c *gin.Context) {
	h.run(c, h.invoices.ArchiveInvoiceDocument)
}

// Get returns one invoice
func (h *InvoiceHandler) Get(c *gin.Context) {
	h.run(c, h.invoices.GetInvoice)
}

// DocumentURLRequest selects the link lifetime
type DocumentURLRequest struct {
	ExpiresIn string `form:"expires_in" example:"15m"`
}

// DocumentURL godoc
//
//	@ID				getInvoiceDocumentURL
//	@Summary		Presign an archived invoice document
//	@Tags			invoices
//	@Produce		json
//	@Param			tenant_id	path		string	true	"Tenant ID"
//	@Param			invoice_id	path		string	true	"Invoice ID"
//	@Param			expires_in	query		string	false	"Link lifetime, e.g. 15m"
//	@Success		200			{object}	dto.Response{data=billingapp.DocumentURL}
//	@Failure		422			{object}	dto.Response
//	@Router			/tenants/{tenant_id}/invoices/{invoice_id}/document [get]
func (h *InvoiceHandler) DocumentURL(c *gin.Context) {
	tenantID, invoiceID, ok := h.ids(c)
	if !ok {
		return
	}
	var req DocumentURLRequest
	if !h.BindQuery(c, &req) {
		return
	}

	ttl := DefaultDocumentURLTTL
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 || d > MaxDocumentURLTTL {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "expires_in must be a positive duration of at most 168h")
			return
		}
		ttl = d
	}

	link, err := h.invoices.InvoiceDocumentURL(c.Request.Context(), tenantID, invoiceID, ttl)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, link)
}

// List returns the tenant's invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	page, err := h.invoices.ListInvoices(c.Request.Context(), tenantID, toListFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

func (h *InvoiceHandler) ids(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	invoiceID, ok := h.ParamUUID(c, "invoice_id")
	return tenantID, invoiceID, ok
}
