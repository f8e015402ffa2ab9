package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/saas/backend/internal/interfaces/http/dto"
)

// AdminHandler exposes operator actions: dead-letter triage and on-demand expiry sweeps
type AdminHandler struct {
	BaseHandler
	deadLetters DeadLetterUseCases
	expiry      ExpiryRunner
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(deadLetters DeadLetterUseCases, expiry ExpiryRunner) *AdminHandler {
	return &AdminHandler{deadLetters: deadLetters, expiry: expiry}
}

// ListDeadLetters godoc
//
//	@ID				listDeadLetters
//	@Summary		List dead-lettered jobs
//	@Tags			admin
//	@Produce		json
//	@Param			page		query		int	false	"Page"
//	@Param			page_size	query		int	false	"Page size"
//	@Success		200			{object}	dto.Response{data=[]billingapp.DeadLetterDTO}
//	@Router			/admin/dead-letters [get]
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	page, err := h.deadLetters.ListDeadLetters(c.Request.Context(), toListFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// RequeueDeadLetter godoc
//
//	@ID				requeueDeadLetter
//	@Summary		Requeue a dead-lettered job
//	@Description	The job keeps its event id, so idempotent handlers still skip work already done
//	@Tags			admin
//	@Produce		json
//	@Param			id	path		string	true	"Dead letter ID"
//	@Success		200	{object}	dto.Response{data=billingapp.DeadLetterDTO}
//	@Failure		422	{object}	dto.Response
//	@Router			/admin/dead-letters/{id}/requeue [post]
func (h *AdminHandler) RequeueDeadLetter(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	letter, err := h.deadLetters.RequeueDeadLetter(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, letter)
}

// DiscardDeadLetter acknowledges a dead-lettered job without replaying it
func (h *AdminHandler) DiscardDeadLetter(c *gin.Context) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	letter, err := h.deadLetters.DiscardDeadLetter(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, letter)
}

// RunExpiry runs the subscription and trial expiry sweeps now
func (h *AdminHandler) RunExpiry(c *gin.Context) {
	result, err := h.expiry.RunOnce(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
