package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tanafus/tender/internal/tender/service"
)

// TenderHandler 招标生命周期接口
type TenderHandler struct {
	svc *service.LifecycleService
}

func NewTenderHandler(svc *service.LifecycleService) *TenderHandler {
	return &TenderHandler{svc: svc}
}

// List 招标列表
// GET /api/v1/tenders?status=xxx&search=xxx
func (h *TenderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := map[string]string{}
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if search := c.Query("search"); search != "" {
		filters["search"] = search
	}

	tenders, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "failed to list tenders: "+err.Error())
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: tenders,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// Create 创建招标
// POST /api/v1/tenders
func (h *TenderHandler) Create(c *gin.Context) {
	var req service.CreateTenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	tender, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, tender)
}

// Get 招标详情（含BOQ与评标准则）
// GET /api/v1/tenders/:id
func (h *TenderHandler) Get(c *gin.Context) {
	tender, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, tender)
}

// Publish 发布招标
// POST /api/v1/tenders/:id/publish
func (h *TenderHandler) Publish(c *gin.Context) {
	tender, err := h.svc.Publish(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, tender)
}

// Cancel 取消招标
// POST /api/v1/tenders/:id/cancel
func (h *TenderHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "a cancellation reason is required")
		return
	}

	tender, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, tender)
}

// OpenBids 开标
// POST /api/v1/tenders/:id/bids/open
func (h *TenderHandler) OpenBids(c *gin.Context) {
	tender, err := h.svc.OpenBids(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, tender)
}
