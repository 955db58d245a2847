package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tanafus/tender/internal/tender/service"
)

// ApprovalHandler 审批流接口
type ApprovalHandler struct {
	svc *service.ApprovalService
}

func NewApprovalHandler(svc *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// Initiate 发起审批流
// POST /api/v1/tenders/:id/approval/initiate
func (h *ApprovalHandler) Initiate(c *gin.Context) {
	var req service.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	workflow, err := h.svc.Initiate(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, workflow)
}

// Decide 当前审批级决定
// POST /api/v1/tenders/:id/approval/decide
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req service.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	workflow, err := h.svc.Decide(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, workflow)
}

// GetCurrent 当前审批流实例
// GET /api/v1/tenders/:id/approval
func (h *ApprovalHandler) GetCurrent(c *gin.Context) {
	workflow, err := h.svc.GetCurrent(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, workflow)
}

// GetHistory 全部审批轮次历史
// GET /api/v1/tenders/:id/approval/history
func (h *ApprovalHandler) GetHistory(c *gin.Context) {
	workflows, err := h.svc.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "failed to load approval history: "+err.Error())
		return
	}
	Success(c, gin.H{"items": workflows})
}
