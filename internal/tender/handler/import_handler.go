package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tanafus/tender/internal/tender/service"
)

// ImportHandler 报价导入流水线接口
type ImportHandler struct {
	svc *service.ImportService
}

func NewImportHandler(svc *service.ImportService) *ImportHandler {
	return &ImportHandler{svc: svc}
}

// Parse 阶段1：解析报价文件
// POST /api/v1/bids/:id/import/parse
func (h *ImportHandler) Parse(c *gin.Context) {
	result, err := h.svc.Parse(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// MapColumns 阶段2：确认列映射
// POST /api/v1/bids/:id/import/map-columns
func (h *ImportHandler) MapColumns(c *gin.Context) {
	var req service.MapColumnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.MapColumns(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// Match 阶段3：BOQ条目对齐
// POST /api/v1/bids/:id/import/match
func (h *ImportHandler) Match(c *gin.Context) {
	var req service.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Match(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// Normalize 阶段4：汇率与单位归一化
// POST /api/v1/bids/:id/import/normalize
func (h *ImportHandler) Normalize(c *gin.Context) {
	var req service.NormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Normalize(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// Validate 阶段5（试运行）：只做校验
// POST /api/v1/bids/:id/import/validate
func (h *ImportHandler) Validate(c *gin.Context) {
	report, err := h.svc.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, report)
}

// Execute 阶段5（执行）：校验并持久化报价行
// POST /api/v1/bids/:id/import/execute
func (h *ImportHandler) Execute(c *gin.Context) {
	var req service.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	report, err := h.svc.Execute(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, report)
}
