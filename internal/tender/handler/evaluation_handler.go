package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tanafus/tender/internal/tender/service"
)

// EvaluationHandler 评标接口
type EvaluationHandler struct {
	svc *service.EvaluationService
}

func NewEvaluationHandler(svc *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

// SetupPanel 设置评标小组
// POST /api/v1/tenders/:id/evaluation/setup
func (h *EvaluationHandler) SetupPanel(c *gin.Context) {
	var req service.SetupPanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	panel, err := h.svc.SetupPanel(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, panel)
}

// GetPanel 获取评标小组
// GET /api/v1/tenders/:id/evaluation/panel
func (h *EvaluationHandler) GetPanel(c *gin.Context) {
	panel, err := h.svc.GetPanel(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, panel)
}

// SubmitScores 提交技术评分
// POST /api/v1/tenders/:id/evaluation/scores
func (h *EvaluationHandler) SubmitScores(c *gin.Context) {
	var req service.SubmitScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.SubmitScores(c.Request.Context(), c.Param("id"), GetUserID(c), &req); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"submitted": len(req.Scores)})
}

// ListScores 查询评分
// GET /api/v1/tenders/:id/evaluation/scores
func (h *EvaluationHandler) ListScores(c *gin.Context) {
	scores, err := h.svc.ListScores(c.Request.Context(), c.Param("id"),
		GetUserID(c), HasRole(c, "tender_manager"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": scores})
}

// LockScores 锁定技术评分
// POST /api/v1/tenders/:id/evaluation/lock-scores
//
// The lock is irreversible for the cycle, so the caller must confirm
// explicitly.
func (h *EvaluationHandler) LockScores(c *gin.Context) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if !req.Confirm {
		BadRequest(c, "confirm must be true to lock technical scores")
		return
	}

	panel, err := h.svc.LockTechnicalScores(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, panel)
}

// CalculateCommercial 计算商务评分
// POST /api/v1/tenders/:id/evaluation/calculate-commercial-scores
func (h *EvaluationHandler) CalculateCommercial(c *gin.Context) {
	results, err := h.svc.CalculateCommercialScores(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": results})
}

// CalculateCombined 计算综合评分与排名
// POST /api/v1/tenders/:id/evaluation/calculate-combined
func (h *EvaluationHandler) CalculateCombined(c *gin.Context) {
	var req service.CombinedScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	entries, err := h.svc.CalculateCombinedScores(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": entries})
}

// ComparableSheet 多投标比价表
// GET /api/v1/tenders/:id/evaluation/comparable-sheet
func (h *EvaluationHandler) ComparableSheet(c *gin.Context) {
	sheet, err := h.svc.GetComparableSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, sheet)
}

// Scorecard 综合评分卡
// GET /api/v1/tenders/:id/evaluation/combined-scorecard
func (h *EvaluationHandler) Scorecard(c *gin.Context) {
	entries, err := h.svc.GetScorecard(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": entries})
}
