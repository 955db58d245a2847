package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tanafus/tender/internal/tender/service"
)

// BidHandler 投标台账接口
type BidHandler struct {
	svc *service.BidService
}

func NewBidHandler(svc *service.BidService) *BidHandler {
	return &BidHandler{svc: svc}
}

// Submit 登记投标
// POST /api/v1/tenders/:id/bids
func (h *BidHandler) Submit(c *gin.Context) {
	var req service.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	bid, err := h.svc.Submit(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, bid)
}

// List 招标下全部投标
// GET /api/v1/tenders/:id/bids
func (h *BidHandler) List(c *gin.Context) {
	bids, err := h.svc.ListByTender(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "failed to list bids: "+err.Error())
		return
	}
	Success(c, gin.H{"items": bids})
}

// Get 投标详情
// GET /api/v1/bids/:id
func (h *BidHandler) Get(c *gin.Context) {
	bid, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, bid)
}

type lateDecisionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AcceptLate 接受迟交投标
// POST /api/v1/bids/:id/accept-late
func (h *BidHandler) AcceptLate(c *gin.Context) {
	var req lateDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "a reason is required")
		return
	}

	bid, err := h.svc.AcceptLate(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, bid)
}

// RejectLate 拒绝迟交投标
// POST /api/v1/bids/:id/reject-late
func (h *BidHandler) RejectLate(c *gin.Context) {
	var req lateDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "a reason is required")
		return
	}

	bid, err := h.svc.RejectLate(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, bid)
}

// Disqualify 废标
// POST /api/v1/bids/:id/disqualify
func (h *BidHandler) Disqualify(c *gin.Context) {
	var req lateDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "a reason is required")
		return
	}

	bid, err := h.svc.Disqualify(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, bid)
}

// UploadPricingFile 上传报价文件
// POST /api/v1/bids/:id/pricing-file (multipart)
func (h *BidHandler) UploadPricingFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "a pricing file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		InternalError(c, "failed to read uploaded file: "+err.Error())
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	bid, err := h.svc.AttachPricingFile(c.Request.Context(), c.Param("id"),
		fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, bid)
}
