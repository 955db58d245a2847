package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tanafus/tender/internal/tender/service"
)

// Handlers 处理器集合
type Handlers struct {
	Tender     *TenderHandler
	Bid        *BidHandler
	Import     *ImportHandler
	Evaluation *EvaluationHandler
	Approval   *ApprovalHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Tender:     NewTenderHandler(svc.Lifecycle),
		Bid:        NewBidHandler(svc.Bid),
		Import:     NewImportHandler(svc.Import),
		Evaluation: NewEvaluationHandler(svc.Evaluation),
		Approval:   NewApprovalHandler(svc.Approval),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// 领域错误码 → 业务码（code/100为HTTP状态）
var domainErrorCodes = map[string]int{
	service.CodeValidationFailed:       40001,
	service.CodeMissingRequiredColumn:  40002,
	service.CodeMissingJustification:   40003,
	service.CodeWeightMismatch:         40004,
	service.CodeIncompleteScores:       40005,
	service.CodeForbidden:              40300,
	service.CodeNotFound:               40400,
	service.CodeInvalidState:           40901,
	service.CodeTerminalState:          40902,
	service.CodeDecisionAlreadyMade:    40903,
	service.CodeScoresLocked:           40904,
	service.CodeAlreadyImported:        40905,
	service.CodeConcurrentModification: 40906,
	service.CodeNoEligibleBids:         42201,
}

// RespondError 错误统一出口：领域错误按码映射，其余按500处理
//
// Field lists travel in the data payload so a client can highlight every
// violated input at once.
func RespondError(c *gin.Context, err error) {
	de, ok := service.AsDomainError(err)
	if !ok {
		InternalError(c, err.Error())
		return
	}

	code, ok := domainErrorCodes[de.Code]
	if !ok {
		code = 50000
	}
	statusCode := code / 100

	resp := Response{
		Code:    code,
		Message: de.Message,
	}
	if len(de.Fields) > 0 {
		resp.Data = gin.H{"error": de.Code, "fields": de.Fields}
	} else {
		resp.Data = gin.H{"error": de.Code}
	}
	c.JSON(statusCode, resp)
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// HasRole 当前用户是否具备角色（tender_admin视为全量角色）
func HasRole(c *gin.Context, role string) bool {
	raw, exists := c.Get("roles")
	if !exists {
		return false
	}
	roles, ok := raw.([]string)
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role || r == "tender_admin" {
			return true
		}
	}
	return false
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
