package service

import (
	"errors"
	"fmt"
	"strings"
)

// 领域错误码（全部可由调用方修正后重试，对应4xx）
const (
	CodeInvalidState           = "invalid_state"
	CodeTerminalState          = "terminal_state"
	CodeDecisionAlreadyMade    = "decision_already_made"
	CodeMissingRequiredColumn  = "missing_required_column"
	CodeMissingJustification   = "missing_justification"
	CodeIncompleteScores       = "incomplete_scores"
	CodeScoresLocked           = "scores_locked"
	CodeWeightMismatch         = "weight_mismatch"
	CodeAlreadyImported        = "already_imported"
	CodeConcurrentModification = "concurrent_modification"
	CodeNoEligibleBids         = "no_eligible_bids"
	CodeValidationFailed       = "validation_failed"
	CodeNotFound               = "not_found"
	CodeForbidden              = "forbidden"
)

// DomainError 领域错误：机器可读码 + 人类可读消息
//
// Fields enumerates every violated field in one response instead of failing
// fast on the first.
type DomainError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func (e *DomainError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewDomainError 创建领域错误
func NewDomainError(code, message string, fields ...string) *DomainError {
	return &DomainError{Code: code, Message: message, Fields: fields}
}

// ErrorCode 提取错误码；非领域错误返回空串
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// AsDomainError 提取领域错误
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
