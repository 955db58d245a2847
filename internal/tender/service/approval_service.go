package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 否决/退回意见的最低长度（字符数）
const minAdverseCommentLen = 10

// ApprovalService 顺序多级审批流
//
// Strictly sequential: only the single active level can decide. An approve
// advances the chain or, at the last level, awards the tender; a reject or
// a return terminates the instance, and a later re-initiation starts a
// fresh cycle. Decided levels are immutable.
type ApprovalService struct {
	approvalRepo *repository.ApprovalRepository
	tenderRepo   *repository.TenderRepository
	evalRepo     *repository.EvaluationRepository
	events       *EventPublisher
	logger       *zap.Logger
}

func NewApprovalService(
	approvalRepo *repository.ApprovalRepository,
	tenderRepo *repository.TenderRepository,
	evalRepo *repository.EvaluationRepository,
	events *EventPublisher,
	logger *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		approvalRepo: approvalRepo,
		tenderRepo:   tenderRepo,
		evalRepo:     evalRepo,
		events:       events,
		logger:       logger,
	}
}

// ApprovalLevelInput 审批级定义
type ApprovalLevelInput struct {
	ApproverID string     `json:"approver_id" binding:"required"`
	Deadline   *time.Time `json:"deadline"`
}

// InitiateRequest 发起审批请求
type InitiateRequest struct {
	Levels []ApprovalLevelInput `json:"levels" binding:"required"`
}

// Initiate 发起审批流
//
// Requires combined scores to be calculated. A new cycle can only start
// when no workflow exists yet or the previous one ended in reject or
// return-for-revision; an in-progress or approved instance blocks it.
func (s *ApprovalService) Initiate(ctx context.Context, tenderID, actor string, req *InitiateRequest) (*entity.ApprovalWorkflow, error) {
	tender, err := s.tenderRepo.FindByID(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}
	if tender.Status != entity.TenderStatusEvaluation {
		return nil, NewDomainError(CodeInvalidState,
			fmt.Sprintf("approval can only be initiated during evaluation (current status: %s)", tender.Status))
	}
	if len(req.Levels) == 0 {
		return nil, NewDomainError(CodeValidationFailed, "at least one approval level is required", "levels")
	}
	for i, l := range req.Levels {
		if l.ApproverID == "" {
			return nil, NewDomainError(CodeValidationFailed,
				fmt.Sprintf("levels[%d] has no approver", i), fmt.Sprintf("levels[%d].approver_id", i))
		}
	}

	panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "evaluation panel")
	}
	if panel.Status != entity.EvalStatusCombinedCalculated {
		return nil, NewDomainError(CodeInvalidState,
			"combined scores must be calculated before initiating approval")
	}

	cycle := 1
	latest, err := s.approvalRepo.FindLatestByTender(ctx, tenderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if latest != nil {
		switch latest.Status {
		case entity.WorkflowStatusRejected, entity.WorkflowStatusRevisionNeeded:
			cycle = latest.Cycle + 1
		case entity.WorkflowStatusInProgress:
			return nil, NewDomainError(CodeInvalidState,
				"an approval workflow is already in progress for this tender")
		default:
			return nil, NewDomainError(CodeInvalidState,
				"the tender has already passed approval")
		}
	}

	now := time.Now()
	workflow := &entity.ApprovalWorkflow{
		ID:           uuid.New().String()[:32],
		TenderID:     tenderID,
		Cycle:        cycle,
		Status:       entity.WorkflowStatusInProgress,
		CurrentLevel: 1,
		InitiatedBy:  actor,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, l := range req.Levels {
		status := entity.LevelStatusWaiting
		if i == 0 {
			status = entity.LevelStatusActive
		}
		workflow.Levels = append(workflow.Levels, entity.ApprovalLevel{
			ID:         uuid.New().String()[:32],
			WorkflowID: workflow.ID,
			Level:      i + 1,
			ApproverID: l.ApproverID,
			Deadline:   l.Deadline,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := s.approvalRepo.Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("create approval workflow: %w", err)
	}

	s.logger.Info("Approval workflow initiated",
		zap.String("tender_id", tenderID),
		zap.String("workflow_id", workflow.ID),
		zap.Int("cycle", cycle),
		zap.Int("levels", len(workflow.Levels)),
	)
	s.events.Publish(EventApprovalInitiated, tenderID, map[string]interface{}{
		"workflow_id": workflow.ID,
		"cycle":       cycle,
		"actor":       actor,
	})
	return workflow, nil
}

// DecideRequest 审批决定请求
type DecideRequest struct {
	Decision string `json:"decision" binding:"required"` // approve/reject/return
	Comment  string `json:"comment"`
}

// Decide 当前审批级做出决定
//
// Only the approver assigned to the active level may decide, and only once.
// Reject and return require a substantive comment. The final approve
// transitions the tender to awarded inside the same transaction.
func (s *ApprovalService) Decide(ctx context.Context, tenderID, approverID string, req *DecideRequest) (*entity.ApprovalWorkflow, error) {
	switch req.Decision {
	case entity.DecisionApprove, entity.DecisionReject, entity.DecisionReturn:
	default:
		return nil, NewDomainError(CodeValidationFailed,
			fmt.Sprintf("unknown decision %q", req.Decision), "decision")
	}
	if req.Decision != entity.DecisionApprove && len(strings.TrimSpace(req.Comment)) < minAdverseCommentLen {
		return nil, NewDomainError(CodeMissingJustification,
			fmt.Sprintf("a %s decision requires a comment of at least %d characters", req.Decision, minAdverseCommentLen),
			"comment")
	}

	workflow, err := s.approvalRepo.FindLatestByTender(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "approval workflow")
	}
	if workflow.Status != entity.WorkflowStatusInProgress {
		return nil, NewDomainError(CodeInvalidState,
			fmt.Sprintf("the approval workflow is already %s", workflow.Status))
	}

	var active *entity.ApprovalLevel
	for i := range workflow.Levels {
		if workflow.Levels[i].Level == workflow.CurrentLevel {
			active = &workflow.Levels[i]
			break
		}
	}
	if active == nil {
		return nil, fmt.Errorf("workflow %s has no level %d", workflow.ID, workflow.CurrentLevel)
	}
	if active.ApproverID != approverID {
		return nil, NewDomainError(CodeForbidden,
			"only the approver assigned to the active level may decide")
	}
	if active.Status == entity.LevelStatusDecided {
		return nil, NewDomainError(CodeDecisionAlreadyMade,
			"this approval level has already been decided")
	}

	now := time.Now()
	active.Status = entity.LevelStatusDecided
	active.Decision = req.Decision
	active.Comment = req.Comment
	active.DecidedAt = &now
	active.UpdatedAt = now

	isLast := workflow.CurrentLevel == len(workflow.Levels)
	updates := map[string]interface{}{}
	awarded := false
	switch {
	case req.Decision == entity.DecisionReject:
		workflow.Status = entity.WorkflowStatusRejected
		workflow.CompletedAt = &now
		updates["status"] = workflow.Status
		updates["completed_at"] = now
	case req.Decision == entity.DecisionReturn:
		workflow.Status = entity.WorkflowStatusRevisionNeeded
		workflow.CompletedAt = &now
		updates["status"] = workflow.Status
		updates["completed_at"] = now
	case isLast:
		workflow.Status = entity.WorkflowStatusApproved
		workflow.CompletedAt = &now
		updates["status"] = workflow.Status
		updates["completed_at"] = now
		awarded = true
	default:
		workflow.CurrentLevel++
		updates["current_level"] = workflow.CurrentLevel
		for i := range workflow.Levels {
			if workflow.Levels[i].Level == workflow.CurrentLevel {
				workflow.Levels[i].Status = entity.LevelStatusActive
				workflow.Levels[i].UpdatedAt = now
			}
		}
	}

	err = s.approvalRepo.DB().Transaction(func(tx *gorm.DB) error {
		if err := s.approvalRepo.SaveLevel(ctx, tx, active); err != nil {
			return fmt.Errorf("save decided level: %w", err)
		}
		for i := range workflow.Levels {
			if workflow.Levels[i].Level == workflow.CurrentLevel && workflow.Levels[i].Status == entity.LevelStatusActive && workflow.Levels[i].ID != active.ID {
				if err := s.approvalRepo.SaveLevel(ctx, tx, &workflow.Levels[i]); err != nil {
					return fmt.Errorf("activate next level: %w", err)
				}
			}
		}
		if err := s.approvalRepo.UpdateWorkflowWithVersion(ctx, tx, workflow, updates); err != nil {
			return err
		}

		if awarded {
			tender, err := s.tenderRepo.FindByID(ctx, tenderID)
			if err != nil {
				return err
			}
			if tender.Status != entity.TenderStatusEvaluation {
				return NewDomainError(CodeInvalidState,
					fmt.Sprintf("tender can no longer be awarded (current status: %s)", tender.Status))
			}
			res := tx.WithContext(ctx).Model(&entity.Tender{}).
				Where("id = ? AND version = ?", tender.ID, tender.Version).
				Updates(map[string]interface{}{
					"status":     entity.TenderStatusAwarded,
					"awarded_at": now,
					"version":    tender.Version + 1,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repository.ErrVersionConflict
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapVersionErr(err)
	}

	s.logger.Info("Approval decision recorded",
		zap.String("tender_id", tenderID),
		zap.String("workflow_id", workflow.ID),
		zap.Int("level", active.Level),
		zap.String("decision", req.Decision),
	)
	s.events.Publish(EventApprovalDecided, tenderID, map[string]interface{}{
		"workflow_id": workflow.ID,
		"cycle":       workflow.Cycle,
		"level":       active.Level,
		"decision":    req.Decision,
		"approver":    approverID,
	})
	if awarded {
		s.events.Publish(EventTenderAwarded, tenderID, map[string]interface{}{
			"workflow_id": workflow.ID,
			"cycle":       workflow.Cycle,
		})
	}
	return workflow, nil
}

// GetCurrent 获取当前审批流实例
func (s *ApprovalService) GetCurrent(ctx context.Context, tenderID string) (*entity.ApprovalWorkflow, error) {
	workflow, err := s.approvalRepo.FindLatestByTender(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "approval workflow")
	}
	return workflow, nil
}

// GetHistory 获取全部审批轮次（按轮次升序，含每级决定）
func (s *ApprovalService) GetHistory(ctx context.Context, tenderID string) ([]entity.ApprovalWorkflow, error) {
	return s.approvalRepo.FindAllByTender(ctx, tenderID)
}
