package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventChannel 领域事件发布通道
const EventChannel = "tender.events"

// 领域事件名
const (
	EventTenderPublished      = "tender.published"
	EventTenderCancelled      = "tender.cancelled"
	EventBidsOpened           = "tender.bids_opened"
	EventTenderAwarded        = "tender.awarded"
	EventBidSubmitted         = "bid.submitted"
	EventLateAccepted         = "bid.late_accepted"
	EventLateRejected         = "bid.late_rejected"
	EventBidDisqualified      = "bid.disqualified"
	EventBidImported          = "bid.imported"
	EventScoresLocked         = "evaluation.technical_locked"
	EventCommercialCalculated = "evaluation.commercial_calculated"
	EventCombinedCalculated   = "evaluation.combined_calculated"
	EventApprovalInitiated    = "approval.initiated"
	EventApprovalDecided      = "approval.decided"
)

// EventPublisher 领域事件发布器
//
// Fire-and-forget: notification delivery is a collaborator's concern, the
// engine only emits. A nil redis client degrades to log-only.
type EventPublisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewEventPublisher(rdb *redis.Client, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{rdb: rdb, logger: logger}
}

// Publish 发布领域事件（不阻塞调用方、不等待投递结果）
func (p *EventPublisher) Publish(event, tenderID string, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["event"] = event
	payload["tender_id"] = tenderID
	payload["emitted_at"] = time.Now().UTC().Format(time.RFC3339)

	p.logger.Info("Domain event",
		zap.String("event", event),
		zap.String("tender_id", tenderID),
	)

	if p.rdb == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("Failed to marshal domain event", zap.String("event", event), zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.rdb.Publish(ctx, EventChannel, body).Err(); err != nil {
			p.logger.Warn("Failed to publish domain event",
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}()
}
