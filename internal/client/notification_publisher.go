package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/onayflow/be-approvals/internal/platform/natsclient"
	"github.com/onayflow/be-approvals/internal/repository"
)

// NotificationPublisher publishes approval events to NATS JetStream for the
// notifications service.
//
// Subject convention: notifications.approvals.<event_type>
// Event types: approval_required, object_approved, object_rejected
//
// Role-based steps carry the role in the payload; the notifications service
// resolves role membership to concrete recipients. All publish operations
// are non-fatal — errors are logged but never propagated, so notification
// failures never interrupt approval operations.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	CompanyID    string                 `json:"company_id"`
	ObjectType   string                 `json:"object_type"`
	ObjectID     string                 `json:"object_id"`
	ApproverID   string                 `json:"approver_id,omitempty"`
	ApproverRole string                 `json:"approver_role,omitempty"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// client. A nil client disables publishing.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// OnStepBecameActionable publishes an approval_required event for the step
// that just became the chain's lowest unresolved one.
func (p *NotificationPublisher) OnStepBecameActionable(ctx context.Context, approval *repository.Approval) {
	event := &NotificationEvent{
		EventType:    "approval_required",
		CompanyID:    approval.CompanyID,
		ObjectType:   string(approval.ObjectType),
		ObjectID:     approval.ObjectID,
		IsActionable: true,
		Severity:     "info",
		Category:     "approvals",
		Payload: map[string]interface{}{
			"approval_id":        approval.ID,
			"step":               approval.Step,
			"required_approvals": approval.RequiredApprovals,
		},
	}
	if approval.ApproverID != nil {
		event.ApproverID = *approval.ApproverID
	}
	if approval.ApproverRole != nil {
		event.ApproverRole = *approval.ApproverRole
	}

	p.publish(ctx, event)
}

// OnChainResolved publishes the terminal verdict for an object.
func (p *NotificationPublisher) OnChainResolved(ctx context.Context, objectType repository.ApprovalObjectType, objectID string, finalStatus repository.ObjectStatus) {
	eventType := "object_approved"
	if finalStatus == repository.ObjectStatusRejected {
		eventType = "object_rejected"
	}

	p.publish(ctx, &NotificationEvent{
		EventType:  eventType,
		ObjectType: string(objectType),
		ObjectID:   objectID,
		Severity:   "info",
		Category:   "approvals",
		Payload: map[string]interface{}{
			"final_status": string(finalStatus),
		},
	})
}

func (p *NotificationPublisher) publish(ctx context.Context, event *NotificationEvent) {
	if p.nats == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.approvals.%s", event.EventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("object_id", event.ObjectID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("object_id", event.ObjectID).
		Msg("notification: event published")
}
