package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/onayflow/be-approvals/internal/platform/natsclient"
	"github.com/onayflow/be-approvals/internal/repository"
)

// ObjectStatusPublisher delivers the engine's terminal verdict to the module
// that owns the business record, as an event on
// approvals.object_status.<object_type>. Each owning module (purchasing,
// expenses, proposals, HR, budgeting) subscribes to its own subject and
// persists the status onto its record; the engine does not own that field.
type ObjectStatusPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// ObjectStatusEvent is the JSON schema published to NATS.
type ObjectStatusEvent struct {
	ObjectType  string    `json:"object_type"`
	ObjectID    string    `json:"object_id"`
	FinalStatus string    `json:"final_status"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// NewObjectStatusPublisher creates a publisher backed by the given NATS
// client. A nil client turns deliveries into log lines only.
func NewObjectStatusPublisher(nats *natsclient.Client, log zerolog.Logger) *ObjectStatusPublisher {
	return &ObjectStatusPublisher{nats: nats, log: log}
}

// OnChainResolved publishes the final status event. Unlike notifications,
// the caller logs a returned error: owning modules are expected to receive
// this.
func (p *ObjectStatusPublisher) OnChainResolved(ctx context.Context, objectType repository.ApprovalObjectType, objectID string, finalStatus repository.ObjectStatus) error {
	if p.nats == nil {
		p.log.Warn().
			Str("object_type", string(objectType)).
			Str("object_id", objectID).
			Str("final_status", string(finalStatus)).
			Msg("object status: NATS disabled, verdict not delivered")
		return nil
	}

	event := &ObjectStatusEvent{
		ObjectType:  string(objectType),
		ObjectID:    objectID,
		FinalStatus: string(finalStatus),
		ResolvedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("approvals.object_status.%s", objectType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		return err
	}

	p.log.Debug().
		Str("subject", subject).
		Str("object_id", objectID).
		Msg("object status: event published")
	return nil
}
