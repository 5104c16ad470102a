package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	perrors "github.com/onayflow/be-approvals/internal/platform/errors"
	"github.com/onayflow/be-approvals/internal/platform/logger"
	"github.com/onayflow/be-approvals/internal/repository"
)

// ChainBuilder materializes approval chains at submission time.
type ChainBuilder struct {
	registry  *WorkflowRegistry
	approvals ApprovalStore
	audit     AuditStore
	status    ObjectStatusCallback
	notifier  NotificationSink
	log       *logger.Logger
}

// NewChainBuilder creates a new ChainBuilder.
func NewChainBuilder(
	registry *WorkflowRegistry,
	approvals ApprovalStore,
	audit AuditStore,
	status ObjectStatusCallback,
	notifier NotificationSink,
	log *logger.Logger,
) *ChainBuilder {
	return &ChainBuilder{
		registry:  registry,
		approvals: approvals,
		audit:     audit,
		status:    status,
		notifier:  notifier,
		log:       log,
	}
}

// SubmitResult is the outcome of a submission. AutoApproved is the explicit
// signal for the no-workflow path; an empty chain alone is never used to
// infer it.
type SubmitResult struct {
	AutoApproved bool                   `json:"auto_approved"`
	Chain        []*repository.Approval `json:"chain"`
}

// SubmitForApproval routes one business object into an approval chain.
//
// With no active workflow for the pair, the object is auto-approved and no
// chain is created. A second submit while a chain is open (or approved)
// returns the existing chain unchanged; only a rejected chain is superseded
// by a new generation.
func (b *ChainBuilder) SubmitForApproval(
	ctx context.Context,
	companyID string,
	objectType repository.ApprovalObjectType,
	objectID string,
	amount int64,
	submittedBy string,
) (*SubmitResult, error) {
	if !objectType.IsValid() {
		return nil, perrors.InvalidInput("object_type", "unknown object type")
	}
	if objectID == "" {
		return nil, perrors.InvalidInput("object_id", "object is required")
	}
	if amount < 0 {
		return nil, perrors.InvalidInput("amount", "must not be negative")
	}

	generation := 1
	existing, err := b.approvals.GetChain(ctx, objectType, objectID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if ChainOutcome(existing) != repository.ObjectStatusRejected {
			// Double submit (retry, double click): return the open or
			// already-approved chain as-is.
			return &SubmitResult{AutoApproved: false, Chain: existing}, nil
		}
		generation = existing[0].Generation + 1
	}

	wf, err := b.registry.GetActiveWorkflow(ctx, companyID, objectType)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return b.autoApprove(ctx, companyID, objectType, objectID, submittedBy)
	}

	rule, err := SelectRule(wf, amount)
	if err != nil {
		return nil, err
	}

	chain := make([]*repository.Approval, 0, len(rule.Steps))
	for _, spec := range rule.Steps {
		required := spec.RequiredApprovals
		if required < 1 {
			required = 1
		}
		chain = append(chain, &repository.Approval{
			ID:                uuid.NewString(),
			CompanyID:         companyID,
			ObjectType:        objectType,
			ObjectID:          objectID,
			Generation:        generation,
			Step:              spec.Step,
			ApproverRole:      spec.ApproverRole,
			ApproverID:        spec.ApproverID,
			RequiredApprovals: required,
			Status:            repository.StepStatusPending,
		})
	}

	if err := b.approvals.CreateChain(ctx, chain); err != nil {
		if errors.Is(err, repository.ErrChainExists) {
			// Lost a submit race: the winner's chain is the chain.
			current, getErr := b.approvals.GetChain(ctx, objectType, objectID)
			if getErr != nil {
				return nil, getErr
			}
			return &SubmitResult{AutoApproved: false, Chain: current}, nil
		}
		return nil, err
	}

	b.appendAudit(ctx, &repository.AuditEntry{
		CompanyID:   companyID,
		ObjectType:  objectType,
		ObjectID:    objectID,
		Action:      "submitted",
		PerformedBy: submittedBy,
		Metadata: map[string]interface{}{
			"amount":      amount,
			"generation":  generation,
			"total_steps": len(chain),
			"workflow_id": wf.ID,
		},
	})

	b.log.Info().
		Str("object_type", string(objectType)).
		Str("object_id", objectID).
		Int("generation", generation).
		Int("total_steps", len(chain)).
		Msg("Approval chain created")

	b.notifier.OnStepBecameActionable(ctx, chain[0])

	return &SubmitResult{AutoApproved: false, Chain: chain}, nil
}

// autoApprove resolves an object with no configured workflow. Documented
// default behavior, not an error fallback.
func (b *ChainBuilder) autoApprove(
	ctx context.Context,
	companyID string,
	objectType repository.ApprovalObjectType,
	objectID, submittedBy string,
) (*SubmitResult, error) {
	if err := b.status.OnChainResolved(ctx, objectType, objectID, repository.ObjectStatusApproved); err != nil {
		b.log.Error().Err(err).
			Str("object_type", string(objectType)).
			Str("object_id", objectID).
			Msg("Object status callback failed on auto-approval")
	}
	b.notifier.OnChainResolved(ctx, objectType, objectID, repository.ObjectStatusApproved)

	after := string(repository.ObjectStatusApproved)
	b.appendAudit(ctx, &repository.AuditEntry{
		CompanyID:         companyID,
		ObjectType:        objectType,
		ObjectID:          objectID,
		Action:            "auto_approved",
		PerformedBy:       submittedBy,
		ObjectStatusAfter: &after,
	})

	b.log.Info().
		Str("object_type", string(objectType)).
		Str("object_id", objectID).
		Msg("No active workflow; object auto-approved")

	return &SubmitResult{AutoApproved: true, Chain: []*repository.Approval{}}, nil
}

// appendAudit writes an audit entry and logs a warning on failure.
func (b *ChainBuilder) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := b.audit.Append(ctx, entry); err != nil {
		b.log.Warn().Err(err).
			Str("object_id", entry.ObjectID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

// ChainOutcome derives the parent-object verdict from a chain: any rejected
// step rejects the object, all steps approved approves it, anything else is
// still pending.
func ChainOutcome(chain []*repository.Approval) repository.ObjectStatus {
	allApproved := len(chain) > 0
	for _, a := range chain {
		if a.Status == repository.StepStatusRejected {
			return repository.ObjectStatusRejected
		}
		if a.Status != repository.StepStatusApproved {
			allApproved = false
		}
	}
	if allApproved {
		return repository.ObjectStatusApproved
	}
	return repository.ObjectStatusStillPending
}
