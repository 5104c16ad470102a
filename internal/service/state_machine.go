package service

import (
	"context"

	perrors "github.com/onayflow/be-approvals/internal/platform/errors"
	"github.com/onayflow/be-approvals/internal/platform/logger"
	"github.com/onayflow/be-approvals/internal/repository"
)

// DecisionAction is an approver's verdict on a step.
type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionReject  DecisionAction = "reject"
)

// DecisionResult describes the state after one decision.
type DecisionResult struct {
	ApprovalID        string                  `json:"approval_id"`
	StepStatus        repository.StepStatus   `json:"step_status"`
	VotesRecorded     int                     `json:"votes_recorded"`
	RequiredApprovals int                     `json:"required_approvals"`
	ChainResolved     bool                    `json:"chain_resolved"`
	ObjectStatus      repository.ObjectStatus `json:"object_status"`
}

// StateMachine advances approval chains step by step. Steps only leave
// pending through here; approved, rejected and skipped are terminal.
type StateMachine struct {
	approvals ApprovalStore
	audit     AuditStore
	status    ObjectStatusCallback
	notifier  NotificationSink
	log       *logger.Logger
}

// NewStateMachine creates a new StateMachine.
func NewStateMachine(
	approvals ApprovalStore,
	audit AuditStore,
	status ObjectStatusCallback,
	notifier NotificationSink,
	log *logger.Logger,
) *StateMachine {
	return &StateMachine{
		approvals: approvals,
		audit:     audit,
		status:    status,
		notifier:  notifier,
		log:       log,
	}
}

// Decide records one approve/reject decision on a step.
//
// The target must be the chain's current actionable step: pending, with
// every lower-numbered step approved or skipped. The engine never retries on
// failure — a retried approve could double-count a fan-in vote — so
// ErrStepNotActionable, ErrDuplicateVote and ErrConcurrentModification all
// surface to the caller, who must re-fetch the chain.
func (m *StateMachine) Decide(
	ctx context.Context,
	approvalID, approverID string,
	action DecisionAction,
	comment *string,
) (*DecisionResult, error) {
	if approverID == "" {
		return nil, perrors.InvalidInput("approver_id", "approver is required")
	}

	target, err := m.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if target.Status != repository.StepStatusPending {
		return nil, repository.ErrStepNotActionable
	}

	chain, err := m.approvals.GetChain(ctx, target.ObjectType, target.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := assertActionable(chain, target); err != nil {
		return nil, err
	}
	if target.ApproverID != nil && *target.ApproverID != approverID {
		return nil, repository.ErrNotStepApprover
	}

	switch action {
	case ActionApprove:
		return m.approve(ctx, chain, target, approverID, comment)
	case ActionReject:
		return m.reject(ctx, target, approverID, comment)
	default:
		return nil, perrors.InvalidInput("action", "must be approve or reject")
	}
}

// assertActionable checks that target belongs to the latest chain generation
// and that every lower-numbered step is terminal-successful.
func assertActionable(chain []*repository.Approval, target *repository.Approval) error {
	found := false
	for _, a := range chain {
		if a.ID == target.ID {
			found = true
			continue
		}
		if a.Step < target.Step {
			if a.Status != repository.StepStatusApproved && a.Status != repository.StepStatusSkipped {
				return repository.ErrStepNotActionable
			}
		}
	}
	if !found {
		// Superseded generation.
		return repository.ErrStepNotActionable
	}
	return nil
}

// ── Approve ───────────────────────────────────────────────────────────────────

func (m *StateMachine) approve(
	ctx context.Context,
	chain []*repository.Approval,
	target *repository.Approval,
	approverID string,
	comment *string,
) (*DecisionResult, error) {
	votes, err := m.approvals.RecordVote(ctx, target.ID, approverID)
	if err != nil {
		return nil, err
	}

	if votes < target.RequiredApprovals {
		// Fan-in threshold not met yet: the step stays pending with the
		// partial vote recorded.
		m.appendAudit(ctx, target, "vote_recorded", approverID, map[string]interface{}{
			"votes":              votes,
			"required_approvals": target.RequiredApprovals,
		})
		return &DecisionResult{
			ApprovalID:        target.ID,
			StepStatus:        repository.StepStatusPending,
			VotesRecorded:     votes,
			RequiredApprovals: target.RequiredApprovals,
			ChainResolved:     false,
			ObjectStatus:      repository.ObjectStatusStillPending,
		}, nil
	}

	if err := m.approvals.MarkApproved(ctx, target.ID, approverID, comment); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, target, "approved", approverID, map[string]interface{}{
		"step": target.Step,
	})

	result := &DecisionResult{
		ApprovalID:        target.ID,
		StepStatus:        repository.StepStatusApproved,
		VotesRecorded:     votes,
		RequiredApprovals: target.RequiredApprovals,
	}

	if next := nextPendingStep(chain, target.Step); next != nil {
		// "Actionable" is derived, not stored: the next step was already
		// pending, it just became the lowest unresolved one.
		m.notifier.OnStepBecameActionable(ctx, next)
		result.ChainResolved = false
		result.ObjectStatus = repository.ObjectStatusStillPending
		return result, nil
	}

	m.resolveObject(ctx, target, repository.ObjectStatusApproved, approverID)
	result.ChainResolved = true
	result.ObjectStatus = repository.ObjectStatusApproved
	return result, nil
}

// nextPendingStep returns the lowest pending step above afterStep, nil when
// the chain is exhausted.
func nextPendingStep(chain []*repository.Approval, afterStep int) *repository.Approval {
	for _, a := range chain {
		if a.Step > afterStep && a.Status == repository.StepStatusPending {
			return a
		}
	}
	return nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

func (m *StateMachine) reject(
	ctx context.Context,
	target *repository.Approval,
	approverID string,
	comment *string,
) (*DecisionResult, error) {
	if comment == nil || *comment == "" {
		return nil, perrors.InvalidInput("comment", "rejection comment is required")
	}

	// Rejection and the skip cascade commit atomically: callers never see a
	// rejected step with pending successors.
	if err := m.approvals.RejectAndSkip(ctx, target.ID, approverID, comment); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, target, "rejected", approverID, map[string]interface{}{
		"step":   target.Step,
		"reason": *comment,
	})

	m.resolveObject(ctx, target, repository.ObjectStatusRejected, approverID)

	return &DecisionResult{
		ApprovalID:        target.ID,
		StepStatus:        repository.StepStatusRejected,
		RequiredApprovals: target.RequiredApprovals,
		ChainResolved:     true,
		ObjectStatus:      repository.ObjectStatusRejected,
	}, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetChain returns the latest chain for an object ordered by step.
func (m *StateMachine) GetChain(ctx context.Context, objectType repository.ApprovalObjectType, objectID string) ([]*repository.Approval, error) {
	if !objectType.IsValid() {
		return nil, perrors.InvalidInput("object_type", "unknown object type")
	}
	return m.approvals.GetChain(ctx, objectType, objectID)
}

// GetPendingApprovalsFor returns all actionable steps awaiting a user across
// object types (the approver's inbox). Unclaimed role-based steps are matched
// against roles, which the caller resolves for the user.
func (m *StateMachine) GetPendingApprovalsFor(ctx context.Context, approverID string, roles []string) ([]*repository.Approval, error) {
	if approverID == "" {
		return nil, perrors.InvalidInput("approver_id", "approver is required")
	}
	return m.approvals.GetPendingForApprover(ctx, approverID, roles)
}

// GetAuditTrail returns the full audit trail for an object.
func (m *StateMachine) GetAuditTrail(ctx context.Context, objectType repository.ApprovalObjectType, objectID string) ([]*repository.AuditEntry, error) {
	if !objectType.IsValid() {
		return nil, perrors.InvalidInput("object_type", "unknown object type")
	}
	return m.audit.GetByObject(ctx, objectType, objectID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// resolveObject hands the terminal status to the owning module and the
// notification sink. Both are best-effort after the state transition has
// committed; the approval rows stay the source of truth.
func (m *StateMachine) resolveObject(
	ctx context.Context,
	target *repository.Approval,
	finalStatus repository.ObjectStatus,
	actedBy string,
) {
	if err := m.status.OnChainResolved(ctx, target.ObjectType, target.ObjectID, finalStatus); err != nil {
		m.log.Error().Err(err).
			Str("object_type", string(target.ObjectType)).
			Str("object_id", target.ObjectID).
			Str("final_status", string(finalStatus)).
			Msg("Object status callback failed")
	}
	m.notifier.OnChainResolved(ctx, target.ObjectType, target.ObjectID, finalStatus)

	before := string(repository.ObjectStatusStillPending)
	after := string(finalStatus)
	m.appendAuditEntry(ctx, &repository.AuditEntry{
		CompanyID:          target.CompanyID,
		ObjectType:         target.ObjectType,
		ObjectID:           target.ObjectID,
		Action:             "chain_resolved",
		PerformedBy:        actedBy,
		ObjectStatusBefore: &before,
		ObjectStatusAfter:  &after,
	})
}

func (m *StateMachine) appendAudit(ctx context.Context, a *repository.Approval, action, actedBy string, metadata map[string]interface{}) {
	m.appendAuditEntry(ctx, &repository.AuditEntry{
		CompanyID:   a.CompanyID,
		ObjectType:  a.ObjectType,
		ObjectID:    a.ObjectID,
		ApprovalID:  &a.ID,
		Action:      action,
		PerformedBy: actedBy,
		Metadata:    metadata,
	})
}

func (m *StateMachine) appendAuditEntry(ctx context.Context, entry *repository.AuditEntry) {
	if err := m.audit.Append(ctx, entry); err != nil {
		m.log.Warn().Err(err).
			Str("object_id", entry.ObjectID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}
