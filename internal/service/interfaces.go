package service

import (
	"context"

	"github.com/onayflow/be-approvals/internal/repository"
)

// WorkflowStore is the persistence surface the registry needs.
type WorkflowStore interface {
	Upsert(ctx context.Context, wf *repository.ApprovalWorkflow) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalWorkflow, error)
	GetActive(ctx context.Context, companyID string, objectType repository.ApprovalObjectType) (*repository.ApprovalWorkflow, error)
	List(ctx context.Context, companyID string) ([]*repository.ApprovalWorkflow, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// ApprovalStore is the persistence surface the chain builder and state
// machine need. Mutations are serialized per object by the implementation.
type ApprovalStore interface {
	CreateChain(ctx context.Context, chain []*repository.Approval) error
	GetByID(ctx context.Context, id string) (*repository.Approval, error)
	GetChain(ctx context.Context, objectType repository.ApprovalObjectType, objectID string) ([]*repository.Approval, error)
	GetPendingForApprover(ctx context.Context, approverID string, roles []string) ([]*repository.Approval, error)
	RecordVote(ctx context.Context, approvalID, approverID string) (int, error)
	MarkApproved(ctx context.Context, approvalID, approverID string, comment *string) error
	RejectAndSkip(ctx context.Context, approvalID, approverID string, comment *string) error
}

// AuditStore appends to and reads the immutable audit trail.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByObject(ctx context.Context, objectType repository.ApprovalObjectType, objectID string) ([]*repository.AuditEntry, error)
}

// NotificationSink is informed of engine transitions. Delivery is
// best-effort: implementations must never block the state transition and
// failures are logged, not propagated.
type NotificationSink interface {
	OnStepBecameActionable(ctx context.Context, approval *repository.Approval)
	OnChainResolved(ctx context.Context, objectType repository.ApprovalObjectType, objectID string, finalStatus repository.ObjectStatus)
}

// ObjectStatusCallback lets the owning business module persist the terminal
// status onto its own record. The engine does not own that field; callback
// failures are logged and never roll back the decision (the approval rows
// are the source of truth).
type ObjectStatusCallback interface {
	OnChainResolved(ctx context.Context, objectType repository.ApprovalObjectType, objectID string, finalStatus repository.ObjectStatus) error
}
