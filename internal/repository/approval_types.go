package repository

import "time"

// ── Domain types for the approval engine ─────────────────────────────────────

// ApprovalObjectType is the kind of business record routed through the engine.
type ApprovalObjectType string

const (
	ObjectTypePurchaseRequest ApprovalObjectType = "purchase_request"
	ObjectTypeExpense         ApprovalObjectType = "expense"
	ObjectTypeProposal        ApprovalObjectType = "proposal"
	ObjectTypeLeaveRequest    ApprovalObjectType = "leave_request"
	ObjectTypeBudgetRevision  ApprovalObjectType = "budget_revision"
)

var validObjectTypes = map[ApprovalObjectType]bool{
	ObjectTypePurchaseRequest: true,
	ObjectTypeExpense:         true,
	ObjectTypeProposal:        true,
	ObjectTypeLeaveRequest:    true,
	ObjectTypeBudgetRevision:  true,
}

// IsValid reports whether t is a known object type.
func (t ApprovalObjectType) IsValid() bool {
	return validObjectTypes[t]
}

// StepStatus is the lifecycle state of one approval step.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	StepStatusSkipped  StepStatus = "skipped"
)

var terminalStepStatuses = map[StepStatus]bool{
	StepStatusApproved: true,
	StepStatusRejected: true,
	StepStatusSkipped:  true,
}

// IsTerminal reports whether no further transition may leave this status.
func (s StepStatus) IsTerminal() bool {
	return terminalStepStatuses[s]
}

// ObjectStatus is the engine's verdict on the parent business object.
type ObjectStatus string

const (
	ObjectStatusApproved     ObjectStatus = "approved"
	ObjectStatusRejected     ObjectStatus = "rejected"
	ObjectStatusStillPending ObjectStatus = "still_pending"
)

// StepSpec is one entry in a threshold rule's required_steps JSONB array.
// Exactly one of ApproverRole / ApproverID should be set: role-based steps
// are claimed by whoever decides them, approver-bound steps only accept the
// named user.
type StepSpec struct {
	Step              int     `json:"step"`
	ApproverRole      *string `json:"approver_role,omitempty"`
	ApproverID        *string `json:"approver_id,omitempty"`
	RequiredApprovals int     `json:"required_approvals"`
}

// ThresholdRule maps a [MinAmount, MaxAmount) interval to a required step
// sequence. Amounts are in kuruş. A nil MaxAmount means unbounded.
type ThresholdRule struct {
	MinAmount int64      `json:"min_amount"`
	MaxAmount *int64     `json:"max_amount,omitempty"`
	Steps     []StepSpec `json:"required_steps"`
}

// Contains reports whether amount falls inside the rule's interval.
func (r *ThresholdRule) Contains(amount int64) bool {
	if amount < r.MinAmount {
		return false
	}
	if r.MaxAmount != nil && amount >= *r.MaxAmount {
		return false
	}
	return true
}

// ApprovalWorkflow is the configured routing for one (company, object type)
// pair. At most one active workflow exists per pair.
type ApprovalWorkflow struct {
	ID         string
	CompanyID  string
	ObjectType ApprovalObjectType
	IsActive   bool
	Rules      []ThresholdRule
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Approval is one step instance of one submitted object. Rows snapshot the
// matched rule's role/approver/required-approvals at build time, so editing
// or deactivating a workflow never reroutes an in-flight chain. Rows are
// never deleted; a re-submission after rejection creates a new generation.
type Approval struct {
	ID                string
	CompanyID         string
	ObjectType        ApprovalObjectType
	ObjectID          string
	Generation        int
	Step              int
	ApproverRole      *string
	ApproverID        *string
	RequiredApprovals int
	Status            StepStatus
	Comment           *string
	DecidedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AuditEntry is one immutable record in the approval audit log.
type AuditEntry struct {
	ID                 string
	CompanyID          string
	ObjectType         ApprovalObjectType
	ObjectID           string
	ApprovalID         *string
	Action             string // submitted | auto_approved | vote_recorded | approved | rejected
	PerformedBy        string
	PerformedAt        time.Time
	ObjectStatusBefore *string
	ObjectStatusAfter  *string
	Metadata           map[string]interface{}
}
