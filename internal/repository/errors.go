package repository

import "github.com/onayflow/be-approvals/internal/platform/errors"

// Typed failures returned by the approval engine. All are safe to test with
// errors.Is and carry codes the HTTP layer maps to statuses.
var (
	// ErrNoMatchingRule signals a misconfigured workflow: no threshold rule
	// covers the submitted amount. Never silently treated as "no approval
	// required".
	ErrNoMatchingRule = errors.New(errors.ErrCodeInvalidInput, "no threshold rule covers the amount; contact an administrator")

	// ErrInvalidThresholdPartition is returned at save time when a workflow's
	// rules leave gaps or overlaps on the amount axis.
	ErrInvalidThresholdPartition = errors.New(errors.ErrCodeInvalidInput, "threshold rules must partition the amount axis without gaps or overlaps")

	// ErrStepNotActionable is returned when a decision targets a step that is
	// already terminal or is not the lowest pending step of its chain.
	ErrStepNotActionable = errors.New(errors.ErrCodeConflict, "approval step can no longer be acted on")

	// ErrDuplicateVote is returned when an approver votes twice on the same
	// fan-in step. Duplicate votes are a hard failure, never a silent no-op.
	ErrDuplicateVote = errors.New(errors.ErrCodeConflict, "approver has already voted on this step")

	// ErrConcurrentModification is returned to the loser of a decision race.
	// The caller must re-fetch the chain before retrying.
	ErrConcurrentModification = errors.New(errors.ErrCodeConflict, "approval was modified concurrently; re-fetch the chain")

	// ErrChainExists guards against double submission creating two chains for
	// one object.
	ErrChainExists = errors.New(errors.ErrCodeConflict, "an approval chain already exists for this object")

	// ErrNotStepApprover is returned when a user acts on a step bound to a
	// different approver.
	ErrNotStepApprover = errors.New(errors.ErrCodeUnauthorized, "user is not the approver for this step")
)
