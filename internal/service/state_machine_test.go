package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/onayflow/be-approvals/internal/platform/logger"
	"github.com/onayflow/be-approvals/internal/repository"
)

type machineFixture struct {
	approvals *MockApprovalStore
	audit     *MockAuditStore
	status    *MockObjectStatusCallback
	notifier  *MockNotificationSink
	machine   *StateMachine
}

func newMachineFixture() *machineFixture {
	f := &machineFixture{
		approvals: new(MockApprovalStore),
		audit:     new(MockAuditStore),
		status:    new(MockObjectStatusCallback),
		notifier:  new(MockNotificationSink),
	}
	f.machine = NewStateMachine(f.approvals, f.audit, f.status, f.notifier, logger.Nop())
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

func approvalStep(id string, step int, status repository.StepStatus) *repository.Approval {
	return &repository.Approval{
		ID:                id,
		CompanyID:         "c1",
		ObjectType:        repository.ObjectTypePurchaseRequest,
		ObjectID:          "pr-1",
		Generation:        1,
		Step:              step,
		ApproverRole:      strPtr("manager"),
		RequiredApprovals: 1,
		Status:            status,
	}
}

func TestDecideMidChainApproveActivatesNextStep(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusPending)
	step2 := approvalStep("a2", 2, repository.StepStatusPending)
	chain := []*repository.Approval{step1, step2}

	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Once()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).Return(chain, nil).Once()
	f.approvals.On("RecordVote", ctx, "a1", "mgr-1").Return(1, nil).Once()
	f.approvals.On("MarkApproved", ctx, "a1", "mgr-1", (*string)(nil)).Return(nil).Once()
	f.notifier.On("OnStepBecameActionable", ctx, step2).Once()

	result, err := f.machine.Decide(ctx, "a1", "mgr-1", ActionApprove, nil)
	assert.NoError(t, err)
	assert.Equal(t, repository.StepStatusApproved, result.StepStatus)
	assert.False(t, result.ChainResolved)
	assert.Equal(t, repository.ObjectStatusStillPending, result.ObjectStatus)

	f.notifier.AssertExpectations(t)
	f.status.AssertNotCalled(t, "OnChainResolved", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDecideLastStepApproveResolvesObject(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusApproved)
	step2 := approvalStep("a2", 2, repository.StepStatusPending)
	chain := []*repository.Approval{step1, step2}

	f.approvals.On("GetByID", ctx, "a2").Return(step2, nil).Once()
	f.approvals.On("GetChain", ctx, step2.ObjectType, step2.ObjectID).Return(chain, nil).Once()
	f.approvals.On("RecordVote", ctx, "a2", "fin-1").Return(1, nil).Once()
	f.approvals.On("MarkApproved", ctx, "a2", "fin-1", (*string)(nil)).Return(nil).Once()
	f.status.On("OnChainResolved", ctx, step2.ObjectType, "pr-1", repository.ObjectStatusApproved).Return(nil).Once()
	f.notifier.On("OnChainResolved", ctx, step2.ObjectType, "pr-1", repository.ObjectStatusApproved).Once()

	result, err := f.machine.Decide(ctx, "a2", "fin-1", ActionApprove, nil)
	assert.NoError(t, err)
	assert.True(t, result.ChainResolved)
	assert.Equal(t, repository.ObjectStatusApproved, result.ObjectStatus)

	f.status.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

// Scenario: step 1 approved, step 2 rejected. The rejection cascades over the
// remaining steps and resolves the object; earlier approvals stand.
func TestDecideRejectResolvesObjectRejected(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusApproved)
	step2 := approvalStep("a2", 2, repository.StepStatusPending)
	chain := []*repository.Approval{step1, step2}
	comment := strPtr("over budget")

	f.approvals.On("GetByID", ctx, "a2").Return(step2, nil).Once()
	f.approvals.On("GetChain", ctx, step2.ObjectType, step2.ObjectID).Return(chain, nil).Once()
	f.approvals.On("RejectAndSkip", ctx, "a2", "fin-1", comment).Return(nil).Once()
	f.status.On("OnChainResolved", ctx, step2.ObjectType, "pr-1", repository.ObjectStatusRejected).Return(nil).Once()
	f.notifier.On("OnChainResolved", ctx, step2.ObjectType, "pr-1", repository.ObjectStatusRejected).Once()

	result, err := f.machine.Decide(ctx, "a2", "fin-1", ActionReject, comment)
	assert.NoError(t, err)
	assert.Equal(t, repository.StepStatusRejected, result.StepStatus)
	assert.True(t, result.ChainResolved)
	assert.Equal(t, repository.ObjectStatusRejected, result.ObjectStatus)

	f.approvals.AssertNotCalled(t, "RecordVote", mock.Anything, mock.Anything, mock.Anything)
	f.status.AssertExpectations(t)
}

func TestDecideRejectRequiresComment(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusPending)
	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Twice()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).
		Return([]*repository.Approval{step1}, nil).Twice()

	_, err := f.machine.Decide(ctx, "a1", "mgr-1", ActionReject, nil)
	assert.Error(t, err)

	_, err = f.machine.Decide(ctx, "a1", "mgr-1", ActionReject, strPtr(""))
	assert.Error(t, err)

	f.approvals.AssertNotCalled(t, "RejectAndSkip", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDecideFanInStaysPendingUntilThreshold(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusPending)
	step1.RequiredApprovals = 2
	chain := []*repository.Approval{step1}

	// First vote: below threshold, step stays pending.
	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Once()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).Return(chain, nil).Once()
	f.approvals.On("RecordVote", ctx, "a1", "mgr-1").Return(1, nil).Once()

	result, err := f.machine.Decide(ctx, "a1", "mgr-1", ActionApprove, nil)
	assert.NoError(t, err)
	assert.Equal(t, repository.StepStatusPending, result.StepStatus)
	assert.Equal(t, 1, result.VotesRecorded)
	assert.Equal(t, 2, result.RequiredApprovals)
	assert.False(t, result.ChainResolved)
	f.approvals.AssertNotCalled(t, "MarkApproved", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Second distinct voter meets the threshold and resolves the chain.
	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Once()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).Return(chain, nil).Once()
	f.approvals.On("RecordVote", ctx, "a1", "mgr-2").Return(2, nil).Once()
	f.approvals.On("MarkApproved", ctx, "a1", "mgr-2", (*string)(nil)).Return(nil).Once()
	f.status.On("OnChainResolved", ctx, step1.ObjectType, "pr-1", repository.ObjectStatusApproved).Return(nil).Once()
	f.notifier.On("OnChainResolved", ctx, step1.ObjectType, "pr-1", repository.ObjectStatusApproved).Once()

	result, err = f.machine.Decide(ctx, "a1", "mgr-2", ActionApprove, nil)
	assert.NoError(t, err)
	assert.Equal(t, repository.StepStatusApproved, result.StepStatus)
	assert.True(t, result.ChainResolved)

	// A third vote arrives after resolution: the step is terminal.
	resolved := approvalStep("a1", 1, repository.StepStatusApproved)
	f.approvals.On("GetByID", ctx, "a1").Return(resolved, nil).Once()

	_, err = f.machine.Decide(ctx, "a1", "mgr-3", ActionApprove, nil)
	assert.ErrorIs(t, err, repository.ErrStepNotActionable)
}

func TestDecideDuplicateVotePropagates(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusPending)
	step1.RequiredApprovals = 2

	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Once()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).
		Return([]*repository.Approval{step1}, nil).Once()
	f.approvals.On("RecordVote", ctx, "a1", "mgr-1").Return(0, repository.ErrDuplicateVote).Once()

	_, err := f.machine.Decide(ctx, "a1", "mgr-1", ActionApprove, nil)
	assert.ErrorIs(t, err, repository.ErrDuplicateVote)
}

func TestDecideOutOfOrderStepNotActionable(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusPending)
	step2 := approvalStep("a2", 2, repository.StepStatusPending)

	f.approvals.On("GetByID", ctx, "a2").Return(step2, nil).Once()
	f.approvals.On("GetChain", ctx, step2.ObjectType, step2.ObjectID).
		Return([]*repository.Approval{step1, step2}, nil).Once()

	_, err := f.machine.Decide(ctx, "a2", "fin-1", ActionApprove, nil)
	assert.ErrorIs(t, err, repository.ErrStepNotActionable)
	f.approvals.AssertNotCalled(t, "RecordVote", mock.Anything, mock.Anything, mock.Anything)
}

func TestDecideSupersededGenerationNotActionable(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	// The target is pending but belongs to an older generation: the latest
	// chain no longer contains it.
	stale := approvalStep("a-old", 1, repository.StepStatusPending)
	current := approvalStep("a-new", 1, repository.StepStatusPending)
	current.Generation = 2

	f.approvals.On("GetByID", ctx, "a-old").Return(stale, nil).Once()
	f.approvals.On("GetChain", ctx, stale.ObjectType, stale.ObjectID).
		Return([]*repository.Approval{current}, nil).Once()

	_, err := f.machine.Decide(ctx, "a-old", "mgr-1", ActionApprove, nil)
	assert.ErrorIs(t, err, repository.ErrStepNotActionable)
}

func TestDecideEnforcesApproverBinding(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusPending)
	step1.ApproverRole = nil
	step1.ApproverID = strPtr("mgr-1")

	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Once()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).
		Return([]*repository.Approval{step1}, nil).Once()

	_, err := f.machine.Decide(ctx, "a1", "intruder", ActionApprove, nil)
	assert.ErrorIs(t, err, repository.ErrNotStepApprover)
}

func TestDecideConcurrentModificationPropagates(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusPending)

	// Another transaction resolved the step between our read and the write.
	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Once()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).
		Return([]*repository.Approval{step1}, nil).Once()
	f.approvals.On("RecordVote", ctx, "a1", "mgr-1").
		Return(0, repository.ErrConcurrentModification).Once()

	_, err := f.machine.Decide(ctx, "a1", "mgr-1", ActionApprove, nil)
	assert.ErrorIs(t, err, repository.ErrConcurrentModification)

	f.approvals.AssertNotCalled(t, "MarkApproved", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.status.AssertNotCalled(t, "OnChainResolved", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDecideStatusCallbackFailureDoesNotFailDecision(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	step1 := approvalStep("a1", 1, repository.StepStatusPending)
	chain := []*repository.Approval{step1}

	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Once()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).Return(chain, nil).Once()
	f.approvals.On("RecordVote", ctx, "a1", "mgr-1").Return(1, nil).Once()
	f.approvals.On("MarkApproved", ctx, "a1", "mgr-1", (*string)(nil)).Return(nil).Once()
	f.status.On("OnChainResolved", ctx, step1.ObjectType, "pr-1", repository.ObjectStatusApproved).
		Return(assert.AnError).Once()
	f.notifier.On("OnChainResolved", ctx, step1.ObjectType, "pr-1", repository.ObjectStatusApproved).Once()

	// The approval rows are the source of truth; a failed downstream callback
	// is logged, not surfaced.
	result, err := f.machine.Decide(ctx, "a1", "mgr-1", ActionApprove, nil)
	assert.NoError(t, err)
	assert.True(t, result.ChainResolved)
}

func TestDecideValidatesInput(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture()

	_, err := f.machine.Decide(ctx, "a1", "", ActionApprove, nil)
	assert.Error(t, err)

	step1 := approvalStep("a1", 1, repository.StepStatusPending)
	f.approvals.On("GetByID", ctx, "a1").Return(step1, nil).Once()
	f.approvals.On("GetChain", ctx, step1.ObjectType, step1.ObjectID).
		Return([]*repository.Approval{step1}, nil).Once()

	_, err = f.machine.Decide(ctx, "a1", "mgr-1", DecisionAction("defer"), nil)
	assert.Error(t, err)
}

func TestChainOutcome(t *testing.T) {
	assert.Equal(t, repository.ObjectStatusStillPending, ChainOutcome(nil))

	assert.Equal(t, repository.ObjectStatusApproved, ChainOutcome([]*repository.Approval{
		approvalStep("a1", 1, repository.StepStatusApproved),
		approvalStep("a2", 2, repository.StepStatusApproved),
	}))

	assert.Equal(t, repository.ObjectStatusRejected, ChainOutcome([]*repository.Approval{
		approvalStep("a1", 1, repository.StepStatusApproved),
		approvalStep("a2", 2, repository.StepStatusRejected),
		approvalStep("a3", 3, repository.StepStatusSkipped),
	}))

	assert.Equal(t, repository.ObjectStatusStillPending, ChainOutcome([]*repository.Approval{
		approvalStep("a1", 1, repository.StepStatusApproved),
		approvalStep("a2", 2, repository.StepStatusPending),
	}))
}

func TestGetPendingApprovalsRequiresApprover(t *testing.T) {
	f := newMachineFixture()
	_, err := f.machine.GetPendingApprovalsFor(context.Background(), "", nil)
	assert.Error(t, err)
}
