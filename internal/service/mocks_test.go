package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/onayflow/be-approvals/internal/repository"
)

// MockWorkflowStore is a mock implementation of WorkflowStore.
type MockWorkflowStore struct {
	mock.Mock
}

func (m *MockWorkflowStore) Upsert(ctx context.Context, wf *repository.ApprovalWorkflow) error {
	args := m.Called(ctx, wf)
	return args.Error(0)
}

func (m *MockWorkflowStore) GetByID(ctx context.Context, id string) (*repository.ApprovalWorkflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ApprovalWorkflow), args.Error(1)
}

func (m *MockWorkflowStore) GetActive(ctx context.Context, companyID string, objectType repository.ApprovalObjectType) (*repository.ApprovalWorkflow, error) {
	args := m.Called(ctx, companyID, objectType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ApprovalWorkflow), args.Error(1)
}

func (m *MockWorkflowStore) List(ctx context.Context, companyID string) ([]*repository.ApprovalWorkflow, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.ApprovalWorkflow), args.Error(1)
}

func (m *MockWorkflowStore) SetActive(ctx context.Context, id string, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

// MockApprovalStore is a mock implementation of ApprovalStore.
type MockApprovalStore struct {
	mock.Mock
}

func (m *MockApprovalStore) CreateChain(ctx context.Context, chain []*repository.Approval) error {
	args := m.Called(ctx, chain)
	return args.Error(0)
}

func (m *MockApprovalStore) GetByID(ctx context.Context, id string) (*repository.Approval, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Approval), args.Error(1)
}

func (m *MockApprovalStore) GetChain(ctx context.Context, objectType repository.ApprovalObjectType, objectID string) ([]*repository.Approval, error) {
	args := m.Called(ctx, objectType, objectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Approval), args.Error(1)
}

func (m *MockApprovalStore) GetPendingForApprover(ctx context.Context, approverID string, roles []string) ([]*repository.Approval, error) {
	args := m.Called(ctx, approverID, roles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Approval), args.Error(1)
}

func (m *MockApprovalStore) RecordVote(ctx context.Context, approvalID, approverID string) (int, error) {
	args := m.Called(ctx, approvalID, approverID)
	return args.Int(0), args.Error(1)
}

func (m *MockApprovalStore) MarkApproved(ctx context.Context, approvalID, approverID string, comment *string) error {
	args := m.Called(ctx, approvalID, approverID, comment)
	return args.Error(0)
}

func (m *MockApprovalStore) RejectAndSkip(ctx context.Context, approvalID, approverID string, comment *string) error {
	args := m.Called(ctx, approvalID, approverID, comment)
	return args.Error(0)
}

// MockAuditStore is a mock implementation of AuditStore.
type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) Append(ctx context.Context, entry *repository.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditStore) GetByObject(ctx context.Context, objectType repository.ApprovalObjectType, objectID string) ([]*repository.AuditEntry, error) {
	args := m.Called(ctx, objectType, objectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.AuditEntry), args.Error(1)
}

// MockNotificationSink is a mock implementation of NotificationSink.
type MockNotificationSink struct {
	mock.Mock
}

func (m *MockNotificationSink) OnStepBecameActionable(ctx context.Context, approval *repository.Approval) {
	m.Called(ctx, approval)
}

func (m *MockNotificationSink) OnChainResolved(ctx context.Context, objectType repository.ApprovalObjectType, objectID string, finalStatus repository.ObjectStatus) {
	m.Called(ctx, objectType, objectID, finalStatus)
}

// MockObjectStatusCallback is a mock implementation of ObjectStatusCallback.
type MockObjectStatusCallback struct {
	mock.Mock
}

func (m *MockObjectStatusCallback) OnChainResolved(ctx context.Context, objectType repository.ApprovalObjectType, objectID string, finalStatus repository.ObjectStatus) error {
	args := m.Called(ctx, objectType, objectID, finalStatus)
	return args.Error(0)
}

// ── Test helpers ──────────────────────────────────────────────────────────────

func strPtr(s string) *string { return &s }

func i64Ptr(v int64) *int64 { return &v }
