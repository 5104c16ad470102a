package service

import (
	"context"
	"sync"

	"github.com/onayflow/be-approvals/internal/platform/errors"
	"github.com/onayflow/be-approvals/internal/platform/logger"
	"github.com/onayflow/be-approvals/internal/repository"
)

// WorkflowRegistry stores one active workflow per (company, object type)
// pair. Lookups are read-mostly and served from an in-process cache that is
// invalidated on every configuration write.
type WorkflowRegistry struct {
	store WorkflowStore
	log   *logger.Logger

	mu    sync.RWMutex
	cache map[registryKey]*cacheEntry
}

type registryKey struct {
	companyID  string
	objectType repository.ApprovalObjectType
}

// cacheEntry caches both hits and "no workflow configured" misses.
type cacheEntry struct {
	wf *repository.ApprovalWorkflow
}

// NewWorkflowRegistry creates a new WorkflowRegistry.
func NewWorkflowRegistry(store WorkflowStore, log *logger.Logger) *WorkflowRegistry {
	return &WorkflowRegistry{
		store: store,
		log:   log,
		cache: make(map[registryKey]*cacheEntry),
	}
}

// GetActiveWorkflow returns the active workflow for the pair, or nil when
// none is configured. A nil result means "no approval required" and is the
// documented auto-approval path, not an error.
func (r *WorkflowRegistry) GetActiveWorkflow(ctx context.Context, companyID string, objectType repository.ApprovalObjectType) (*repository.ApprovalWorkflow, error) {
	if !objectType.IsValid() {
		return nil, errors.InvalidInput("object_type", "unknown object type")
	}

	key := registryKey{companyID: companyID, objectType: objectType}

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return entry.wf, nil
	}

	wf, err := r.store.GetActive(ctx, companyID, objectType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = &cacheEntry{wf: wf}
	r.mu.Unlock()

	return wf, nil
}

// UpsertWorkflow validates the rule partition and persists the workflow.
// On violation nothing is persisted. The cache entry for the pair is
// invalidated on success.
func (r *WorkflowRegistry) UpsertWorkflow(ctx context.Context, wf *repository.ApprovalWorkflow) error {
	if !wf.ObjectType.IsValid() {
		return errors.InvalidInput("object_type", "unknown object type")
	}
	if wf.CompanyID == "" {
		return errors.InvalidInput("company_id", "company is required")
	}
	if err := ValidateThresholdRules(wf.Rules); err != nil {
		return err
	}

	// Default fan-in to a single approval per step.
	for i := range wf.Rules {
		for j := range wf.Rules[i].Steps {
			if wf.Rules[i].Steps[j].RequiredApprovals == 0 {
				wf.Rules[i].Steps[j].RequiredApprovals = 1
			}
		}
	}

	if err := r.store.Upsert(ctx, wf); err != nil {
		return err
	}

	r.invalidate(wf.CompanyID, wf.ObjectType)

	r.log.Info().
		Str("workflow_id", wf.ID).
		Str("company_id", wf.CompanyID).
		Str("object_type", string(wf.ObjectType)).
		Bool("is_active", wf.IsActive).
		Msg("Approval workflow saved")

	return nil
}

// DeactivateWorkflow sets is_active = false. In-flight chains are not
// affected: they carry their own step snapshots.
func (r *WorkflowRegistry) DeactivateWorkflow(ctx context.Context, id string) error {
	wf, err := r.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.store.SetActive(ctx, id, false); err != nil {
		return err
	}

	r.invalidate(wf.CompanyID, wf.ObjectType)

	r.log.Info().
		Str("workflow_id", id).
		Str("company_id", wf.CompanyID).
		Str("object_type", string(wf.ObjectType)).
		Msg("Approval workflow deactivated")

	return nil
}

// GetWorkflow returns a workflow by ID.
func (r *WorkflowRegistry) GetWorkflow(ctx context.Context, id string) (*repository.ApprovalWorkflow, error) {
	return r.store.GetByID(ctx, id)
}

// ListWorkflows returns all workflows for a company.
func (r *WorkflowRegistry) ListWorkflows(ctx context.Context, companyID string) ([]*repository.ApprovalWorkflow, error) {
	return r.store.List(ctx, companyID)
}

func (r *WorkflowRegistry) invalidate(companyID string, objectType repository.ApprovalObjectType) {
	r.mu.Lock()
	delete(r.cache, registryKey{companyID: companyID, objectType: objectType})
	r.mu.Unlock()
}
