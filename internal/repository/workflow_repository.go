package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/onayflow/be-approvals/internal/platform/database"
	"github.com/onayflow/be-approvals/internal/platform/errors"
)

// WorkflowRepository handles CRUD for approval_workflows. Rule validation is
// the registry's job; this layer only persists.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Upsert inserts or updates a workflow. When the workflow is active, any
// other active workflow for the same (company, object_type) pair is
// deactivated in the same transaction, keeping the single-active invariant.
func (r *WorkflowRepository) Upsert(ctx context.Context, wf *ApprovalWorkflow) error {
	rulesJSON, err := json.Marshal(wf.Rules)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal threshold rules")
	}

	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if wf.IsActive {
			deactivate := `
				UPDATE approval_workflows
				SET is_active  = FALSE,
				    updated_at = NOW()
				WHERE company_id = $1
				  AND object_type = $2::approval_object_type
				  AND is_active
				  AND id <> $3
			`
			if _, err := tx.Exec(ctx, deactivate, wf.CompanyID, wf.ObjectType, wf.ID); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to deactivate previous workflow")
			}
		}

		query := `
			INSERT INTO approval_workflows
			    (id, company_id, object_type, is_active, threshold_rules)
			VALUES ($1, $2, $3::approval_object_type, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET is_active       = EXCLUDED.is_active,
			    threshold_rules = EXCLUDED.threshold_rules,
			    updated_at      = NOW()
			RETURNING created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			wf.ID,
			wf.CompanyID,
			wf.ObjectType,
			wf.IsActive,
			rulesJSON,
		).Scan(&wf.CreatedAt, &wf.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert approval workflow")
		}
		return nil
	})
}

// GetByID retrieves a workflow by primary key.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	query := `
		SELECT id, company_id, object_type, is_active, threshold_rules,
		       created_at, updated_at
		FROM approval_workflows
		WHERE id = $1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_workflow", id)
	}
	return wf, err
}

// GetActive returns the active workflow for a (company, object type) pair.
// Returns nil (no error) when none is configured — callers treat that as the
// auto-approval path.
func (r *WorkflowRepository) GetActive(ctx context.Context, companyID string, objectType ApprovalObjectType) (*ApprovalWorkflow, error) {
	query := `
		SELECT id, company_id, object_type, is_active, threshold_rules,
		       created_at, updated_at
		FROM approval_workflows
		WHERE company_id = $1
		  AND object_type = $2::approval_object_type
		  AND is_active
		LIMIT 1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, companyID, objectType))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return wf, err
}

// List returns all workflows for a company, active or not.
func (r *WorkflowRepository) List(ctx context.Context, companyID string) ([]*ApprovalWorkflow, error) {
	query := `
		SELECT id, company_id, object_type, is_active, threshold_rules,
		       created_at, updated_at
		FROM approval_workflows
		WHERE company_id = $1
		ORDER BY object_type ASC, created_at DESC
	`

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflows")
	}
	defer rows.Close()

	var workflows []*ApprovalWorkflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow")
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// SetActive flips a workflow's is_active flag. Already-built chains are not
// affected: they carry their own step snapshots.
func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE approval_workflows
		SET is_active  = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, active).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_workflow", id)
	}
	return err
}

// ── scan helper ───────────────────────────────────────────────────────────────

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row workflowScanner) (*ApprovalWorkflow, error) {
	wf := &ApprovalWorkflow{}
	var rulesJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.CompanyID,
		&wf.ObjectType,
		&wf.IsActive,
		&rulesJSON,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rulesJSON, &wf.Rules); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal threshold rules")
	}
	return wf, nil
}
