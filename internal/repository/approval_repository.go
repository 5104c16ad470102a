package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/onayflow/be-approvals/internal/platform/database"
	"github.com/onayflow/be-approvals/internal/platform/errors"
)

// ApprovalRepository owns the approvals and approval_votes tables. All
// mutations for one object are serialized behind a per-object advisory lock
// taken inside the mutating transaction, so two racing decisions (or a
// double submit) can never interleave: one commits, the other fails its
// status guard.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `
	id, company_id, object_type, object_id, generation, step,
	approver_role, approver_id, required_approvals,
	status, comment, decided_at, created_at, updated_at
`

// lockObject takes a transaction-scoped advisory lock keyed on the object.
// Released automatically at commit or rollback.
func lockObject(ctx context.Context, tx pgx.Tx, objectType ApprovalObjectType, objectID string) error {
	_, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		string(objectType)+":"+objectID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to take object lock")
	}
	return nil
}

// CreateChain inserts all rows of a chain in one transaction. Creation is
// all-or-nothing; a chain for the same object and generation already in
// place fails with ErrChainExists (idempotency guard against double submit).
func (r *ApprovalRepository) CreateChain(ctx context.Context, chain []*Approval) error {
	if len(chain) == 0 {
		return nil
	}
	first := chain[0]

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockObject(ctx, tx, first.ObjectType, first.ObjectID); err != nil {
			return err
		}

		var existing int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM approvals
			WHERE object_type = $1::approval_object_type
			  AND object_id = $2
			  AND generation = $3
		`, first.ObjectType, first.ObjectID, first.Generation).Scan(&existing)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to check for existing chain")
		}
		if existing > 0 {
			return ErrChainExists
		}

		query := `
			INSERT INTO approvals
			    (id, company_id, object_type, object_id, generation, step,
			     approver_role, approver_id, required_approvals, status)
			VALUES ($1, $2, $3::approval_object_type, $4, $5, $6,
			        $7, $8, $9, $10::approval_step_status)
			RETURNING created_at, updated_at
		`

		for _, a := range chain {
			err := tx.QueryRow(ctx, query,
				a.ID,
				a.CompanyID,
				a.ObjectType,
				a.ObjectID,
				a.Generation,
				a.Step,
				a.ApproverRole,
				a.ApproverID,
				a.RequiredApprovals,
				a.Status,
			).Scan(&a.CreatedAt, &a.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval step")
			}
		}
		return nil
	})
}

// GetByID retrieves a single approval row.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*Approval, error) {
	query := `SELECT` + approvalColumns + `FROM approvals WHERE id = $1`

	a, err := r.scanApproval(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval", id)
	}
	return a, err
}

// GetChain returns the latest-generation chain for an object ordered by step.
// Returns an empty slice when the object was never submitted.
func (r *ApprovalRepository) GetChain(ctx context.Context, objectType ApprovalObjectType, objectID string) ([]*Approval, error) {
	query := `
		SELECT` + approvalColumns + `
		FROM approvals
		WHERE object_type = $1::approval_object_type
		  AND object_id = $2
		  AND generation = (
			SELECT COALESCE(MAX(generation), 0)
			FROM approvals
			WHERE object_type = $1::approval_object_type AND object_id = $2
		  )
		ORDER BY step ASC
	`

	rows, err := r.db.Query(ctx, query, objectType, objectID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval chain")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetPendingForApprover returns actionable pending steps for a user across
// all object types: steps bound to the user plus unclaimed steps whose role
// is among the caller's roles, restricted to the lowest non-terminal step of
// each chain. Role membership lives outside this service, so the caller
// supplies the user's roles; with none, only directly-bound steps match.
func (r *ApprovalRepository) GetPendingForApprover(ctx context.Context, approverID string, roles []string) ([]*Approval, error) {
	if roles == nil {
		roles = []string{}
	}

	query := `
		SELECT` + approvalColumns + `
		FROM approvals a
		WHERE a.status = 'pending'
		  AND (a.approver_id = $1
		       OR (a.approver_id IS NULL AND a.approver_role = ANY($2)))
		  AND NOT EXISTS (
			SELECT 1 FROM approvals p
			WHERE p.object_type = a.object_type
			  AND p.object_id = a.object_id
			  AND p.generation = a.generation
			  AND p.step < a.step
			  AND p.status NOT IN ('approved', 'skipped')
		  )
		ORDER BY a.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, approverID, roles)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// RecordVote registers one distinct approve vote on a pending step and
// returns the resulting vote count. The whole operation runs under the
// object lock so concurrent fan-in votes observe accurate counts.
func (r *ApprovalRepository) RecordVote(ctx context.Context, approvalID, approverID string) (int, error) {
	a, err := r.GetByID(ctx, approvalID)
	if err != nil {
		return 0, err
	}

	var votes int
	err = r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockObject(ctx, tx, a.ObjectType, a.ObjectID); err != nil {
			return err
		}

		var status StepStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM approvals WHERE id = $1 FOR UPDATE`,
			approvalID).Scan(&status)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock approval row")
		}
		if status != StepStatusPending {
			return ErrConcurrentModification
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO approval_votes (approval_id, approver_id)
			VALUES ($1, $2)
			ON CONFLICT (approval_id, approver_id) DO NOTHING
		`, approvalID, approverID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record vote")
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicateVote
		}

		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM approval_votes WHERE approval_id = $1`,
			approvalID).Scan(&votes)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to count votes")
		}
		return nil
	})
	return votes, err
}

// MarkApproved transitions a pending step to approved, claiming it for the
// acting approver when the step was role-based. The update is guarded on the
// current status and on every lower step being terminal; losing either guard
// means a concurrent decision won.
func (r *ApprovalRepository) MarkApproved(ctx context.Context, approvalID, approverID string, comment *string) error {
	query := `
		UPDATE approvals a
		SET status      = 'approved'::approval_step_status,
		    approver_id = COALESCE(a.approver_id, $2),
		    comment     = COALESCE($3, a.comment),
		    decided_at  = NOW(),
		    updated_at  = NOW()
		WHERE a.id = $1
		  AND a.status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM approvals p
			WHERE p.object_type = a.object_type
			  AND p.object_id = a.object_id
			  AND p.generation = a.generation
			  AND p.step < a.step
			  AND p.status NOT IN ('approved', 'skipped')
		  )
		RETURNING a.id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, approvalID, approverID, comment).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return ErrConcurrentModification
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to approve step")
	}
	return nil
}

// RejectAndSkip marks a pending step rejected and every higher step of the
// same chain skipped, in one transaction. Callers never observe a partial
// cascade.
func (r *ApprovalRepository) RejectAndSkip(ctx context.Context, approvalID, approverID string, comment *string) error {
	a, err := r.GetByID(ctx, approvalID)
	if err != nil {
		return err
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockObject(ctx, tx, a.ObjectType, a.ObjectID); err != nil {
			return err
		}

		reject := `
			UPDATE approvals a
			SET status      = 'rejected'::approval_step_status,
			    approver_id = COALESCE(a.approver_id, $2),
			    comment     = $3,
			    decided_at  = NOW(),
			    updated_at  = NOW()
			WHERE a.id = $1
			  AND a.status = 'pending'
			RETURNING a.id
		`

		var returnedID string
		err := tx.QueryRow(ctx, reject, approvalID, approverID, comment).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return ErrConcurrentModification
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to reject step")
		}

		skip := `
			UPDATE approvals
			SET status     = 'skipped'::approval_step_status,
			    updated_at = NOW()
			WHERE object_type = $1::approval_object_type
			  AND object_id = $2
			  AND generation = $3
			  AND step > $4
			  AND status = 'pending'
		`

		if _, err := tx.Exec(ctx, skip, a.ObjectType, a.ObjectID, a.Generation, a.Step); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to skip downstream steps")
		}
		return nil
	})
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type approvalScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanApproval(row approvalScanner) (*Approval, error) {
	a := &Approval{}
	err := row.Scan(
		&a.ID,
		&a.CompanyID,
		&a.ObjectType,
		&a.ObjectID,
		&a.Generation,
		&a.Step,
		&a.ApproverRole,
		&a.ApproverID,
		&a.RequiredApprovals,
		&a.Status,
		&a.Comment,
		&a.DecidedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *ApprovalRepository) scanRows(rows pgx.Rows) ([]*Approval, error) {
	var approvals []*Approval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	return approvals, nil
}
