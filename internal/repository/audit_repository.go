package repository

import (
	"context"
	"encoding/json"

	"github.com/onayflow/be-approvals/internal/platform/database"
	"github.com/onayflow/be-approvals/internal/platform/errors"
)

// AuditRepository appends and reads immutable approval audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. The table has a delete-prevention trigger
// so this is the only mutation operation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (company_id, object_type, object_id, approval_id,
		     action, performed_by,
		     object_status_before, object_status_after,
		     metadata)
		VALUES ($1, $2::approval_object_type, $3, $4,
		        $5, $6,
		        $7, $8,
		        $9)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.CompanyID,
		entry.ObjectType,
		entry.ObjectID,
		entry.ApprovalID,
		entry.Action,
		entry.PerformedBy,
		entry.ObjectStatusBefore,
		entry.ObjectStatusAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// GetByObject returns the full audit trail for an object ordered oldest-first.
func (r *AuditRepository) GetByObject(ctx context.Context, objectType ApprovalObjectType, objectID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, company_id, object_type, object_id, approval_id,
		       action, performed_by, performed_at,
		       object_status_before, object_status_after,
		       metadata
		FROM approval_audit_log
		WHERE object_type = $1::approval_object_type AND object_id = $2
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, objectType, objectID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type auditScanner interface {
	Scan(dest ...any) error
}

func (r *AuditRepository) scanEntry(sc auditScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.CompanyID,
		&entry.ObjectType,
		&entry.ObjectID,
		&entry.ApprovalID,
		&entry.Action,
		&entry.PerformedBy,
		&entry.PerformedAt,
		&entry.ObjectStatusBefore,
		&entry.ObjectStatusAfter,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}
	return entry, nil
}
