package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/directory-moderation-api/internal/models"
)

const pendingChangeColumns = `id, entity_id, change_type, field_name, old_value, new_value, submitted_by, submitter_email,
       status, reviewed_by, reviewed_at, notes, created_at, updated_at`

type pendingChangeRow struct {
	ID             string                `db:"id"`
	EntityID       string                `db:"entity_id"`
	ChangeType     models.ApprovalType   `db:"change_type"`
	FieldName      *string               `db:"field_name"`
	OldValue       types.NullJSONText    `db:"old_value"`
	NewValue       types.NullJSONText    `db:"new_value"`
	SubmittedBy    string                `db:"submitted_by"`
	SubmitterEmail string                `db:"submitter_email"`
	Status         models.ProposalStatus `db:"status"`
	ReviewedBy     *string               `db:"reviewed_by"`
	ReviewedAt     *time.Time            `db:"reviewed_at"`
	Notes          *string               `db:"notes"`
	CreatedAt      time.Time             `db:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at"`
}

func (row pendingChangeRow) toModel() (*models.PendingChange, error) {
	payload, err := models.DecodePayload(row.ChangeType, models.PayloadColumns{OldValue: row.OldValue, NewValue: row.NewValue})
	if err != nil {
		return nil, fmt.Errorf("pending change %s: %w", row.ID, err)
	}
	return &models.PendingChange{
		ID:             row.ID,
		EntityID:       row.EntityID,
		ChangeType:     row.ChangeType,
		FieldName:      row.FieldName,
		Payload:        payload,
		SubmittedBy:    row.SubmittedBy,
		SubmitterEmail: row.SubmitterEmail,
		Status:         row.Status,
		ReviewedBy:     row.ReviewedBy,
		ReviewedAt:     row.ReviewedAt,
		Notes:          row.Notes,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

// PendingChangeRepository persists owner edits awaiting review.
type PendingChangeRepository struct {
	db *sqlx.DB
}

// NewPendingChangeRepository constructs the repository.
func NewPendingChangeRepository(db *sqlx.DB) *PendingChangeRepository {
	return &PendingChangeRepository{db: db}
}

func (r *PendingChangeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new PENDING change.
func (r *PendingChangeRepository) Create(ctx context.Context, exec sqlx.ExtContext, change *models.PendingChange) error {
	if change == nil || change.Payload == nil {
		return fmt.Errorf("pending change payload is nil")
	}
	if !models.PendingChangeTypeAllowed(change.Payload.Type()) {
		return fmt.Errorf("pending change type %s not supported", change.Payload.Type())
	}
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	change.ChangeType = change.Payload.Type()
	change.Status = models.ProposalStatusPending
	now := time.Now().UTC()
	if change.CreatedAt.IsZero() {
		change.CreatedAt = now
	}
	change.UpdatedAt = now

	cols, err := models.EncodePayload(change.Payload)
	if err != nil {
		return err
	}
	row := pendingChangeRow{
		ID:             change.ID,
		EntityID:       change.EntityID,
		ChangeType:     change.ChangeType,
		FieldName:      change.FieldName,
		OldValue:       cols.OldValue,
		NewValue:       cols.NewValue,
		SubmittedBy:    change.SubmittedBy,
		SubmitterEmail: change.SubmitterEmail,
		Status:         change.Status,
		CreatedAt:      change.CreatedAt,
		UpdatedAt:      change.UpdatedAt,
	}
	const query = `INSERT INTO pending_changes (id, entity_id, change_type, field_name, old_value, new_value,
	submitted_by, submitter_email, status, created_at, updated_at)
	VALUES (:id, :entity_id, :change_type, :field_name, :old_value, :new_value,
	:submitted_by, :submitter_email, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row); err != nil {
		return fmt.Errorf("create pending change: %w", err)
	}
	return nil
}

// GetByID fetches a pending change by identifier.
func (r *PendingChangeRepository) GetByID(ctx context.Context, id string) (*models.PendingChange, error) {
	return r.get(ctx, r.db, `SELECT `+pendingChangeColumns+` FROM pending_changes WHERE id = $1`, id)
}

// GetByIDForUpdate fetches a pending change and locks it for the surrounding transaction.
func (r *PendingChangeRepository) GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PendingChange, error) {
	return r.get(ctx, r.exec(exec), `SELECT `+pendingChangeColumns+` FROM pending_changes WHERE id = $1 FOR UPDATE`, id)
}

func (r *PendingChangeRepository) get(ctx context.Context, q sqlx.QueryerContext, query, id string) (*models.PendingChange, error) {
	var row pendingChangeRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get pending change: %w", err)
	}
	return row.toModel()
}

// List returns pending changes matching the filter, newest first.
func (r *PendingChangeRepository) List(ctx context.Context, filter models.PendingChangeFilter) ([]models.PendingChange, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + pendingChangeColumns + ` FROM pending_changes`)

	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var rows []pendingChangeRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list pending changes: %w", err)
	}
	changes := make([]models.PendingChange, 0, len(rows))
	for _, row := range rows {
		change, err := row.toModel()
		if err != nil {
			return nil, err
		}
		changes = append(changes, *change)
	}
	return changes, nil
}

// MarkDecided moves a PENDING change to its terminal status. sql.ErrNoRows means it was not PENDING.
func (r *PendingChangeRepository) MarkDecided(ctx context.Context, exec sqlx.ExtContext, params DecisionParams) error {
	setParts := []string{
		"status = :status",
		"reviewed_by = :reviewed_by",
		"reviewed_at = :reviewed_at",
		"updated_at = :reviewed_at",
	}
	if params.Notes != nil {
		setParts = append(setParts, "notes = :notes")
	}
	query := fmt.Sprintf("UPDATE pending_changes SET %s WHERE id = :id AND status = '%s'",
		strings.Join(setParts, ", "),
		models.ProposalStatusPending,
	)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":          params.ID,
		"status":      params.Status,
		"reviewed_by": params.ReviewedBy,
		"reviewed_at": params.ReviewedAt,
		"notes":       params.Notes,
	})
	if err != nil {
		return fmt.Errorf("update pending change status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check pending change update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
