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

const approvalColumns = `id, type, status, entity_id, entity_data, old_value, new_value, submitted_by, submitter_email,
       source, reviewed_by, reviewed_at, notes, created_at, updated_at`

type approvalRow struct {
	ID             string                `db:"id"`
	Type           models.ApprovalType   `db:"type"`
	Status         models.ProposalStatus `db:"status"`
	EntityID       *string               `db:"entity_id"`
	EntityData     types.NullJSONText    `db:"entity_data"`
	OldValue       types.NullJSONText    `db:"old_value"`
	NewValue       types.NullJSONText    `db:"new_value"`
	SubmittedBy    *string               `db:"submitted_by"`
	SubmitterEmail string                `db:"submitter_email"`
	Source         string                `db:"source"`
	ReviewedBy     *string               `db:"reviewed_by"`
	ReviewedAt     *time.Time            `db:"reviewed_at"`
	Notes          *string               `db:"notes"`
	CreatedAt      time.Time             `db:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at"`
}

func (row approvalRow) toModel() (*models.Approval, error) {
	payload, err := models.DecodePayload(row.Type, models.PayloadColumns{
		EntityData: row.EntityData,
		OldValue:   row.OldValue,
		NewValue:   row.NewValue,
	})
	if err != nil {
		return nil, fmt.Errorf("approval %s: %w", row.ID, err)
	}
	return &models.Approval{
		ID:             row.ID,
		Type:           row.Type,
		Status:         row.Status,
		EntityID:       row.EntityID,
		Payload:        payload,
		SubmittedBy:    row.SubmittedBy,
		SubmitterEmail: row.SubmitterEmail,
		Source:         row.Source,
		ReviewedBy:     row.ReviewedBy,
		ReviewedAt:     row.ReviewedAt,
		Notes:          row.Notes,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

// ApprovalRepository persists queued proposals.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new PENDING approval.
func (r *ApprovalRepository) Create(ctx context.Context, exec sqlx.ExtContext, approval *models.Approval) error {
	if approval == nil || approval.Payload == nil {
		return fmt.Errorf("approval payload is nil")
	}
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	approval.Type = approval.Payload.Type()
	approval.Status = models.ProposalStatusPending
	now := time.Now().UTC()
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = now
	}
	approval.UpdatedAt = now

	cols, err := models.EncodePayload(approval.Payload)
	if err != nil {
		return err
	}
	row := approvalRow{
		ID:             approval.ID,
		Type:           approval.Type,
		Status:         approval.Status,
		EntityID:       approval.EntityID,
		EntityData:     cols.EntityData,
		OldValue:       cols.OldValue,
		NewValue:       cols.NewValue,
		SubmittedBy:    approval.SubmittedBy,
		SubmitterEmail: approval.SubmitterEmail,
		Source:         approval.Source,
		CreatedAt:      approval.CreatedAt,
		UpdatedAt:      approval.UpdatedAt,
	}
	const query = `INSERT INTO approvals (id, type, status, entity_id, entity_data, old_value, new_value, submitted_by,
	submitter_email, source, created_at, updated_at)
	VALUES (:id, :type, :status, :entity_id, :entity_data, :old_value, :new_value, :submitted_by,
	:submitter_email, :source, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// GetByID fetches an approval by identifier.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	return r.get(ctx, r.db, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)
}

// GetByIDForUpdate fetches an approval and locks it for the surrounding transaction.
func (r *ApprovalRepository) GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Approval, error) {
	return r.get(ctx, r.exec(exec), `SELECT `+approvalColumns+` FROM approvals WHERE id = $1 FOR UPDATE`, id)
}

func (r *ApprovalRepository) get(ctx context.Context, q sqlx.QueryerContext, query, id string) (*models.Approval, error) {
	var row approvalRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return row.toModel()
}

// List returns approvals matching the filter, newest first.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.Approval, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + approvalColumns + ` FROM approvals`)

	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var rows []approvalRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	approvals := make([]models.Approval, 0, len(rows))
	for _, row := range rows {
		approval, err := row.toModel()
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, *approval)
	}
	return approvals, nil
}

// DecisionParams groups the columns written once at review time.
type DecisionParams struct {
	ID         string
	Status     models.ProposalStatus
	ReviewedBy string
	ReviewedAt time.Time
	Notes      *string
	// EntityID links a NEW_ENTITY approval to the listing it created.
	EntityID *string
}

// MarkDecided moves a PENDING approval to its terminal status. sql.ErrNoRows means it was not PENDING.
func (r *ApprovalRepository) MarkDecided(ctx context.Context, exec sqlx.ExtContext, params DecisionParams) error {
	setParts := []string{
		"status = :status",
		"reviewed_by = :reviewed_by",
		"reviewed_at = :reviewed_at",
		"updated_at = :reviewed_at",
	}
	if params.Notes != nil {
		setParts = append(setParts, "notes = :notes")
	}
	if params.EntityID != nil {
		setParts = append(setParts, "entity_id = :entity_id")
	}
	query := fmt.Sprintf("UPDATE approvals SET %s WHERE id = :id AND status = '%s'",
		strings.Join(setParts, ", "),
		models.ProposalStatusPending,
	)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":          params.ID,
		"status":      params.Status,
		"reviewed_by": params.ReviewedBy,
		"reviewed_at": params.ReviewedAt,
		"notes":       params.Notes,
		"entity_id":   params.EntityID,
	})
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
