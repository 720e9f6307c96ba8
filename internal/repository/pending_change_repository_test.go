package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/directory-moderation-api/internal/models"
)

func TestPendingChangeRepositoryCreateRejectsUnsupportedType(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewPendingChangeRepository(db)

	err := repo.Create(context.Background(), nil, &models.PendingChange{
		EntityID: "entity-1",
		Payload:  &models.AddTagPayload{},
	})
	require.Error(t, err)
}

func TestPendingChangeRepositoryCreateAndGetForUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPendingChangeRepository(db)

	oldPhone, newPhone := "111", "222"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pending_changes")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	change := &models.PendingChange{
		EntityID:    "entity-1",
		SubmittedBy: "owner-1",
		Payload: &models.UpdateEntityPayload{
			Old: models.EntityFields{Phone: &oldPhone},
			New: models.EntityFields{Phone: &newPhone},
		},
	}
	require.NoError(t, repo.Create(context.Background(), nil, change))
	assert.Equal(t, models.ApprovalTypeUpdateEntity, change.ChangeType)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "entity_id", "change_type", "field_name", "old_value", "new_value", "submitted_by",
		"submitter_email", "status", "reviewed_by", "reviewed_at", "notes", "created_at", "updated_at"}).
		AddRow(change.ID, "entity-1", "UPDATE_ENTITY", "phone", `{"phone":"111"}`, `{"phone":"222"}`, "owner-1",
			"owner@example.com", "PENDING", nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM pending_changes WHERE id = $1 FOR UPDATE")).
		WithArgs(change.ID).
		WillReturnRows(rows)

	found, err := repo.GetByIDForUpdate(context.Background(), nil, change.ID)
	require.NoError(t, err)
	payload, ok := found.Payload.(*models.UpdateEntityPayload)
	require.True(t, ok)
	require.NotNil(t, payload.New.Phone)
	assert.Equal(t, "222", *payload.New.Phone)
	require.NotNil(t, found.FieldName)
	assert.Equal(t, "phone", *found.FieldName)
	require.NoError(t, mock.ExpectationsWereMet())
}
