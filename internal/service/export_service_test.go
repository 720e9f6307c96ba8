package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

func seedApprovals(n int) *approvalStoreStub {
	store := newApprovalStoreStub()
	for i := 0; i < n; i++ {
		_ = store.Create(context.Background(), nil, &models.Approval{
			Payload:        &models.NewEntityPayload{Name: fmt.Sprintf("Place %d", i)},
			SubmitterEmail: "visitor@example.com",
			Source:         models.SourcePublic,
		})
	}
	return store
}

func TestExportProposalsCSV(t *testing.T) {
	store := seedApprovals(3)
	notes := "duplicate, see entity-1"
	store.items["approval-2"].Status = models.ProposalStatusRejected
	store.items["approval-2"].Notes = &notes

	svc := NewExportService(store, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

	file, err := svc.ExportProposals(context.Background(), dto.ProposalQuery{Status: "rejected"}, "CSV", adminActor)
	require.NoError(t, err)
	assert.Equal(t, "proposals_20240301_093000.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)

	records, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ID", records[0][0])
	assert.Equal(t, "approval-2", records[1][0])
	assert.Equal(t, "Place 1", records[1][4])
	assert.Equal(t, notes, records[1][10])
}

func TestExportProposalsPagesThroughResults(t *testing.T) {
	svc := NewExportService(seedApprovals(exportPageSize+5), nil)

	file, err := svc.ExportProposals(context.Background(), dto.ProposalQuery{}, "", adminActor)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, exportPageSize+6)
}

func TestExportProposalsPDF(t *testing.T) {
	file, err := NewExportService(seedApprovals(2), nil).ExportProposals(context.Background(), dto.ProposalQuery{}, "pdf", adminActor)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF-")))
}

func TestExportProposalsRejects(t *testing.T) {
	svc := NewExportService(seedApprovals(1), nil)

	_, err := svc.ExportProposals(context.Background(), dto.ProposalQuery{}, "xlsx", adminActor)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	_, err = svc.ExportProposals(context.Background(), dto.ProposalQuery{}, "csv", ownerActor)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}
