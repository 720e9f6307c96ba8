package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

type pendingChangeServiceMock struct {
	query    dto.PendingChangeQuery
	decision dto.DecisionRequest
}

func (m *pendingChangeServiceMock) ListPendingChanges(ctx context.Context, query dto.PendingChangeQuery, actor *models.ActingUser) ([]models.PendingChange, error) {
	m.query = query
	return []models.PendingChange{{ID: "change-1", EntityID: query.EntityID, Status: models.ProposalStatusPending}}, nil
}

func (m *pendingChangeServiceMock) GetPendingChange(ctx context.Context, id string, actor *models.ActingUser) (*models.PendingChange, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	return &models.PendingChange{ID: id}, nil
}

func (m *pendingChangeServiceMock) DecidePendingChange(ctx context.Context, id string, req dto.DecisionRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.PendingChangeDecision, error) {
	m.decision = req
	change := &models.PendingChange{ID: id, Status: req.Decision.Status()}
	return &dto.PendingChangeDecision{PendingChange: change}, nil
}

func TestPendingChangeHandlerList(t *testing.T) {
	svc := &pendingChangeServiceMock{}
	h := NewPendingChangeHandler(svc)
	c, w := newTestContext(http.MethodGet, "/pending-changes?entityId=entity-1&limit=500", nil, adminClaims)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "entity-1", svc.query.EntityID)
	page := decodeEnvelope(t, w)["pagination"].(map[string]interface{})
	assert.EqualValues(t, defaultPageSize, page["limit"])
}

func TestPendingChangeHandlerGetRequiresAdmin(t *testing.T) {
	h := NewPendingChangeHandler(&pendingChangeServiceMock{})
	c, w := newTestContext(http.MethodGet, "/pending-changes/change-1", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "change-1"}}

	h.Get(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPendingChangeHandlerDecide(t *testing.T) {
	svc := &pendingChangeServiceMock{}
	h := NewPendingChangeHandler(svc)
	c, w := newTestContext(http.MethodPost, "/pending-changes/change-1/decision", dto.DecisionRequest{Decision: models.DecisionReject, Notes: "stale"}, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "change-1"}}

	h.Decide(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stale", svc.decision.Notes)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "REJECTED", data["pendingChange"].(map[string]interface{})["status"])
}

func TestPendingChangeHandlerDecideInvalidBody(t *testing.T) {
	h := NewPendingChangeHandler(&pendingChangeServiceMock{})
	c, w := newTestContext(http.MethodPost, "/pending-changes/change-1/decision", "[]", adminClaims)

	h.Decide(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
