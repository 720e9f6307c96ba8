package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

type loginServiceMock struct {
	last models.LoginRequest
}

func (m *loginServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.last = req
	if req.Password != "correct-horse" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "token", ExpiresIn: 3600, User: models.UserInfo{ID: "admin-1", Email: req.Email}}, nil
}

type auditListerMock struct {
	query dto.AuditLogQuery
}

func (m *auditListerMock) List(ctx context.Context, query dto.AuditLogQuery, actor *models.ActingUser) ([]models.AuditLog, error) {
	m.query = query
	if !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	return []models.AuditLog{{ID: "log-1"}}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &loginServiceMock{}
	h := NewAuthHandler(svc)
	c, w := newTestContext(http.MethodPost, "/auth/login", models.LoginRequest{Email: "admin@example.com", Password: "correct-horse"}, nil)

	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "handler-test", svc.last.UserAgent)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "token", data["access_token"])
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&loginServiceMock{})
	c, w := newTestContext(http.MethodPost, "/auth/login", models.LoginRequest{Email: "admin@example.com", Password: "nope"}, nil)

	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&loginServiceMock{})

	c, w := newTestContext(http.MethodGet, "/auth/me", nil, nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newTestContext(http.MethodGet, "/auth/me", nil, adminClaims)
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "admin-1", data["id"])
	assert.Equal(t, []interface{}{"ADMIN"}, data["roles"])
}

func TestAuditHandlerList(t *testing.T) {
	svc := &auditListerMock{}
	h := NewAuditHandler(svc)

	c, w := newTestContext(http.MethodGet, "/audit-logs?resource=approval&resourceId=approval-1", nil, adminClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approval", svc.query.Resource)
	assert.Equal(t, "approval-1", svc.query.ResourceID)

	c, w = newTestContext(http.MethodGet, "/audit-logs", nil, nil)
	h.List(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
