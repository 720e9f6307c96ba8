package service

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/directory-moderation-api/internal/models"
	"github.com/noah-isme/directory-moderation-api/internal/repository"
)

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func cloneEntity(e *models.Entity) *models.Entity {
	c := *e
	c.NameTranslations = maps.Clone(e.NameTranslations)
	c.DescriptionTranslations = maps.Clone(e.DescriptionTranslations)
	c.SocialMedia = maps.Clone(e.SocialMedia)
	c.Hours = maps.Clone(e.Hours)
	c.Images = maps.Clone(e.Images)
	if e.Latitude != nil {
		lat := *e.Latitude
		c.Latitude = &lat
	}
	if e.Longitude != nil {
		lon := *e.Longitude
		c.Longitude = &lon
	}
	return &c
}

// entityStoreStub is an in-memory entity graph.
type entityStoreStub struct {
	mu         sync.Mutex
	byID       map[string]*models.Entity
	categories map[string][]string
	tags       map[string]map[string]*models.EntityTag
	seq        int
	createErr  error
	updateErr  error
	candidates []models.DuplicateCandidate
}

func newEntityStoreStub(entities ...*models.Entity) *entityStoreStub {
	s := &entityStoreStub{
		byID:       map[string]*models.Entity{},
		categories: map[string][]string{},
		tags:       map[string]map[string]*models.EntityTag{},
	}
	for _, e := range entities {
		s.byID[e.ID] = cloneEntity(e)
	}
	return s
}

func (s *entityStoreStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneEntity(e), nil
}

func (s *entityStoreStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Entity, error) {
	return s.FindByID(ctx, exec, id)
}

func (s *entityStoreStub) FindBySlug(ctx context.Context, slug string) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byID {
		if e.Slug == slug {
			return cloneEntity(e), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *entityStoreStub) List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Entity
	for _, e := range s.byID {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && e.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, *cloneEntity(e))
	}
	return out, nil
}

func (s *entityStoreStub) LockSlug(ctx context.Context, exec sqlx.ExtContext, base string) error {
	return nil
}

func (s *entityStoreStub) SlugsWithPrefix(ctx context.Context, exec sqlx.ExtContext, base string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.byID {
		if e.Slug == base || strings.HasPrefix(e.Slug, base+"-") {
			out = append(out, e.Slug)
		}
	}
	return out, nil
}

func (s *entityStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, entity *models.Entity) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byID {
		if e.Slug == entity.Slug {
			return fmt.Errorf("duplicate slug %s", entity.Slug)
		}
	}
	s.seq++
	entity.ID = fmt.Sprintf("entity-new-%d", s.seq)
	entity.CreatedAt = time.Now().UTC()
	entity.UpdatedAt = entity.CreatedAt
	s.byID[entity.ID] = cloneEntity(entity)
	return nil
}

func (s *entityStoreStub) Update(ctx context.Context, exec sqlx.ExtContext, entity *models.Entity) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[entity.ID]
	if !ok {
		return sql.ErrNoRows
	}
	next := cloneEntity(entity)
	next.Slug = current.Slug
	s.byID[entity.ID] = next
	return nil
}

func (s *entityStoreStub) AttachCategories(ctx context.Context, exec sqlx.ExtContext, entityID string, categoryIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range categoryIDs {
		found := false
		for _, existing := range s.categories[entityID] {
			if existing == id {
				found = true
			}
		}
		if !found {
			s.categories[entityID] = append(s.categories[entityID], id)
		}
	}
	return nil
}

func (s *entityStoreStub) UpsertVerifiedTag(ctx context.Context, exec sqlx.ExtContext, entityID, tagID, addedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tags[entityID] == nil {
		s.tags[entityID] = map[string]*models.EntityTag{}
	}
	if assoc, ok := s.tags[entityID][tagID]; ok {
		assoc.Verified = true
		return nil
	}
	by := addedBy
	s.tags[entityID][tagID] = &models.EntityTag{EntityID: entityID, TagID: tagID, Verified: true, AddedBy: &by}
	return nil
}

func (s *entityStoreStub) RemoveTag(ctx context.Context, exec sqlx.ExtContext, entityID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags[entityID], tagID)
	return nil
}

func (s *entityStoreStub) ListCategories(ctx context.Context, entityID string) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Category
	for _, id := range s.categories[entityID] {
		out = append(out, models.Category{ID: id})
	}
	return out, nil
}

func (s *entityStoreStub) ListTags(ctx context.Context, entityID string) ([]models.EntityTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EntityTag
	for _, t := range s.tags[entityID] {
		out = append(out, *t)
	}
	return out, nil
}

func (s *entityStoreStub) FindDuplicateCandidates(ctx context.Context, name, websiteHost, address string) ([]models.DuplicateCandidate, error) {
	return s.candidates, nil
}

func (s *entityStoreStub) get(id string) *models.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		return cloneEntity(e)
	}
	return nil
}

func (s *entityStoreStub) bySlug(slug string) *models.Entity {
	e, _ := s.FindBySlug(context.Background(), slug)
	return e
}

type catalogStub struct {
	categories map[string]models.Category
	tags       map[string]models.Tag
	err        error
}

func newCatalogStub() *catalogStub {
	return &catalogStub{
		categories: map[string]models.Category{
			"restaurants": {ID: "cat-restaurants", Slug: "restaurants", Name: "Restaurants"},
			"cafes":       {ID: "cat-cafes", Slug: "cafes", Name: "Cafes"},
		},
		tags: map[string]models.Tag{
			"vegan": {ID: "tag-vegan", Slug: "vegan", Name: "Vegan"},
			"wifi":  {ID: "tag-wifi", Slug: "wifi", Name: "Wi-Fi"},
		},
	}
}

func (c *catalogStub) FindCategoriesBySlugs(ctx context.Context, exec sqlx.ExtContext, slugs []string) ([]models.Category, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []models.Category
	for _, s := range slugs {
		if cat, ok := c.categories[s]; ok {
			out = append(out, cat)
		}
	}
	return out, nil
}

func (c *catalogStub) FindTagsBySlugs(ctx context.Context, exec sqlx.ExtContext, slugs []string) ([]models.Tag, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []models.Tag
	for _, s := range slugs {
		if tag, ok := c.tags[s]; ok {
			out = append(out, tag)
		}
	}
	return out, nil
}

func (c *catalogStub) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	return out, nil
}

func (c *catalogStub) ListTags(ctx context.Context) ([]models.Tag, error) {
	var out []models.Tag
	for _, t := range c.tags {
		out = append(out, t)
	}
	return out, nil
}

type userStub struct {
	ids map[string]bool
}

func (u *userStub) Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	return u.ids[id], nil
}

type approvalStoreStub struct {
	items map[string]*models.Approval
	seq   int
}

func newApprovalStoreStub() *approvalStoreStub {
	return &approvalStoreStub{items: map[string]*models.Approval{}}
}

func (s *approvalStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, approval *models.Approval) error {
	s.seq++
	approval.ID = fmt.Sprintf("approval-%d", s.seq)
	approval.Type = approval.Payload.Type()
	approval.Status = models.ProposalStatusPending
	approval.CreatedAt = time.Now().UTC()
	approval.UpdatedAt = approval.CreatedAt
	copied := *approval
	s.items[approval.ID] = &copied
	return nil
}

func (s *approvalStoreStub) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	a, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (s *approvalStoreStub) GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Approval, error) {
	return s.GetByID(ctx, id)
}

func (s *approvalStoreStub) List(ctx context.Context, filter models.ApprovalFilter) ([]models.Approval, error) {
	var out []models.Approval
	for _, a := range s.items {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *approvalStoreStub) MarkDecided(ctx context.Context, exec sqlx.ExtContext, params repository.DecisionParams) error {
	a, ok := s.items[params.ID]
	if !ok || a.Status != models.ProposalStatusPending {
		return sql.ErrNoRows
	}
	a.Status = params.Status
	a.ReviewedBy = &params.ReviewedBy
	a.ReviewedAt = &params.ReviewedAt
	a.Notes = params.Notes
	if params.EntityID != nil {
		a.EntityID = params.EntityID
	}
	return nil
}

type pendingStoreStub struct {
	items map[string]*models.PendingChange
	seq   int
}

func newPendingStoreStub() *pendingStoreStub {
	return &pendingStoreStub{items: map[string]*models.PendingChange{}}
}

func (s *pendingStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, change *models.PendingChange) error {
	if !models.PendingChangeTypeAllowed(change.Payload.Type()) {
		return fmt.Errorf("pending change type %s not allowed", change.Payload.Type())
	}
	s.seq++
	change.ID = fmt.Sprintf("pending-%d", s.seq)
	change.ChangeType = change.Payload.Type()
	change.Status = models.ProposalStatusPending
	change.CreatedAt = time.Now().UTC()
	change.UpdatedAt = change.CreatedAt
	copied := *change
	s.items[change.ID] = &copied
	return nil
}

func (s *pendingStoreStub) GetByID(ctx context.Context, id string) (*models.PendingChange, error) {
	c, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (s *pendingStoreStub) GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PendingChange, error) {
	return s.GetByID(ctx, id)
}

func (s *pendingStoreStub) List(ctx context.Context, filter models.PendingChangeFilter) ([]models.PendingChange, error) {
	var out []models.PendingChange
	for _, c := range s.items {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.EntityID != "" && c.EntityID != filter.EntityID {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *pendingStoreStub) MarkDecided(ctx context.Context, exec sqlx.ExtContext, params repository.DecisionParams) error {
	c, ok := s.items[params.ID]
	if !ok || c.Status != models.ProposalStatusPending {
		return sql.ErrNoRows
	}
	c.Status = params.Status
	c.ReviewedBy = &params.ReviewedBy
	c.ReviewedAt = &params.ReviewedAt
	c.Notes = params.Notes
	return nil
}

type notifierStub struct {
	submitted []ProposalEvent
	decided   []ProposalEvent
}

func (n *notifierStub) ProposalSubmitted(ctx context.Context, event ProposalEvent) {
	n.submitted = append(n.submitted, event)
}

func (n *notifierStub) ProposalDecided(ctx context.Context, event ProposalEvent) {
	n.decided = append(n.decided, event)
}

type invalidatorStub struct {
	slugs []string
}

func (i *invalidatorStub) InvalidateEntity(ctx context.Context, slug string) {
	i.slugs = append(i.slugs, slug)
}

type metricsStub struct {
	proposals []string
	applies   []string
}

func (m *metricsStub) RecordProposal(kind string, variant models.ApprovalType, outcome string) {
	m.proposals = append(m.proposals, kind+":"+string(variant)+":"+outcome)
}

func (m *metricsStub) ObserveApply(variant models.ApprovalType, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.applies = append(m.applies, string(variant)+":"+result)
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
