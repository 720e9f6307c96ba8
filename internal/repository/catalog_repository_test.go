package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRepositoryFindCategoriesBySlugs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE slug = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "created_at"}).
			AddRow("cat-1", "restaurants", "Restaurants", time.Now()))

	categories, err := repo.FindCategoriesBySlugs(context.Background(), nil, []string{"restaurants", "gone"})
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "cat-1", categories[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryEmptySlugsSkipsQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	tags, err := repo.FindTagsBySlugs(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

