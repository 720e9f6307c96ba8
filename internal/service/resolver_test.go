package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSlugs(t *testing.T) {
	assert.Equal(t, []string{"vegan", "wifi"}, NormalizeSlugs([]string{" Vegan", "", "wifi", "VEGAN"}))
	assert.Empty(t, NormalizeSlugs(nil))
}

func TestMatchSlugsKeepsOrderAndDropsUnknown(t *testing.T) {
	known := map[string]string{"a": "id-a", "b": "id-b"}
	assert.Equal(t, []string{"id-b", "id-a"}, MatchSlugs([]string{"b", "missing", "a", "b"}, known))
}

func TestReferenceResolverDropsUnknownSlugs(t *testing.T) {
	resolver := NewReferenceResolver(newCatalogStub())

	refs, err := resolver.Resolve(context.Background(), nil, []string{"cafes", "bakeries", "Restaurants"}, []string{"wifi", "gone"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat-cafes", "cat-restaurants"}, refs.CategoryIDs)
	assert.Equal(t, []string{"tag-wifi"}, refs.TagIDs)
}

func TestReferenceResolverEmptyInput(t *testing.T) {
	refs, err := NewReferenceResolver(newCatalogStub()).Resolve(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, refs.CategoryIDs)
	assert.Empty(t, refs.TagIDs)
}

func TestReferenceResolverPropagatesStoreFailure(t *testing.T) {
	catalog := newCatalogStub()
	catalog.err = errors.New("connection reset")

	_, err := NewReferenceResolver(catalog).Resolve(context.Background(), nil, []string{"cafes"}, nil)
	assert.Error(t, err)
}
