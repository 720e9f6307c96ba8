package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/directory-moderation-api/pkg/config"
)

func TestHTTPGeocoder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "directory-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		if r.URL.Query().Get("q") == "nowhere" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"51.5072","lon":"-0.1276"}]`))
	}))
	defer server.Close()

	geo := NewHTTPGeocoder(config.GeocoderConfig{URL: server.URL, Timeout: time.Second, UserAgent: "directory-test"}, nil)
	require.NotNil(t, geo)

	point, err := geo.Geocode(context.Background(), "1 Pier Road")
	require.NoError(t, err)
	assert.InDelta(t, 51.5072, point.Lat, 1e-9)
	assert.InDelta(t, -0.1276, point.Lon, 1e-9)

	_, err = geo.Geocode(context.Background(), "nowhere")
	assert.True(t, errors.Is(err, ErrGeocodeNotFound))
}

func TestHTTPGeocoderUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewHTTPGeocoder(config.GeocoderConfig{URL: server.URL}, server.Client()).Geocode(context.Background(), "1 Pier Road")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGeocodeNotFound))
}

func TestHTTPResearchProducer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["query"] == "fail" {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"entity":{"name":"Harbor Books","entityType":"ONLINE","categorySlugs":["cafes"]},"duplicateCheck":{"isDuplicate":false}}`))
	}))
	defer server.Close()

	producer := NewHTTPResearchProducer(config.ResearchConfig{URL: server.URL, Timeout: time.Second}, nil)
	result, err := producer.Research(context.Background(), "bookshops", "harbor")
	require.NoError(t, err)
	assert.Equal(t, "Harbor Books", result.Entity.Name)
	assert.False(t, result.DuplicateCheck.IsDuplicate)

	_, err = producer.Research(context.Background(), "fail", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestCollaboratorsDisabledWithoutConfig(t *testing.T) {
	assert.Nil(t, NewHTTPGeocoder(config.GeocoderConfig{}, nil))
	assert.Nil(t, NewHTTPResearchProducer(config.ResearchConfig{}, nil))
	assert.Nil(t, NewBoundingBoxCoverage(config.CoverageConfig{}))
}

func TestBoundingBoxCoverage(t *testing.T) {
	c := NewBoundingBoxCoverage(config.CoverageConfig{Enabled: true, MinLat: 0, MaxLat: 10, MinLon: 0, MaxLon: 10, Message: "outside"})

	in, err := c.InCoverage(context.Background(), 5, 5)
	require.NoError(t, err)
	assert.True(t, in.InCoverage)

	out, err := c.InCoverage(context.Background(), 11, 5)
	require.NoError(t, err)
	assert.False(t, out.InCoverage)
	assert.Equal(t, "outside", out.Message)
}
