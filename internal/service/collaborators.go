package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/noah-isme/directory-moderation-api/internal/models"
	"github.com/noah-isme/directory-moderation-api/pkg/config"
)

// ErrGeocodeNotFound reports an address the geocoder could not place.
var ErrGeocodeNotFound = errors.New("address not found")

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Geocoder turns an address into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeoPoint, error)
}

// CoverageResult is the verdict of a coverage check.
type CoverageResult struct {
	InCoverage bool
	Message    string
}

// CoverageChecker tells whether a point lies inside the service area.
type CoverageChecker interface {
	InCoverage(ctx context.Context, lat, lon float64) (CoverageResult, error)
}

// DuplicateHint is the research producer's own duplicate assessment.
type DuplicateHint struct {
	IsDuplicate        bool    `json:"isDuplicate"`
	ExistingEntityID   string  `json:"existingEntityId,omitempty"`
	ExistingEntityName string  `json:"existingEntityName,omitempty"`
	Confidence         float64 `json:"confidence,omitempty"`
}

// ResearchResult is a drafted listing plus the producer's duplicate hint.
type ResearchResult struct {
	Entity         models.NewEntityPayload `json:"entity"`
	DuplicateCheck DuplicateHint           `json:"duplicateCheck"`
}

// ResearchProducer drafts NEW_ENTITY payloads from a free-text query.
type ResearchProducer interface {
	Research(ctx context.Context, query, location string) (*ResearchResult, error)
}

// BoundingBoxCoverage accepts points inside a configured rectangle.
type BoundingBoxCoverage struct {
	cfg config.CoverageConfig
}

// NewBoundingBoxCoverage returns nil when coverage checks are disabled.
func NewBoundingBoxCoverage(cfg config.CoverageConfig) *BoundingBoxCoverage {
	if !cfg.Enabled {
		return nil
	}
	return &BoundingBoxCoverage{cfg: cfg}
}

// InCoverage implements CoverageChecker.
func (b *BoundingBoxCoverage) InCoverage(_ context.Context, lat, lon float64) (CoverageResult, error) {
	inside := lat >= b.cfg.MinLat && lat <= b.cfg.MaxLat && lon >= b.cfg.MinLon && lon <= b.cfg.MaxLon
	if inside {
		return CoverageResult{InCoverage: true}, nil
	}
	return CoverageResult{InCoverage: false, Message: b.cfg.Message}, nil
}

// HTTPGeocoder queries a Nominatim-compatible search endpoint.
type HTTPGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewHTTPGeocoder returns nil when no endpoint is configured.
func NewHTTPGeocoder(cfg config.GeocoderConfig, client *http.Client) *HTTPGeocoder {
	if cfg.URL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPGeocoder{baseURL: cfg.URL, userAgent: cfg.UserAgent, client: client}
}

type geocodeHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode implements Geocoder.
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (*GeoPoint, error) {
	endpoint, err := url.Parse(g.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse geocoder url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var hits []geocodeHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(hits) == 0 {
		return nil, ErrGeocodeNotFound
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude: %w", err)
	}
	return &GeoPoint{Lat: lat, Lon: lon}, nil
}

// HTTPResearchProducer posts research queries to an external drafting service.
type HTTPResearchProducer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPResearchProducer returns nil when no endpoint is configured.
func NewHTTPResearchProducer(cfg config.ResearchConfig, client *http.Client) *HTTPResearchProducer {
	if cfg.URL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPResearchProducer{endpoint: cfg.URL, client: client}
}

// Research implements ResearchProducer.
func (p *HTTPResearchProducer) Research(ctx context.Context, query, location string) (*ResearchResult, error) {
	body, err := json.Marshal(map[string]string{"query": query, "location": location})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("research request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("research request: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var result ResearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode research response: %w", err)
	}
	return &result, nil
}

func (p *HTTPResearchProducer) timeout() time.Duration {
	if p.client.Timeout > 0 {
		return p.client.Timeout
	}
	return 60 * time.Second
}
