package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

type duplicateFinder interface {
	FindDuplicateCandidates(ctx context.Context, name, websiteHost, address string) ([]models.DuplicateCandidate, error)
}

type submissionCatalog interface {
	catalogReader
}

// SubmissionNormalizer validates untrusted payloads and shapes them into proposal payloads.
// It never writes anything.
type SubmissionNormalizer struct {
	validate   *validator.Validate
	duplicates duplicateFinder
	catalog    submissionCatalog
	geocoder   Geocoder
	coverage   CoverageChecker
	threshold  float64
	logger     *zap.Logger
}

// NormalizerOption configures optional collaborators.
type NormalizerOption func(*SubmissionNormalizer)

// WithGeocoder enables geocoding of addresses without coordinates.
func WithGeocoder(g Geocoder) NormalizerOption {
	return func(n *SubmissionNormalizer) { n.geocoder = g }
}

// WithCoverageChecker enables the service-area check.
func WithCoverageChecker(c CoverageChecker) NormalizerOption {
	return func(n *SubmissionNormalizer) { n.coverage = c }
}

// WithDuplicateThreshold sets the score at which a candidate counts as a duplicate.
func WithDuplicateThreshold(threshold float64) NormalizerOption {
	return func(n *SubmissionNormalizer) {
		if threshold > 0 && threshold <= 1 {
			n.threshold = threshold
		}
	}
}

// NewSubmissionNormalizer constructs the normalizer.
func NewSubmissionNormalizer(validate *validator.Validate, duplicates duplicateFinder, catalog submissionCatalog, logger *zap.Logger, opts ...NormalizerOption) *SubmissionNormalizer {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &SubmissionNormalizer{
		validate:   validate,
		duplicates: duplicates,
		catalog:    catalog,
		threshold:  0.85,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// NewEntityChecks toggles origin-specific checks.
type NewEntityChecks struct {
	// SkipDuplicateCheck is set for trusted administrators.
	SkipDuplicateCheck bool
}

// NormalizeNewEntity cleans p in place and runs every submission check for a new listing.
func (n *SubmissionNormalizer) NormalizeNewEntity(ctx context.Context, p *models.NewEntityPayload, checks NewEntityChecks) error {
	if p == nil {
		return appErrors.Clone(appErrors.ErrValidation, "entity payload is required")
	}
	trimNewEntity(p)

	if err := n.validate.Struct(p); err != nil {
		return validationError(err, "invalid entity payload")
	}
	if !p.EntityType.Valid() {
		return appErrors.WithDetails(appErrors.ErrValidation, "unknown entity type", map[string]interface{}{"entityType": p.EntityType})
	}
	if p.EntityType.RequiresAddress() && p.Address == "" {
		return appErrors.WithDetails(appErrors.ErrValidation, fmt.Sprintf("address is required for %s entities", p.EntityType),
			map[string]interface{}{"field": "address"})
	}
	if p.Address != "" && !LooksLikeStreetAddress(p.Address, p.Name) {
		return appErrors.WithDetails(appErrors.ErrValidation, "address must be a street address", map[string]interface{}{"field": "address"})
	}
	if (p.Latitude == nil) != (p.Longitude == nil) {
		return appErrors.Clone(appErrors.ErrValidation, "latitude and longitude must be provided together")
	}

	categories, err := n.catalog.FindCategoriesBySlugs(ctx, nil, p.CategorySlugs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up categories")
	}
	if len(categories) == 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, "at least one known category is required",
			map[string]interface{}{"field": "categorySlugs"})
	}

	if !checks.SkipDuplicateCheck {
		if err := n.checkDuplicates(ctx, p); err != nil {
			return err
		}
	}

	if p.Latitude == nil && p.Address != "" && n.geocoder != nil {
		point, err := n.geocoder.Geocode(ctx, p.Address)
		if err != nil {
			if errors.Is(err, ErrGeocodeNotFound) {
				return appErrors.WithDetails(appErrors.ErrValidation, "address could not be located", map[string]interface{}{"field": "address"})
			}
			return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "geocoding service unavailable")
		}
		p.Latitude, p.Longitude = &point.Lat, &point.Lon
	}

	if p.Latitude != nil && n.coverage != nil {
		result, err := n.coverage.InCoverage(ctx, *p.Latitude, *p.Longitude)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "coverage check unavailable")
		}
		if !result.InCoverage {
			return appErrors.Clone(appErrors.ErrOutOfCoverage, result.Message)
		}
	}
	return nil
}

// NormalizeEntityUpdate builds an UPDATE_ENTITY payload holding only the fields that change.
func (n *SubmissionNormalizer) NormalizeEntityUpdate(entity *models.Entity, fields models.EntityFields) (*models.UpdateEntityPayload, error) {
	changed, err := n.DiffEntityFields(entity, fields)
	if err != nil {
		return nil, err
	}
	if changed.IsEmpty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no changes to submit")
	}
	return &models.UpdateEntityPayload{Old: changed.CurrentValues(entity), New: changed}, nil
}

// DiffEntityFields validates fields and returns the subset that differs from entity.
// The result may be empty.
func (n *SubmissionNormalizer) DiffEntityFields(entity *models.Entity, fields models.EntityFields) (models.EntityFields, error) {
	trimFields(&fields)
	if err := n.validate.Struct(fields); err != nil {
		return models.EntityFields{}, validationError(err, "invalid entity fields")
	}
	if fields.EntityType != nil && !fields.EntityType.Valid() {
		return models.EntityFields{}, appErrors.WithDetails(appErrors.ErrValidation, "unknown entity type", map[string]interface{}{"entityType": *fields.EntityType})
	}
	if (fields.Latitude == nil) != (fields.Longitude == nil) {
		return models.EntityFields{}, appErrors.Clone(appErrors.ErrValidation, "latitude and longitude must be provided together")
	}
	if fields.Address != nil && *fields.Address != "" && !LooksLikeStreetAddress(*fields.Address, entity.Name) {
		return models.EntityFields{}, appErrors.WithDetails(appErrors.ErrValidation, "address must be a street address", map[string]interface{}{"field": "address"})
	}

	changed := fields.ChangedFrom(entity)
	merged := *entity
	changed.ApplyTo(&merged)
	if merged.EntityType.RequiresAddress() && strings.TrimSpace(merged.Address) == "" {
		return models.EntityFields{}, appErrors.WithDetails(appErrors.ErrValidation, fmt.Sprintf("address is required for %s entities", merged.EntityType),
			map[string]interface{}{"field": "address"})
	}
	return changed, nil
}

// NormalizeImages builds an UPDATE_IMAGE payload replacing the whole images map.
func (n *SubmissionNormalizer) NormalizeImages(entity *models.Entity, images models.StringMap) (*models.UpdateImagePayload, error) {
	next, err := n.CleanImages(images)
	if err != nil {
		return nil, err
	}
	if maps.Equal(next, entity.Images) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no changes to submit")
	}
	old := maps.Clone(entity.Images)
	if old == nil {
		old = models.StringMap{}
	}
	return &models.UpdateImagePayload{Old: old, New: next}, nil
}

// CleanImages trims slots and URLs, drops blank URLs and rejects anything that is not a URL.
func (n *SubmissionNormalizer) CleanImages(images models.StringMap) (models.StringMap, error) {
	next := models.StringMap{}
	for slot, raw := range images {
		slot = strings.TrimSpace(slot)
		raw = strings.TrimSpace(raw)
		if slot == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "image slot names must not be empty")
		}
		if raw == "" {
			continue
		}
		if err := n.validate.Var(raw, "url"); err != nil {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "image must be a URL", map[string]interface{}{"slot": slot})
		}
		next[slot] = raw
	}
	return next, nil
}

// ValidateEmail checks a submitter address.
func (n *SubmissionNormalizer) ValidateEmail(email string) error {
	if err := n.validate.Var(email, "required,email"); err != nil {
		return appErrors.WithDetails(appErrors.ErrValidation, "a valid submitter email is required", map[string]interface{}{"field": "submitterEmail"})
	}
	return nil
}

// NormalizeTag checks that a tag slug names a catalog tag at submission time. The
// returned reference keeps only the slug.
func (n *SubmissionNormalizer) NormalizeTag(ctx context.Context, tagSlug string) (*models.TagRef, error) {
	slugs := NormalizeSlugs([]string{tagSlug})
	if len(slugs) == 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "tagSlug is required", map[string]interface{}{"field": "tagSlug"})
	}
	tags, err := n.catalog.FindTagsBySlugs(ctx, nil, slugs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up tag")
	}
	if len(tags) == 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown tag", map[string]interface{}{"tagSlug": slugs[0]})
	}
	return &models.TagRef{TagSlug: tags[0].Slug}, nil
}

// CheckResearchHint turns the producer's own duplicate verdict into a conflict.
func (n *SubmissionNormalizer) CheckResearchHint(hint DuplicateHint) error {
	if !hint.IsDuplicate {
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrDuplicateEntity,
		fmt.Sprintf("a matching entity already exists: %s", hint.ExistingEntityName),
		map[string]interface{}{
			"existingEntityId":   hint.ExistingEntityID,
			"existingEntityName": hint.ExistingEntityName,
		})
}

func (n *SubmissionNormalizer) checkDuplicates(ctx context.Context, p *models.NewEntityPayload) error {
	if n.duplicates == nil {
		return nil
	}
	host := websiteHost(p.Website)
	candidates, err := n.duplicates.FindDuplicateCandidates(ctx, p.Name, host, p.Address)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicates")
	}
	best, score := bestDuplicate(submissionKey{name: p.Name, host: host, address: p.Address}, candidates)
	if best == nil || score < n.threshold {
		return nil
	}
	n.logger.Info("duplicate submission rejected",
		zap.String("name", p.Name),
		zap.String("existing_entity_id", best.ID),
		zap.Float64("score", score))
	return appErrors.WithDetails(appErrors.ErrDuplicateEntity,
		fmt.Sprintf("a matching entity already exists: %s", best.Name),
		map[string]interface{}{
			"existingEntityId":   best.ID,
			"existingEntityName": best.Name,
			"existingEntitySlug": best.Slug,
		})
}

type submissionKey struct {
	name    string
	host    string
	address string
}

func bestDuplicate(key submissionKey, candidates []models.DuplicateCandidate) (*models.DuplicateCandidate, float64) {
	var (
		best      *models.DuplicateCandidate
		bestScore float64
	)
	for i := range candidates {
		score := duplicateScore(key, candidates[i])
		if score > bestScore {
			best, bestScore = &candidates[i], score
		}
	}
	return best, bestScore
}

// duplicateScore is 1 for a shared website host. A shared address lifts a partial name match,
// a different address caps a name-only match below the default threshold.
func duplicateScore(key submissionKey, c models.DuplicateCandidate) float64 {
	if key.host != "" && key.host == websiteHost(c.Website) {
		return 1
	}
	nameSim := nameSimilarity(key.name, c.Name)
	a, b := normalizeText(key.address), normalizeText(c.Address)
	switch {
	case a != "" && b != "" && a == b:
		return 0.6 + 0.4*nameSim
	case a != "" && b != "":
		return 0.8 * nameSim
	default:
		return nameSim
	}
}

func nameSimilarity(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	left := make(map[string]struct{})
	for _, t := range strings.Fields(na) {
		left[t] = struct{}{}
	}
	right := make(map[string]struct{})
	for _, t := range strings.Fields(nb) {
		right[t] = struct{}{}
	}
	shared := 0
	for t := range right {
		if _, ok := left[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(left)+len(right)-shared)
}

func normalizeText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func websiteHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var streetNumber = regexp.MustCompile(`\d`)

// LooksLikeStreetAddress rejects bare names: an address needs a number and a word,
// and must not just repeat the listing name.
func LooksLikeStreetAddress(address, name string) bool {
	addr := normalizeText(address)
	if len(addr) < 5 {
		return false
	}
	if name != "" && addr == normalizeText(name) {
		return false
	}
	if !streetNumber.MatchString(addr) {
		return false
	}
	for _, word := range strings.Fields(addr) {
		letters := 0
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters >= 2 {
			return true
		}
	}
	return false
}

func trimNewEntity(p *models.NewEntityPayload) {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Address = strings.TrimSpace(p.Address)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Website = strings.TrimSpace(p.Website)
	p.EntityType = models.EntityType(strings.ToUpper(strings.TrimSpace(string(p.EntityType))))
	p.CategorySlugs = NormalizeSlugs(p.CategorySlugs)
	p.TagSlugs = NormalizeSlugs(p.TagSlugs)
	if p.OwnerID != nil && strings.TrimSpace(*p.OwnerID) == "" {
		p.OwnerID = nil
	}
}

func trimFields(f *models.EntityFields) {
	for _, s := range []*string{f.Name, f.Description, f.Address, f.Phone, f.Website} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	if f.EntityType != nil {
		t := models.EntityType(strings.ToUpper(strings.TrimSpace(string(*f.EntityType))))
		f.EntityType = &t
	}
}

func validationError(err error, message string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return appErrors.WithDetails(appErrors.ErrValidation, message, map[string]interface{}{"fields": fields})
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
