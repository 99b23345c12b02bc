package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"monasterywatch/internal/apperr"
	"monasterywatch/internal/ids"
	"monasterywatch/internal/models"
	"monasterywatch/internal/repository"
)

// An SSIM score at or above this is treated as pixel-identical even when the
// scorer reports otherwise.
const identicalSSIMThreshold = 0.9999

const alertStream = "alerts:structural"

type CompareInput struct {
	BaselineID         string
	CurrentID          string
	Location           string
	StructureComponent string
}

// ComparisonService orchestrates one scoring run: resolve the pair, fetch
// blobs, delegate to the scorer, persist the difference artifact and the
// verdict. Requests are strictly sequential within a run; concurrent runs
// on the same pair each get their own record.
type ComparisonService struct {
	comparisons ComparisonCatalog
	images      ImageCatalog
	store       BlobStore
	scorer      ComparisonScorer
	alerts      *redis.Client
	log         zerolog.Logger
}

func NewComparisonService(
	comparisons ComparisonCatalog,
	images ImageCatalog,
	store BlobStore,
	sc ComparisonScorer,
	alerts *redis.Client,
	log zerolog.Logger,
) *ComparisonService {
	return &ComparisonService{
		comparisons: comparisons,
		images:      images,
		store:       store,
		scorer:      sc,
		alerts:      alerts,
		log:         log,
	}
}

// Compare runs the full workflow. Validation failures happen before any
// persistence. After the record exists, every failure is captured onto it
// as a failed terminal state; in that case the failed record is returned
// alongside the error so callers can still point at it.
func (s *ComparisonService) Compare(ctx context.Context, input CompareInput) (models.Comparison, error) {
	baseline, current, err := s.resolvePair(ctx, input.BaselineID, input.CurrentID)
	if err != nil {
		return models.Comparison{}, err
	}

	location := strings.TrimSpace(input.Location)
	if location == "" {
		location = baseline.Location
	}
	component := strings.TrimSpace(input.StructureComponent)
	if component == "" {
		component = baseline.StructureComponent
	}

	now := time.Now().UTC()
	cmp := models.Comparison{
		ID:                 ids.New(),
		Location:           location,
		StructureComponent: component,
		Baseline:           snapshotRef(baseline),
		Current:            snapshotRef(current),
		SSIMScore:          0,
		Severity:           models.SeverityModerate,
		Status:             models.ComparisonStatusProcessing,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// Persist immediately so the record is pollable before scoring finishes.
	if err := s.comparisons.Create(ctx, cmp); err != nil {
		return models.Comparison{}, apperr.Wrap(apperr.KindStorage, "create comparison record", err)
	}

	completed, err := s.score(ctx, cmp, baseline, current)
	if err != nil {
		return s.fail(ctx, cmp, err)
	}

	if err := s.comparisons.UpdateResult(ctx, completed); err != nil {
		return s.fail(ctx, cmp, apperr.Wrap(apperr.KindStorage, "persist comparison result", err))
	}

	// Weak back-references; a failure here does not invalidate the verdict.
	for _, imageID := range []string{baseline.ID, current.ID} {
		if err := s.images.SetComparisonID(ctx, imageID, completed.ID); err != nil {
			s.log.Warn().Err(err).Str("image_id", imageID).Str("comparison_id", completed.ID).
				Msg("comparison back-reference update failed")
		}
	}

	s.publishAlert(ctx, completed)

	s.log.Info().
		Str("comparison_id", completed.ID).
		Float64("ssim_score", completed.SSIMScore).
		Str("severity", string(completed.Severity)).
		Bool("alert", completed.AlertFlag).
		Int64("processing_ms", completed.ProcessingTimeMs).
		Msg("comparison completed")

	return completed, nil
}

func (s *ComparisonService) resolvePair(ctx context.Context, baselineID, currentID string) (models.Image, models.Image, error) {
	if baselineID == "" || currentID == "" {
		return models.Image{}, models.Image{}, apperr.InvalidArgument("baselineId and currentId are required")
	}

	baseline, err := s.getImage(ctx, baselineID)
	if err != nil {
		return models.Image{}, models.Image{}, err
	}
	current, err := s.getImage(ctx, currentID)
	if err != nil {
		return models.Image{}, models.Image{}, err
	}

	// The ordering is the caller's responsibility; it is never inferred or
	// swapped here.
	if baseline.Kind != models.ImageKindBaseline || current.Kind != models.ImageKindCurrent {
		return models.Image{}, models.Image{}, apperr.InvalidArgument("first image must be a baseline, second must be a current")
	}

	return baseline, current, nil
}

func (s *ComparisonService) getImage(ctx context.Context, id string) (models.Image, error) {
	image, err := s.images.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			return models.Image{}, apperr.NotFound(fmt.Sprintf("image %s not found", id))
		}
		return models.Image{}, apperr.Wrap(apperr.KindStorage, "load image metadata", err)
	}
	return image, nil
}

// score runs steps two through eight: blob fetch, delegated scoring,
// artifact persistence, verdict derivation. It returns the completed record
// without persisting it.
func (s *ComparisonService) score(ctx context.Context, cmp models.Comparison, baseline, current models.Image) (models.Comparison, error) {
	start := time.Now()

	baselineData, err := s.store.Get(ctx, baseline.ObjectKey)
	if err != nil {
		return models.Comparison{}, apperr.Wrap(apperr.KindStorage, "fetch baseline blob", err)
	}
	currentData, err := s.store.Get(ctx, current.ObjectKey)
	if err != nil {
		return models.Comparison{}, apperr.Wrap(apperr.KindStorage, "fetch current blob", err)
	}

	result, err := s.scorer.Compare(ctx, baselineData, currentData, cmp.Location, cmp.StructureComponent)
	if err != nil {
		return models.Comparison{}, apperr.Wrap(apperr.KindUpstream, "scorer comparison failed", err)
	}

	if result.DifferenceImage != "" {
		diffRef, err := s.storeDifference(ctx, cmp, result.DifferenceImage)
		if err != nil {
			return models.Comparison{}, err
		}
		cmp.Difference = diffRef
	}

	cmp.ProcessingTimeMs = time.Since(start).Milliseconds()

	severity := models.Severity(result.Severity)

	// Three separate signals, OR'ed: the scorer may populate only some of
	// them depending on its code path.
	isIdentical := (result.ChangeDetected != nil && !*result.ChangeDetected) ||
		severity == models.SeverityNoChange ||
		result.SSIMScore >= identicalSSIMThreshold

	cmp.SSIMScore = result.SSIMScore
	cmp.Severity = severity
	cmp.Analysis = models.Analysis{
		ChangeDetected: !isIdentical,
		Message:        result.Message,
	}
	if result.DifferencePercentage != nil {
		cmp.Analysis.DifferencePercentage = *result.DifferencePercentage
	}
	if result.AffectedArea != nil {
		cmp.Analysis.AffectedArea = *result.AffectedArea
	}
	if result.ContourCount != nil {
		cmp.Analysis.ContourCount = *result.ContourCount
	}

	if isIdentical {
		cmp.Analysis.Recommendations = models.RecommendationIdentical()
	} else {
		cmp.Analysis.Recommendations = models.Recommendation(severity)
	}

	// Identical images never alert, whatever severity came back.
	cmp.AlertFlag = !isIdentical &&
		(severity == models.SeverityPoor || severity == models.SeverityCritical)

	cmp.Status = models.ComparisonStatusCompleted
	cmp.UpdatedAt = time.Now().UTC()

	return cmp, nil
}

// storeDifference decodes the scorer's base64 artifact, stores the blob and
// catalogs it as a difference-kind image tied to this comparison.
func (s *ComparisonService) storeDifference(ctx context.Context, cmp models.Comparison, encoded string) (*models.ImageRef, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "decode difference artifact", err)
	}

	objectKey, err := s.store.Put(ctx, data, "image/jpeg")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "store difference blob", err)
	}

	now := time.Now().UTC()
	diffImage := models.Image{
		ID:                 ids.New(),
		ObjectKey:          objectKey,
		Kind:               models.ImageKindDifference,
		Location:           cmp.Location,
		StructureComponent: cmp.StructureComponent,
		Filename:           fmt.Sprintf("diff_%d.jpg", now.UnixMilli()),
		ContentType:        "image/jpeg",
		SizeBytes:          int64(len(data)),
		ComparisonID:       &cmp.ID,
		UploadedAt:         now,
	}
	if err := s.images.Create(ctx, diffImage); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "save difference metadata", err)
	}

	return &models.ImageRef{
		ObjectKey:  objectKey,
		ImageID:    diffImage.ID,
		Filename:   diffImage.Filename,
		UploadedAt: &now,
	}, nil
}

// fail moves the record to its failed terminal state, capturing the cause.
// The record must never stay in processing with nobody coming back for it.
func (s *ComparisonService) fail(ctx context.Context, cmp models.Comparison, cause error) (models.Comparison, error) {
	message := "comparison failed"
	var appErr *apperr.Error
	if errors.As(cause, &appErr) {
		message = appErr.Message
	}

	if err := s.comparisons.MarkFailed(ctx, cmp.ID, message, cause.Error()); err != nil {
		s.log.Error().Err(err).Str("comparison_id", cmp.ID).Msg("marking comparison failed failed")
	}

	failed, err := s.comparisons.GetByID(ctx, cmp.ID)
	if err != nil {
		failed = cmp
		failed.Status = models.ComparisonStatusFailed
		failed.Error = &models.ComparisonError{Message: message, Detail: cause.Error()}
	}

	s.log.Error().Err(cause).Str("comparison_id", cmp.ID).Msg("comparison failed")
	return failed, cause
}

func (s *ComparisonService) publishAlert(ctx context.Context, cmp models.Comparison) {
	if s.alerts == nil || !cmp.AlertFlag {
		return
	}

	err := s.alerts.XAdd(ctx, &redis.XAddArgs{
		Stream: alertStream,
		Values: map[string]any{
			"comparisonId": cmp.ID,
			"location":     cmp.Location,
			"component":    cmp.StructureComponent,
			"severity":     string(cmp.Severity),
			"ssimScore":    cmp.SSIMScore,
		},
	}).Err()
	if err != nil {
		s.log.Warn().Err(err).Str("comparison_id", cmp.ID).Msg("alert publish failed")
	}
}

func (s *ComparisonService) Get(ctx context.Context, id string) (models.Comparison, error) {
	cmp, err := s.comparisons.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrComparisonNotFound) {
			return models.Comparison{}, apperr.NotFound("comparison not found")
		}
		return models.Comparison{}, apperr.Wrap(apperr.KindStorage, "load comparison", err)
	}
	return cmp, nil
}

func (s *ComparisonService) List(ctx context.Context, filter models.ComparisonFilter, page, limit int) ([]models.Comparison, Pagination, error) {
	page, limit = normalizePage(page, limit)

	comparisons, err := s.comparisons.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, Pagination{}, apperr.Wrap(apperr.KindStorage, "list comparisons", err)
	}
	total, err := s.comparisons.Count(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperr.Wrap(apperr.KindStorage, "count comparisons", err)
	}

	return comparisons, paginate(total, page, limit), nil
}

// SetNotes attaches analyst notes, the only mutation allowed on a terminal
// record.
func (s *ComparisonService) SetNotes(ctx context.Context, id string, notes string) (models.Comparison, error) {
	if err := s.comparisons.UpdateNotes(ctx, id, notes); err != nil {
		if errors.Is(err, repository.ErrComparisonNotFound) {
			return models.Comparison{}, apperr.NotFound("comparison not found")
		}
		return models.Comparison{}, apperr.Wrap(apperr.KindStorage, "update comparison notes", err)
	}
	return s.Get(ctx, id)
}

// Delete removes only the record. Referenced images and blobs are owned
// independently and stay.
func (s *ComparisonService) Delete(ctx context.Context, id string) error {
	if err := s.comparisons.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrComparisonNotFound) {
			return apperr.NotFound("comparison not found")
		}
		return apperr.Wrap(apperr.KindStorage, "delete comparison", err)
	}
	return nil
}

func snapshotRef(image models.Image) models.ImageRef {
	uploadedAt := image.UploadedAt
	return models.ImageRef{
		ObjectKey:  image.ObjectKey,
		ImageID:    image.ID,
		Filename:   image.Filename,
		UploadedAt: &uploadedAt,
	}
}
