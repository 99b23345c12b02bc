package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"monasterywatch/internal/apperr"
	"monasterywatch/internal/config"
	"monasterywatch/internal/ids"
	"monasterywatch/internal/media/sniffer"
	"monasterywatch/internal/models"
	"monasterywatch/internal/repository"
	"monasterywatch/internal/storage"
)

type UploadInput struct {
	Data               []byte
	Filename           string
	DeclaredMIME       string
	Kind               models.ImageKind
	Location           string
	StructureComponent string
	CaptureDate        *time.Time
	Camera             string
	Notes              string
}

type ImageService struct {
	images ImageCatalog
	store  BlobStore
	cfg    *config.AppConfig
	log    zerolog.Logger
}

func NewImageService(images ImageCatalog, store BlobStore, cfg *config.AppConfig, log zerolog.Logger) *ImageService {
	return &ImageService{
		images: images,
		store:  store,
		cfg:    cfg,
		log:    log,
	}
}

// Upload validates the payload, stores the bytes, then persists the catalog
// record. No deduplication: identical bytes uploaded twice become two blobs
// and two records.
func (s *ImageService) Upload(ctx context.Context, input UploadInput) (models.Image, error) {
	if !input.Kind.Valid() {
		return models.Image{}, apperr.InvalidArgument("kind must be baseline, current or difference")
	}

	input.Location = strings.TrimSpace(input.Location)
	input.StructureComponent = strings.TrimSpace(input.StructureComponent)
	if input.Location == "" || input.StructureComponent == "" {
		return models.Image{}, apperr.InvalidArgument("location and structureComponent are required")
	}

	if len(input.Data) == 0 {
		return models.Image{}, apperr.InvalidArgument("empty file")
	}
	if maxSize := s.cfg.Upload.MaxSizeBytes; maxSize > 0 && int64(len(input.Data)) > maxSize {
		return models.Image{}, apperr.PayloadTooLarge("image exceeds the maximum upload size")
	}

	head := input.Data
	if len(head) > 512 {
		head = head[:512]
	}
	detected, err := sniffer.DetectHead(head)
	if err != nil {
		return models.Image{}, apperr.Wrap(apperr.KindInvalidArgument, "unsupported image format", err)
	}
	// Generic declarations (curl and most SDKs send octet-stream) are fine;
	// only a concrete mismatching claim is rejected.
	if declared := input.DeclaredMIME; declared != "" && declared != "application/octet-stream" && declared != detected.MIME {
		return models.Image{}, apperr.InvalidArgument("declared content type does not match file contents")
	}

	objectKey, err := s.store.Put(ctx, input.Data, detected.MIME)
	if err != nil {
		return models.Image{}, apperr.Wrap(apperr.KindStorage, "store image blob", err)
	}

	image := models.Image{
		ID:                 ids.New(),
		ObjectKey:          objectKey,
		Kind:               input.Kind,
		Location:           input.Location,
		StructureComponent: input.StructureComponent,
		Filename:           input.Filename,
		ContentType:        detected.MIME,
		SizeBytes:          int64(len(input.Data)),
		CaptureDate:        input.CaptureDate,
		Camera:             input.Camera,
		Notes:              input.Notes,
		UploadedAt:         time.Now().UTC(),
	}

	if err := s.images.Create(ctx, image); err != nil {
		// The blob is unreachable without its record; try not to leak it.
		if rmErr := s.store.Remove(ctx, objectKey); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("object_key", objectKey).Msg("orphaned blob cleanup failed")
		}
		return models.Image{}, apperr.Wrap(apperr.KindStorage, "save image metadata", err)
	}

	s.log.Info().
		Str("image_id", image.ID).
		Str("kind", string(image.Kind)).
		Str("location", image.Location).
		Int64("size_bytes", image.SizeBytes).
		Msg("image uploaded")

	return image, nil
}

func (s *ImageService) Get(ctx context.Context, id string) (models.Image, error) {
	image, err := s.images.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			return models.Image{}, apperr.NotFound("image not found")
		}
		return models.Image{}, apperr.Wrap(apperr.KindStorage, "load image metadata", err)
	}
	return image, nil
}

// Stream resolves the record and opens its blob for streaming. A missing
// record or a missing blob both surface as NotFound.
func (s *ImageService) Stream(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, models.Image, error) {
	image, err := s.Get(ctx, id)
	if err != nil {
		return nil, storage.ObjectInfo{}, models.Image{}, err
	}

	reader, info, err := s.store.GetStream(ctx, image.ObjectKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, storage.ObjectInfo{}, models.Image{}, apperr.NotFound("image blob not found")
		}
		return nil, storage.ObjectInfo{}, models.Image{}, apperr.Wrap(apperr.KindStorage, "open image blob", err)
	}

	if info.ContentType == "" {
		info.ContentType = image.ContentType
	}
	return reader, info, image, nil
}

func (s *ImageService) List(ctx context.Context, filter models.ImageFilter, page, limit int) ([]models.Image, Pagination, error) {
	page, limit = normalizePage(page, limit)

	images, err := s.images.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, Pagination{}, apperr.Wrap(apperr.KindStorage, "list images", err)
	}
	total, err := s.images.Count(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperr.Wrap(apperr.KindStorage, "count images", err)
	}

	return images, paginate(total, page, limit), nil
}

// LatestPair returns the newest baseline and current images for a location,
// the usual preamble to requesting a comparison. Either side may be nil.
func (s *ImageService) LatestPair(ctx context.Context, location, structureComponent string) (*models.Image, *models.Image, error) {
	var baseline, current *models.Image

	if img, err := s.images.LatestByKind(ctx, location, structureComponent, models.ImageKindBaseline); err == nil {
		baseline = &img
	} else if !errors.Is(err, repository.ErrImageNotFound) {
		return nil, nil, apperr.Wrap(apperr.KindStorage, "find baseline image", err)
	}

	if img, err := s.images.LatestByKind(ctx, location, structureComponent, models.ImageKindCurrent); err == nil {
		current = &img
	} else if !errors.Is(err, repository.ErrImageNotFound) {
		return nil, nil, apperr.Wrap(apperr.KindStorage, "find current image", err)
	}

	return baseline, current, nil
}

// Delete removes the blob first, then the record. If the blob deletion
// fails the record stays, so the catalog never points at nothing. A blob
// already gone is fine.
func (s *ImageService) Delete(ctx context.Context, id string) error {
	image, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Remove(ctx, image.ObjectKey); err != nil && !storage.IsNotFound(err) {
		return apperr.Wrap(apperr.KindStorage, "delete image blob", err)
	}

	if err := s.images.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			return apperr.NotFound("image not found")
		}
		return apperr.Wrap(apperr.KindStorage, "delete image metadata", err)
	}

	s.log.Info().Str("image_id", id).Msg("image deleted")
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return page, limit
}
