package service

import (
	"context"
	"io"

	"monasterywatch/internal/models"
	"monasterywatch/internal/scorer"
	"monasterywatch/internal/storage"
)

// ImageCatalog is the slice of the image repository the services use.
type ImageCatalog interface {
	Create(ctx context.Context, image models.Image) error
	GetByID(ctx context.Context, id string) (models.Image, error)
	List(ctx context.Context, filter models.ImageFilter, limit, offset int) ([]models.Image, error)
	Count(ctx context.Context, filter models.ImageFilter) (int, error)
	LatestByKind(ctx context.Context, location, structureComponent string, kind models.ImageKind) (models.Image, error)
	SetComparisonID(ctx context.Context, id string, comparisonID string) error
	Delete(ctx context.Context, id string) error
}

// ComparisonCatalog is the slice of the comparison repository the
// orchestrator uses.
type ComparisonCatalog interface {
	Create(ctx context.Context, cmp models.Comparison) error
	GetByID(ctx context.Context, id string) (models.Comparison, error)
	List(ctx context.Context, filter models.ComparisonFilter, limit, offset int) ([]models.Comparison, error)
	Count(ctx context.Context, filter models.ComparisonFilter) (int, error)
	UpdateResult(ctx context.Context, cmp models.Comparison) error
	MarkFailed(ctx context.Context, id string, message, detail string) error
	UpdateNotes(ctx context.Context, id string, notes string) error
	Delete(ctx context.Context, id string) error
}

// BlobStore is the object-store contract: opaque keys in, bytes out.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	GetStream(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	Remove(ctx context.Context, key string) error
}

// ComparisonScorer delegates the actual pixel comparison out of process.
type ComparisonScorer interface {
	Compare(ctx context.Context, baseline, current []byte, location, structureComponent string) (*scorer.Result, error)
}

// Pagination describes one page of a list response.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

func paginate(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}
