package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/minio/minio-go/v7"

	"monasterywatch/internal/models"
	"monasterywatch/internal/repository"
	"monasterywatch/internal/scorer"
	"monasterywatch/internal/storage"
)

// In-memory doubles for the catalog, blob store and scorer. They mirror the
// real implementations' error behavior closely enough for workflow tests.

type memImageCatalog struct {
	mu         sync.Mutex
	images     map[string]models.Image
	failCreate error
}

func newMemImageCatalog() *memImageCatalog {
	return &memImageCatalog{images: make(map[string]models.Image)}
}

func (c *memImageCatalog) Create(_ context.Context, image models.Image) error {
	if c.failCreate != nil {
		return c.failCreate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[image.ID] = image
	return nil
}

func (c *memImageCatalog) GetByID(_ context.Context, id string) (models.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	image, ok := c.images[id]
	if !ok {
		return models.Image{}, repository.ErrImageNotFound
	}
	return image, nil
}

func (c *memImageCatalog) List(_ context.Context, filter models.ImageFilter, limit, offset int) ([]models.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []models.Image
	for _, image := range c.images {
		if matchImage(image, filter) {
			matched = append(matched, image)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UploadedAt.After(matched[j].UploadedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (c *memImageCatalog) Count(_ context.Context, filter models.ImageFilter) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, image := range c.images {
		if matchImage(image, filter) {
			total++
		}
	}
	return total, nil
}

func (c *memImageCatalog) LatestByKind(ctx context.Context, location, structureComponent string, kind models.ImageKind) (models.Image, error) {
	images, err := c.List(ctx, models.ImageFilter{Kind: kind, Location: location, StructureComponent: structureComponent}, 1, 0)
	if err != nil {
		return models.Image{}, err
	}
	if len(images) == 0 {
		return models.Image{}, repository.ErrImageNotFound
	}
	return images[0], nil
}

func (c *memImageCatalog) SetComparisonID(_ context.Context, id string, comparisonID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	image, ok := c.images[id]
	if !ok {
		return repository.ErrImageNotFound
	}
	image.ComparisonID = &comparisonID
	c.images[id] = image
	return nil
}

func (c *memImageCatalog) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.images[id]; !ok {
		return repository.ErrImageNotFound
	}
	delete(c.images, id)
	return nil
}

func matchImage(image models.Image, filter models.ImageFilter) bool {
	if filter.Kind != "" && image.Kind != filter.Kind {
		return false
	}
	if filter.Location != "" && image.Location != filter.Location {
		return false
	}
	if filter.StructureComponent != "" && image.StructureComponent != filter.StructureComponent {
		return false
	}
	return true
}

type memComparisonCatalog struct {
	mu          sync.Mutex
	comparisons map[string]models.Comparison
}

func newMemComparisonCatalog() *memComparisonCatalog {
	return &memComparisonCatalog{comparisons: make(map[string]models.Comparison)}
}

func (c *memComparisonCatalog) Create(_ context.Context, cmp models.Comparison) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.comparisons[cmp.ID] = cmp
	return nil
}

func (c *memComparisonCatalog) GetByID(_ context.Context, id string) (models.Comparison, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmp, ok := c.comparisons[id]
	if !ok {
		return models.Comparison{}, repository.ErrComparisonNotFound
	}
	return cmp, nil
}

func (c *memComparisonCatalog) List(_ context.Context, filter models.ComparisonFilter, limit, offset int) ([]models.Comparison, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []models.Comparison
	for _, cmp := range c.comparisons {
		if matchComparison(cmp, filter) {
			matched = append(matched, cmp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (c *memComparisonCatalog) Count(_ context.Context, filter models.ComparisonFilter) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, cmp := range c.comparisons {
		if matchComparison(cmp, filter) {
			total++
		}
	}
	return total, nil
}

func (c *memComparisonCatalog) UpdateResult(_ context.Context, cmp models.Comparison) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.comparisons[cmp.ID]; !ok {
		return repository.ErrComparisonNotFound
	}
	c.comparisons[cmp.ID] = cmp
	return nil
}

func (c *memComparisonCatalog) MarkFailed(_ context.Context, id string, message, detail string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmp, ok := c.comparisons[id]
	if !ok {
		return repository.ErrComparisonNotFound
	}
	cmp.Status = models.ComparisonStatusFailed
	cmp.Error = &models.ComparisonError{Message: message, Detail: detail}
	c.comparisons[id] = cmp
	return nil
}

func (c *memComparisonCatalog) UpdateNotes(_ context.Context, id string, notes string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmp, ok := c.comparisons[id]
	if !ok {
		return repository.ErrComparisonNotFound
	}
	cmp.Notes = notes
	c.comparisons[id] = cmp
	return nil
}

func (c *memComparisonCatalog) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.comparisons[id]; !ok {
		return repository.ErrComparisonNotFound
	}
	delete(c.comparisons, id)
	return nil
}

func matchComparison(cmp models.Comparison, filter models.ComparisonFilter) bool {
	if filter.Location != "" && cmp.Location != filter.Location {
		return false
	}
	if filter.Severity != "" && cmp.Severity != filter.Severity {
		return false
	}
	if filter.Status != "" && cmp.Status != filter.Status {
		return false
	}
	if filter.AlertFlag != nil && cmp.AlertFlag != *filter.AlertFlag {
		return false
	}
	return true
}

type memBlobStore struct {
	mu           sync.Mutex
	blobs        map[string][]byte
	contentTypes map[string]string
	nextKey      int
	failPut      error
	failGet      error
	failRemove   error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{
		blobs:        make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

var errBlobMissing = minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}

func (s *memBlobStore) Put(_ context.Context, data []byte, contentType string) (string, error) {
	if s.failPut != nil {
		return "", s.failPut
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextKey++
	key := fmt.Sprintf("blob-%d", s.nextKey)
	s.blobs[key] = append([]byte(nil), data...)
	s.contentTypes[key] = contentType
	return key, nil
}

func (s *memBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.failGet != nil {
		return nil, s.failGet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, errBlobMissing
	}
	return data, nil
}

func (s *memBlobStore) GetStream(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	if s.failGet != nil {
		return nil, storage.ObjectInfo{}, s.failGet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, storage.ObjectInfo{}, errBlobMissing
	}
	info := storage.ObjectInfo{ContentType: s.contentTypes[key], Size: int64(len(data))}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (s *memBlobStore) Remove(_ context.Context, key string) error {
	if s.failRemove != nil {
		return s.failRemove
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	delete(s.contentTypes, key)
	return nil
}

// stubScorer returns a canned result or error and records its inputs.
type stubScorer struct {
	result       *scorer.Result
	err          error
	gotBaseline  []byte
	gotCurrent   []byte
	gotLocation  string
	gotComponent string
	calls        int
}

func (s *stubScorer) Compare(_ context.Context, baseline, current []byte, location, structureComponent string) (*scorer.Result, error) {
	s.calls++
	s.gotBaseline = baseline
	s.gotCurrent = current
	s.gotLocation = location
	s.gotComponent = structureComponent
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}
