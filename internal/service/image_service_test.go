package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monasterywatch/internal/apperr"
	"monasterywatch/internal/config"
	"monasterywatch/internal/models"
)

var (
	pngBytes  = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0x00}, 64)...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0x00}, 64)...)
)

type imageFixture struct {
	images *memImageCatalog
	store  *memBlobStore
	svc    *ImageService
}

func newImageFixture(t *testing.T) *imageFixture {
	t.Helper()

	images := newMemImageCatalog()
	store := newMemBlobStore()
	cfg := &config.AppConfig{}
	cfg.Upload.MaxSizeBytes = 10 << 20

	return &imageFixture{
		images: images,
		store:  store,
		svc:    NewImageService(images, store, cfg, zerolog.Nop()),
	}
}

func validUpload() UploadInput {
	return UploadInput{
		Data:               pngBytes,
		Filename:           "north-wall.png",
		Kind:               models.ImageKindBaseline,
		Location:           "Main Hall",
		StructureComponent: "North Wall",
	}
}

func TestUploadStoresBlobAndRecord(t *testing.T) {
	fix := newImageFixture(t)

	captured := time.Date(2026, 8, 14, 9, 30, 0, 0, time.UTC)
	input := validUpload()
	input.CaptureDate = &captured
	input.Camera = "Nikon D850"
	input.Notes = "after the spring storms"

	image, err := fix.svc.Upload(context.Background(), input)
	require.NoError(t, err)

	assert.NotEmpty(t, image.ID)
	assert.Equal(t, "image/png", image.ContentType)
	assert.Equal(t, int64(len(pngBytes)), image.SizeBytes)
	assert.Equal(t, "Nikon D850", image.Camera)
	require.NotNil(t, image.CaptureDate)
	assert.True(t, captured.Equal(*image.CaptureDate))

	blob, err := fix.store.Get(context.Background(), image.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, blob)

	stored, err := fix.svc.Get(context.Background(), image.ID)
	require.NoError(t, err)
	assert.Equal(t, image.ObjectKey, stored.ObjectKey)
}

func TestUploadNoDeduplication(t *testing.T) {
	fix := newImageFixture(t)

	first, err := fix.svc.Upload(context.Background(), validUpload())
	require.NoError(t, err)
	second, err := fix.svc.Upload(context.Background(), validUpload())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.ObjectKey, second.ObjectKey)
}

func TestUploadValidation(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*UploadInput)
		wantKind apperr.Kind
	}{
		{"unknown kind", func(in *UploadInput) { in.Kind = "panorama" }, apperr.KindInvalidArgument},
		{"blank location", func(in *UploadInput) { in.Location = "   " }, apperr.KindInvalidArgument},
		{"blank component", func(in *UploadInput) { in.StructureComponent = "" }, apperr.KindInvalidArgument},
		{"empty file", func(in *UploadInput) { in.Data = nil }, apperr.KindInvalidArgument},
		{"unsupported format", func(in *UploadInput) { in.Data = []byte("GIF89a.............") }, apperr.KindInvalidArgument},
		{"declared type mismatch", func(in *UploadInput) { in.DeclaredMIME = "image/jpeg" }, apperr.KindInvalidArgument},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix := newImageFixture(t)
			input := validUpload()
			tc.mutate(&input)

			_, err := fix.svc.Upload(context.Background(), input)
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, apperr.KindOf(err))

			// Rejected uploads leave nothing behind.
			total, countErr := fix.images.Count(context.Background(), models.ImageFilter{})
			require.NoError(t, countErr)
			assert.Zero(t, total)
		})
	}
}

func TestUploadOversize(t *testing.T) {
	fix := newImageFixture(t)

	input := validUpload()
	input.Data = append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0x00}, 10<<20)...)

	_, err := fix.svc.Upload(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPayloadTooLarge, apperr.KindOf(err))
}

func TestUploadCleansUpBlobOnCatalogFailure(t *testing.T) {
	fix := newImageFixture(t)
	fix.images.failCreate = errors.New("connection refused")

	_, err := fix.svc.Upload(context.Background(), validUpload())
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Empty(t, fix.store.blobs)
}

func TestStreamReturnsBlob(t *testing.T) {
	fix := newImageFixture(t)

	input := validUpload()
	input.Data = jpegBytes
	input.Filename = "north-wall.jpg"
	image, err := fix.svc.Upload(context.Background(), input)
	require.NoError(t, err)

	reader, info, meta, err := fix.svc.Stream(context.Background(), image.ID)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, data)
	assert.Equal(t, "image/jpeg", info.ContentType)
	assert.Equal(t, int64(len(jpegBytes)), info.Size)
	assert.Equal(t, image.ID, meta.ID)
}

func TestStreamUnknownImage(t *testing.T) {
	fix := newImageFixture(t)

	_, _, _, err := fix.svc.Stream(context.Background(), "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteRemovesBlobThenRecord(t *testing.T) {
	fix := newImageFixture(t)

	image, err := fix.svc.Upload(context.Background(), validUpload())
	require.NoError(t, err)

	require.NoError(t, fix.svc.Delete(context.Background(), image.ID))

	_, err = fix.svc.Get(context.Background(), image.ID)
	assert.True(t, apperr.IsNotFound(err))
	_, _, _, err = fix.svc.Stream(context.Background(), image.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteKeepsRecordWhenBlobRemovalFails(t *testing.T) {
	fix := newImageFixture(t)

	image, err := fix.svc.Upload(context.Background(), validUpload())
	require.NoError(t, err)

	fix.store.failRemove = errors.New("slow down")
	err = fix.svc.Delete(context.Background(), image.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))

	// The record must still resolve; nothing was half-deleted.
	_, err = fix.svc.Get(context.Background(), image.ID)
	assert.NoError(t, err)
}

func TestDeleteToleratesMissingBlob(t *testing.T) {
	fix := newImageFixture(t)

	image, err := fix.svc.Upload(context.Background(), validUpload())
	require.NoError(t, err)

	// Blob vanished out of band; deletion still finishes.
	delete(fix.store.blobs, image.ObjectKey)

	require.NoError(t, fix.svc.Delete(context.Background(), image.ID))
	_, err = fix.svc.Get(context.Background(), image.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestLatestPair(t *testing.T) {
	fix := newImageFixture(t)

	seed := func(id string, kind models.ImageKind, uploadedAt time.Time) {
		require.NoError(t, fix.images.Create(context.Background(), models.Image{
			ID:                 id,
			Kind:               kind,
			Location:           "Main Hall",
			StructureComponent: "North Wall",
			UploadedAt:         uploadedAt,
		}))
	}

	base := time.Now().UTC()
	seed("baseline-old", models.ImageKindBaseline, base.Add(-2*time.Hour))
	seed("baseline-new", models.ImageKindBaseline, base.Add(-time.Hour))

	baseline, current, err := fix.svc.LatestPair(context.Background(), "Main Hall", "North Wall")
	require.NoError(t, err)
	require.NotNil(t, baseline)
	assert.Equal(t, "baseline-new", baseline.ID)
	assert.Nil(t, current)

	seed("current-1", models.ImageKindCurrent, base)

	baseline, current, err = fix.svc.LatestPair(context.Background(), "Main Hall", "North Wall")
	require.NoError(t, err)
	require.NotNil(t, baseline)
	assert.Equal(t, "baseline-new", baseline.ID)
	require.NotNil(t, current)
	assert.Equal(t, "current-1", current.ID)
}

func TestListImagesPagination(t *testing.T) {
	fix := newImageFixture(t)

	for i := 0; i < 12; i++ {
		_, err := fix.svc.Upload(context.Background(), validUpload())
		require.NoError(t, err)
	}

	images, pagination, err := fix.svc.List(context.Background(), models.ImageFilter{}, 2, 5)
	require.NoError(t, err)
	assert.Len(t, images, 5)
	assert.Equal(t, 12, pagination.Total)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 3, pagination.Pages)

	// Out-of-range values fall back to sane defaults.
	images, pagination, err = fix.svc.List(context.Background(), models.ImageFilter{}, 0, -1)
	require.NoError(t, err)
	assert.Len(t, images, 12)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 50, pagination.Limit)
}
