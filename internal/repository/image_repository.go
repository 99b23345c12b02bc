package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"monasterywatch/internal/models"
)

var ErrImageNotFound = errors.New("image not found")

type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

const imageColumns = `id, object_key, kind, location, structure_component, filename,
       content_type, size_bytes, capture_date, camera, notes, comparison_id, uploaded_at`

func (r *ImageRepository) Create(ctx context.Context, image models.Image) error {
	const query = `
		INSERT INTO images (
			id, object_key, kind, location, structure_component, filename,
			content_type, size_bytes, capture_date, camera, notes, comparison_id, uploaded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.pool.Exec(ctx, query,
		image.ID,
		image.ObjectKey,
		image.Kind,
		image.Location,
		image.StructureComponent,
		image.Filename,
		image.ContentType,
		image.SizeBytes,
		image.CaptureDate,
		image.Camera,
		image.Notes,
		image.ComparisonID,
		image.UploadedAt,
	)
	return err
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	image, err := scanImage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Image{}, ErrImageNotFound
		}
		return models.Image{}, err
	}
	return image, nil
}

func (r *ImageRepository) List(ctx context.Context, filter models.ImageFilter, limit, offset int) ([]models.Image, error) {
	where, args := imageFilterClause(filter)
	query := fmt.Sprintf(`
		SELECT %s FROM images
		%s
		ORDER BY uploaded_at DESC
		LIMIT $%d OFFSET $%d
	`, imageColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

func (r *ImageRepository) Count(ctx context.Context, filter models.ImageFilter) (int, error) {
	where, args := imageFilterClause(filter)
	query := `SELECT COUNT(*) FROM images ` + where

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// LatestByKind returns the newest image of the given kind for a location,
// optionally narrowed to one structure component.
func (r *ImageRepository) LatestByKind(ctx context.Context, location, structureComponent string, kind models.ImageKind) (models.Image, error) {
	filter := models.ImageFilter{
		Kind:               kind,
		Location:           location,
		StructureComponent: structureComponent,
	}
	images, err := r.List(ctx, filter, 1, 0)
	if err != nil {
		return models.Image{}, err
	}
	if len(images) == 0 {
		return models.Image{}, ErrImageNotFound
	}
	return images[0], nil
}

// SetComparisonID backfills the weak back-reference after a comparison
// consumed this image.
func (r *ImageRepository) SetComparisonID(ctx context.Context, id string, comparisonID string) error {
	const query = `UPDATE images SET comparison_id = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, comparisonID)
	return err
}

func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM images WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

func imageFilterClause(filter models.ImageFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Kind != "" {
		args = append(args, filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Location != "" {
		args = append(args, filter.Location)
		clauses = append(clauses, fmt.Sprintf("location = $%d", len(args)))
	}
	if filter.StructureComponent != "" {
		args = append(args, filter.StructureComponent)
		clauses = append(clauses, fmt.Sprintf("structure_component = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanImage(row pgx.Row) (models.Image, error) {
	var image models.Image
	err := row.Scan(
		&image.ID,
		&image.ObjectKey,
		&image.Kind,
		&image.Location,
		&image.StructureComponent,
		&image.Filename,
		&image.ContentType,
		&image.SizeBytes,
		&image.CaptureDate,
		&image.Camera,
		&image.Notes,
		&image.ComparisonID,
		&image.UploadedAt,
	)
	return image, err
}
