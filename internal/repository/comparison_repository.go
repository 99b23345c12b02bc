package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"monasterywatch/internal/models"
)

var ErrComparisonNotFound = errors.New("comparison not found")

type ComparisonRepository struct {
	pool *pgxpool.Pool
}

func NewComparisonRepository(pool *pgxpool.Pool) *ComparisonRepository {
	return &ComparisonRepository{pool: pool}
}

const comparisonColumns = `id, location, structure_component,
       baseline_object_key, baseline_image_id, baseline_filename, baseline_uploaded_at,
       current_object_key, current_image_id, current_filename, current_uploaded_at,
       diff_object_key, diff_image_id, diff_filename, diff_uploaded_at,
       ssim_score, severity,
       difference_percentage, affected_area, contour_count, change_detected, message, recommendations,
       processing_time_ms, status, alert_flag, error_message, error_detail, notes,
       created_at, updated_at`

func (r *ComparisonRepository) Create(ctx context.Context, cmp models.Comparison) error {
	const query = `
		INSERT INTO comparisons (
			id, location, structure_component,
			baseline_object_key, baseline_image_id, baseline_filename, baseline_uploaded_at,
			current_object_key, current_image_id, current_filename, current_uploaded_at,
			ssim_score, severity,
			difference_percentage, affected_area, contour_count, change_detected, message, recommendations,
			processing_time_ms, status, alert_flag, notes, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13,
			$14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25
		)
	`

	_, err := r.pool.Exec(ctx, query,
		cmp.ID,
		cmp.Location,
		cmp.StructureComponent,
		cmp.Baseline.ObjectKey,
		cmp.Baseline.ImageID,
		cmp.Baseline.Filename,
		cmp.Baseline.UploadedAt,
		cmp.Current.ObjectKey,
		cmp.Current.ImageID,
		cmp.Current.Filename,
		cmp.Current.UploadedAt,
		cmp.SSIMScore,
		cmp.Severity,
		cmp.Analysis.DifferencePercentage,
		cmp.Analysis.AffectedArea,
		cmp.Analysis.ContourCount,
		cmp.Analysis.ChangeDetected,
		cmp.Analysis.Message,
		cmp.Analysis.Recommendations,
		cmp.ProcessingTimeMs,
		cmp.Status,
		cmp.AlertFlag,
		cmp.Notes,
		cmp.CreatedAt,
		cmp.UpdatedAt,
	)
	return err
}

// UpdateResult writes the full scoring outcome onto an existing record.
// Used for the processing -> completed transition.
func (r *ComparisonRepository) UpdateResult(ctx context.Context, cmp models.Comparison) error {
	const query = `
		UPDATE comparisons SET
			diff_object_key = $2, diff_image_id = $3, diff_filename = $4, diff_uploaded_at = $5,
			ssim_score = $6, severity = $7,
			difference_percentage = $8, affected_area = $9, contour_count = $10,
			change_detected = $11, message = $12, recommendations = $13,
			processing_time_ms = $14, status = $15, alert_flag = $16,
			updated_at = NOW()
		WHERE id = $1
	`

	var diffKey, diffImageID, diffFilename *string
	var diffUploadedAt *time.Time
	if cmp.Difference != nil {
		diffKey = &cmp.Difference.ObjectKey
		diffImageID = &cmp.Difference.ImageID
		diffFilename = &cmp.Difference.Filename
		diffUploadedAt = cmp.Difference.UploadedAt
	}

	tag, err := r.pool.Exec(ctx, query,
		cmp.ID,
		diffKey,
		diffImageID,
		diffFilename,
		diffUploadedAt,
		cmp.SSIMScore,
		cmp.Severity,
		cmp.Analysis.DifferencePercentage,
		cmp.Analysis.AffectedArea,
		cmp.Analysis.ContourCount,
		cmp.Analysis.ChangeDetected,
		cmp.Analysis.Message,
		cmp.Analysis.Recommendations,
		cmp.ProcessingTimeMs,
		cmp.Status,
		cmp.AlertFlag,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrComparisonNotFound
	}
	return nil
}

// MarkFailed records the processing -> failed transition with error detail.
func (r *ComparisonRepository) MarkFailed(ctx context.Context, id string, message, detail string) error {
	const query = `
		UPDATE comparisons
		SET status = $2, error_message = $3, error_detail = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, models.ComparisonStatusFailed, message, detail)
	return err
}

func (r *ComparisonRepository) UpdateNotes(ctx context.Context, id string, notes string) error {
	const query = `UPDATE comparisons SET notes = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrComparisonNotFound
	}
	return nil
}

func (r *ComparisonRepository) GetByID(ctx context.Context, id string) (models.Comparison, error) {
	query := `SELECT ` + comparisonColumns + ` FROM comparisons WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	cmp, err := scanComparison(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Comparison{}, ErrComparisonNotFound
		}
		return models.Comparison{}, err
	}
	return cmp, nil
}

func (r *ComparisonRepository) List(ctx context.Context, filter models.ComparisonFilter, limit, offset int) ([]models.Comparison, error) {
	where, args := comparisonFilterClause(filter)
	query := fmt.Sprintf(`
		SELECT %s FROM comparisons
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, comparisonColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comparisons []models.Comparison
	for rows.Next() {
		cmp, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		comparisons = append(comparisons, cmp)
	}
	return comparisons, rows.Err()
}

func (r *ComparisonRepository) Count(ctx context.Context, filter models.ComparisonFilter) (int, error) {
	where, args := comparisonFilterClause(filter)
	query := `SELECT COUNT(*) FROM comparisons ` + where

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ComparisonRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM comparisons WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrComparisonNotFound
	}
	return nil
}

// FailStale sweeps records stuck in processing longer than cutoff allows.
// A crash between the orchestrator's persistence steps can strand a record
// there; the sweep gives it a terminal state.
func (r *ComparisonRepository) FailStale(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `
		UPDATE comparisons
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE status = $3 AND created_at < $4
	`
	tag, err := r.pool.Exec(ctx, query,
		models.ComparisonStatusFailed,
		"scoring did not complete within the allowed window",
		models.ComparisonStatusProcessing,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func comparisonFilterClause(filter models.ComparisonFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Location != "" {
		args = append(args, filter.Location)
		clauses = append(clauses, fmt.Sprintf("location = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		clauses = append(clauses, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AlertFlag != nil {
		args = append(args, *filter.AlertFlag)
		clauses = append(clauses, fmt.Sprintf("alert_flag = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanComparison(row pgx.Row) (models.Comparison, error) {
	var cmp models.Comparison
	var diffKey, diffImageID, diffFilename *string
	var diffUploadedAt *time.Time
	var errMessage, errDetail *string

	err := row.Scan(
		&cmp.ID,
		&cmp.Location,
		&cmp.StructureComponent,
		&cmp.Baseline.ObjectKey,
		&cmp.Baseline.ImageID,
		&cmp.Baseline.Filename,
		&cmp.Baseline.UploadedAt,
		&cmp.Current.ObjectKey,
		&cmp.Current.ImageID,
		&cmp.Current.Filename,
		&cmp.Current.UploadedAt,
		&diffKey,
		&diffImageID,
		&diffFilename,
		&diffUploadedAt,
		&cmp.SSIMScore,
		&cmp.Severity,
		&cmp.Analysis.DifferencePercentage,
		&cmp.Analysis.AffectedArea,
		&cmp.Analysis.ContourCount,
		&cmp.Analysis.ChangeDetected,
		&cmp.Analysis.Message,
		&cmp.Analysis.Recommendations,
		&cmp.ProcessingTimeMs,
		&cmp.Status,
		&cmp.AlertFlag,
		&errMessage,
		&errDetail,
		&cmp.Notes,
		&cmp.CreatedAt,
		&cmp.UpdatedAt,
	)
	if err != nil {
		return models.Comparison{}, err
	}

	if diffKey != nil && diffImageID != nil {
		cmp.Difference = &models.ImageRef{
			ObjectKey:  *diffKey,
			ImageID:    *diffImageID,
			UploadedAt: diffUploadedAt,
		}
		if diffFilename != nil {
			cmp.Difference.Filename = *diffFilename
		}
	}
	if errMessage != nil {
		cmp.Error = &models.ComparisonError{Message: *errMessage}
		if errDetail != nil {
			cmp.Error.Detail = *errDetail
		}
	}
	return cmp, nil
}
