package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

// WatermarkRepository handles database operations for the watermarks table.
type WatermarkRepository struct {
	db *pgxpool.Pool
}

// NewWatermarkRepository creates a new watermark repository.
func NewWatermarkRepository(db *pgxpool.Pool) *WatermarkRepository {
	return &WatermarkRepository{db: db}
}

// Get fetches the watermark for one (entity, dataset) pair. Returns (nil, nil)
// when the pair has never been scheduled.
func (r *WatermarkRepository) Get(ctx context.Context, entityID int64, dataset string) (*models.Watermark, error) {
	query := `
		SELECT entity_id, dataset_name, last_success_at, consecutive_failures,
		       first_period_covered, last_period_covered, eligible, last_run_status
		FROM watermarks
		WHERE entity_id = $1 AND dataset_name = $2`

	var wm models.Watermark
	err := r.db.QueryRow(ctx, query, entityID, dataset).Scan(
		&wm.EntityID, &wm.Dataset, &wm.LastSuccessAt, &wm.ConsecutiveFailures,
		&wm.FirstPeriodCovered, &wm.LastPeriodCovered, &wm.Eligible, &wm.LastRunStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark %d/%s: %w", entityID, dataset, err)
	}
	return &wm, nil
}

// RecordOutcome persists the result of one processing attempt as a single
// upsert. Success and no_data reset the failure counter, stamp the success
// time, and advance coverage monotonically (GREATEST/LEAST keep an existing
// wider range). Errors increment the failure counter; the circuit breaker is
// that counter alone, enforced at scheduling time, so the eligible kill
// switch stays untouched and reserved for operators. Other pairs are never
// touched.
func (r *WatermarkRepository) RecordOutcome(ctx context.Context, entityID int64, dataset string, outcome models.Outcome) error {
	switch outcome.Status {
	case models.RunStatusSuccess, models.RunStatusNoData:
		query := `
			INSERT INTO watermarks (entity_id, dataset_name, last_success_at, consecutive_failures,
			                        first_period_covered, last_period_covered, eligible, last_run_status)
			VALUES ($1, $2, NOW(), 0, $3, $3, TRUE, $4)
			ON CONFLICT (entity_id, dataset_name) DO UPDATE SET
				last_success_at = NOW(),
				consecutive_failures = 0,
				first_period_covered = LEAST(watermarks.first_period_covered, EXCLUDED.first_period_covered),
				last_period_covered = GREATEST(watermarks.last_period_covered, EXCLUDED.last_period_covered),
				last_run_status = EXCLUDED.last_run_status,
				updated_at = NOW()`

		_, err := r.db.Exec(ctx, query, entityID, dataset, outcome.CoveredThrough, outcome.Status)
		if err != nil {
			return fmt.Errorf("failed to record %s for %d/%s: %w", outcome.Status, entityID, dataset, err)
		}
		return nil

	case models.RunStatusError:
		// A failed run can still advance coverage through the periods that
		// succeeded before the failure.
		query := `
			INSERT INTO watermarks (entity_id, dataset_name, last_success_at, consecutive_failures,
			                        first_period_covered, last_period_covered, eligible, last_run_status)
			VALUES ($1, $2, NULL, 1, $3, $3, TRUE, 'error')
			ON CONFLICT (entity_id, dataset_name) DO UPDATE SET
				consecutive_failures = watermarks.consecutive_failures + 1,
				first_period_covered = LEAST(watermarks.first_period_covered, EXCLUDED.first_period_covered),
				last_period_covered = GREATEST(watermarks.last_period_covered, EXCLUDED.last_period_covered),
				last_run_status = 'error',
				updated_at = NOW()`

		_, err := r.db.Exec(ctx, query, entityID, dataset, outcome.CoveredThrough)
		if err != nil {
			return fmt.Errorf("failed to record error for %d/%s: %w", entityID, dataset, err)
		}
		return nil

	default:
		return fmt.Errorf("unknown run status %q", outcome.Status)
	}
}

// ListCandidates returns every entity joined with its watermark for a
// dataset, ordered for scheduling: never-succeeded pairs first, then by
// oldest success, ties broken by natural key so the ordering is stable.
// Pairs suspended by the failure threshold are excluded unless the filter
// asks for them.
func (r *WatermarkRepository) ListCandidates(ctx context.Context, dataset string, filter models.CandidateFilter) ([]models.Candidate, error) {
	query := `
		SELECT e.entity_id, e.natural_key, e.name, e.exchange, e.kind,
		       e.inception_date, e.termination_date,
		       w.entity_id, w.dataset_name, w.last_success_at, w.consecutive_failures,
		       w.first_period_covered, w.last_period_covered, w.eligible, w.last_run_status
		FROM entities e
		LEFT JOIN watermarks w ON w.entity_id = e.entity_id AND w.dataset_name = $1`

	args := []any{dataset}
	conditions := []string{}

	if !filter.IncludeIneligible {
		conditions = append(conditions, `(w.eligible IS NULL OR w.eligible)`)
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		conditions = append(conditions, fmt.Sprintf(`e.kind = ANY($%d)`, len(args)))
	}
	if filter.KeyPrefix != "" {
		args = append(args, filter.KeyPrefix+"%")
		conditions = append(conditions, fmt.Sprintf(`e.natural_key LIKE $%d`, len(args)))
	}

	for i, cond := range conditions {
		if i == 0 {
			query += `
		WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}

	query += `
		ORDER BY w.last_success_at ASC NULLS FIRST, e.natural_key`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(`
		LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates for %s: %w", dataset, err)
	}
	defer rows.Close()

	var candidates []models.Candidate
	for rows.Next() {
		var c models.Candidate
		var wmID *int64
		var wmDataset, wmStatus *string
		var wm models.Watermark
		var failures *int
		var eligible *bool

		err := rows.Scan(&c.Entity.ID, &c.Entity.NaturalKey, &c.Entity.Name,
			&c.Entity.Exchange, &c.Entity.Kind, &c.Entity.Inception, &c.Entity.Termination,
			&wmID, &wmDataset, &wm.LastSuccessAt, &failures,
			&wm.FirstPeriodCovered, &wm.LastPeriodCovered, &eligible, &wmStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}

		if wmID != nil {
			wm.EntityID = *wmID
			wm.Dataset = *wmDataset
			wm.ConsecutiveFailures = *failures
			wm.Eligible = *eligible
			wm.LastRunStatus = models.RunStatus(*wmStatus)
			c.Watermark = &wm
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// SetEligible flips the manual kill switch for one pair. Re-enabling also
// clears the failure counter so a pair that was both disabled and failing
// returns to normal rotation in one action.
func (r *WatermarkRepository) SetEligible(ctx context.Context, entityID int64, dataset string, eligible bool) error {
	query := `
		UPDATE watermarks
		SET eligible = $3,
		    consecutive_failures = CASE WHEN $3 THEN 0 ELSE consecutive_failures END,
		    updated_at = NOW()
		WHERE entity_id = $1 AND dataset_name = $2`

	tag, err := r.db.Exec(ctx, query, entityID, dataset, eligible)
	if err != nil {
		return fmt.Errorf("failed to set eligibility for %d/%s: %w", entityID, dataset, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// ResetFailed clears failure counters and restores eligibility for every
// suspended or failing pair of a dataset. Returns how many rows changed.
func (r *WatermarkRepository) ResetFailed(ctx context.Context, dataset string) (int, error) {
	query := `
		UPDATE watermarks
		SET consecutive_failures = 0, eligible = TRUE, updated_at = NOW()
		WHERE dataset_name = $1 AND (consecutive_failures > 0 OR NOT eligible)`

	tag, err := r.db.Exec(ctx, query, dataset)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failures for %s: %w", dataset, err)
	}
	return int(tag.RowsAffected()), nil
}

// Summary aggregates watermark state for one dataset.
func (r *WatermarkRepository) Summary(ctx context.Context, dataset string) (*models.WatermarkSummary, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE eligible),
		       COUNT(*) FILTER (WHERE NOT eligible),
		       COUNT(*) FILTER (WHERE consecutive_failures > 0),
		       COUNT(*) FILTER (WHERE last_success_at IS NULL),
		       MIN(last_success_at),
		       MAX(last_success_at)
		FROM watermarks
		WHERE dataset_name = $1`

	summary := models.WatermarkSummary{Dataset: dataset}
	err := r.db.QueryRow(ctx, query, dataset).Scan(
		&summary.Pairs, &summary.Eligible, &summary.Suspended, &summary.Failing,
		&summary.NeverSucceeded, &summary.OldestSuccess, &summary.NewestSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize %s: %w", dataset, err)
	}
	return &summary, nil
}
