package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

// LandingRepository handles database operations for the landing_responses
// table, the append-only store of raw vendor payloads.
type LandingRepository struct {
	db *pgxpool.Pool
}

// NewLandingRepository creates a new landing repository.
func NewLandingRepository(db *pgxpool.Pool) *LandingRepository {
	return &LandingRepository{db: db}
}

// LatestHash returns the content hash of the most recent stored payload for
// an (entity, dataset) pair, or "" when nothing has been stored yet.
func (r *LandingRepository) LatestHash(ctx context.Context, entityID int64, dataset string) (string, error) {
	query := `
		SELECT content_hash
		FROM landing_responses
		WHERE entity_id = $1 AND dataset_name = $2
		ORDER BY fetched_at DESC
		LIMIT 1`

	var hash string
	err := r.db.QueryRow(ctx, query, entityID, dataset).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest hash for %d/%s: %w", entityID, dataset, err)
	}
	return hash, nil
}

// Store appends one raw payload row and fills in the generated ID and
// fetch timestamp.
func (r *LandingRepository) Store(ctx context.Context, resp *models.LandingResponse) error {
	query := `
		INSERT INTO landing_responses (entity_id, dataset_name, period_end, content_hash, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, fetched_at`

	err := r.db.QueryRow(ctx, query,
		resp.EntityID, resp.Dataset, resp.PeriodEnd, resp.ContentHash, resp.Payload).
		Scan(&resp.ID, &resp.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to store landing payload for %d/%s: %w", resp.EntityID, resp.Dataset, err)
	}
	return nil
}
