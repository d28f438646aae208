package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/identity"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

// ErrEntityNotFound is returned when a lookup matches no entity row.
var ErrEntityNotFound = errors.New("entity not found")

// EntityRepository handles database operations for the entities table.
type EntityRepository struct {
	db *pgxpool.Pool
}

// NewEntityRepository creates a new entity repository.
func NewEntityRepository(db *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{db: db}
}

const entityColumns = `entity_id, natural_key, name, exchange, kind, inception_date, termination_date`

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var ent models.Entity
	err := row.Scan(&ent.ID, &ent.NaturalKey, &ent.Name, &ent.Exchange,
		&ent.Kind, &ent.Inception, &ent.Termination)
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

// GetByNaturalKey fetches an entity by its ticker. Returns ErrEntityNotFound
// when no row matches.
func (r *EntityRepository) GetByNaturalKey(ctx context.Context, naturalKey string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE natural_key = $1`

	ent, err := scanEntity(r.db.QueryRow(ctx, query, naturalKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", naturalKey, err)
	}
	return ent, nil
}

// GetByID fetches an entity by its assigned ID. Returns ErrEntityNotFound
// when no row matches.
func (r *EntityRepository) GetByID(ctx context.Context, id int64) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE entity_id = $1`

	ent, err := scanEntity(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %d: %w", id, err)
	}
	return ent, nil
}

// GetAll returns every entity ordered by natural key.
func (r *EntityRepository) GetAll(ctx context.Context) ([]models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities ORDER BY natural_key`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var ents []models.Entity
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		ents = append(ents, *ent)
	}
	return ents, rows.Err()
}

// ListAssignments returns the full natural-key to entity-ID mapping.
func (r *EntityRepository) ListAssignments(ctx context.Context) (map[string]int64, error) {
	query := `SELECT natural_key, entity_id FROM entities`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make(map[string]int64)
	for rows.Next() {
		var key string
		var id int64
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments[key] = id
	}
	return assignments, rows.Err()
}

// FindID implements identity.Registry: it resolves a natural key to its
// assigned entity ID, or identity.ErrKeyUnbound.
func (r *EntityRepository) FindID(ctx context.Context, naturalKey string) (int64, error) {
	query := `SELECT entity_id FROM entities WHERE natural_key = $1`

	var id int64
	err := r.db.QueryRow(ctx, query, naturalKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, identity.ErrKeyUnbound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", naturalKey, err)
	}
	return id, nil
}

// CodeTaken implements identity.Registry: it reports whether an entity ID is
// already in use.
func (r *EntityRepository) CodeTaken(ctx context.Context, code int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM entities WHERE entity_id = $1)`

	var taken bool
	if err := r.db.QueryRow(ctx, query, code).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check entity id %d: %w", code, err)
	}
	return taken, nil
}

// Create implements identity.Registry: it inserts ent with ent.ID already
// set. created is false when the natural key was bound concurrently; a unique
// violation on entity_id maps to identity.ErrCodeTaken so the assigner can
// continue its scan.
func (r *EntityRepository) Create(ctx context.Context, ent *models.Entity) (bool, error) {
	query := `
		INSERT INTO entities (entity_id, natural_key, name, exchange, kind, inception_date, termination_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (natural_key) DO NOTHING
		RETURNING entity_id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		ent.ID, ent.NaturalKey, ent.Name, ent.Exchange, ent.Kind,
		ent.Inception, ent.Termination).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, identity.ErrCodeTaken
	}
	if err != nil {
		return false, fmt.Errorf("failed to create entity %s: %w", ent.NaturalKey, err)
	}
	return true, nil
}

// UpdateListing refreshes the mutable listing metadata for an existing
// entity. Identity fields (entity_id, natural_key) never change.
func (r *EntityRepository) UpdateListing(ctx context.Context, ent *models.Entity) error {
	query := `
		UPDATE entities
		SET name = $2, exchange = $3, kind = $4,
		    inception_date = COALESCE($5, inception_date),
		    termination_date = $6,
		    updated_at = NOW()
		WHERE entity_id = $1`

	tag, err := r.db.Exec(ctx, query,
		ent.ID, ent.Name, ent.Exchange, ent.Kind, ent.Inception, ent.Termination)
	if err != nil {
		return fmt.Errorf("failed to update entity %d: %w", ent.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// MarkDelisted stamps termination dates on entities that disappeared from the
// listing feed. Entities already terminated are left alone. Returns how many
// rows were stamped.
func (r *EntityRepository) MarkDelisted(ctx context.Context, terminations []*models.Entity) (int, error) {
	if len(terminations) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, ent := range terminations {
		batch.Queue(`
			UPDATE entities
			SET termination_date = $2, updated_at = NOW()
			WHERE entity_id = $1 AND termination_date IS NULL`,
			ent.ID, ent.Termination)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	stamped := 0
	for range terminations {
		tag, err := results.Exec()
		if err != nil {
			return stamped, fmt.Errorf("failed to mark delistings: %w", err)
		}
		stamped += int(tag.RowsAffected())
	}
	return stamped, nil
}
