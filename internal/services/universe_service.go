package services

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/alphavantage"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/identity"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

// SyncUniverseResult contains the results of a universe sync operation
type SyncUniverseResult struct {
	EntriesSeen     int      `json:"entries_seen"`
	EntitiesCreated int      `json:"entities_created"`
	Refreshed       int      `json:"refreshed"`
	Delisted        int      `json:"delisted"`
	Errors          []string `json:"errors"`
}

// EntityStore is the slice of repository.EntityRepository the sync uses.
type EntityStore interface {
	ListAssignments(ctx context.Context) (map[string]int64, error)
	UpdateListing(ctx context.Context, ent *models.Entity) error
	MarkDelisted(ctx context.Context, terminations []*models.Entity) (int, error)
}

// ListingClient is the slice of alphavantage.Client the sync uses.
type ListingClient interface {
	GetListingStatus(ctx context.Context, state string) ([]alphavantage.ListingStatusEntry, error)
}

// UniverseService keeps the entity table in step with the vendor's listing
// feed: new tickers get identities, departed tickers get termination dates.
type UniverseService struct {
	entityRepo EntityStore
	assigner   *identity.Assigner
	avClient   ListingClient
}

// NewUniverseService creates a new UniverseService
func NewUniverseService(entityRepo EntityStore, assigner *identity.Assigner, avClient ListingClient) *UniverseService {
	return &UniverseService{
		entityRepo: entityRepo,
		assigner:   assigner,
		avClient:   avClient,
	}
}

// SyncUniverse pulls the active and delisted listing feeds, assigns
// identities to tickers never seen before, and stamps termination dates on
// tickers that have left. Entities are never deleted.
func (s *UniverseService) SyncUniverse(ctx context.Context) (*SyncUniverseResult, error) {
	result := &SyncUniverseResult{Errors: []string{}}

	active, err := s.avClient.GetListingStatus(ctx, alphavantage.ListingStateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active listings: %w", err)
	}
	delisted, err := s.avClient.GetListingStatus(ctx, alphavantage.ListingStateDelisted)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch delisted listings: %w", err)
	}

	// The same ticker can appear in both feeds when it was delisted and
	// relisted; the active row wins, so only tickers absent from the active
	// feed keep a termination date.
	bySymbol := make(map[string]*models.Entity, len(active)+len(delisted))
	for _, entry := range delisted {
		ent, err := entityFromListing(entry)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		bySymbol[ent.NaturalKey] = ent
	}
	for _, entry := range active {
		ent, err := entityFromListing(entry)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		ent.Termination = nil
		bySymbol[ent.NaturalKey] = ent
	}
	result.EntriesSeen = len(bySymbol)

	existing, err := s.entityRepo.ListAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	ents := make([]*models.Entity, 0, len(bySymbol))
	for _, ent := range bySymbol {
		ents = append(ents, ent)
	}

	created, err := s.assigner.AssignAll(ctx, ents)
	if err != nil {
		return nil, fmt.Errorf("failed to assign identities: %w", err)
	}
	result.EntitiesCreated = created

	// Pre-existing active tickers get their listing metadata refreshed in
	// place. This also clears the termination date of a relisted ticker.
	for _, ent := range ents {
		if ent.Termination != nil {
			continue
		}
		if _, ok := existing[ent.NaturalKey]; !ok {
			continue
		}
		if err := s.entityRepo.UpdateListing(ctx, ent); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("refresh %s: %v", ent.NaturalKey, err))
			continue
		}
		result.Refreshed++
	}

	// Entities that existed before this sync and now carry a termination
	// date are the newly delisted ones. MarkDelisted only touches rows whose
	// termination is still unset, so re-syncs are no-ops.
	var terminations []*models.Entity
	for _, ent := range ents {
		if ent.Termination == nil {
			continue
		}
		if _, ok := existing[ent.NaturalKey]; ok {
			terminations = append(terminations, ent)
		}
	}
	stamped, err := s.entityRepo.MarkDelisted(ctx, terminations)
	if err != nil {
		return nil, fmt.Errorf("failed to mark delistings: %w", err)
	}
	result.Delisted = stamped

	log.Infof("universe sync: %d entries, %d created, %d refreshed, %d delisted, %d errors",
		result.EntriesSeen, result.EntitiesCreated, result.Refreshed, result.Delisted, len(result.Errors))
	return result, nil
}

// entityFromListing converts one listing row. Names are truncated to 80
// characters to match the column width.
func entityFromListing(entry alphavantage.ListingStatusEntry) (*models.Entity, error) {
	if entry.Symbol == "" {
		return nil, fmt.Errorf("listing row with empty symbol (name %q)", entry.Name)
	}

	name := entry.Name
	if len(name) > 80 {
		name = name[:80]
	}

	return &models.Entity{
		NaturalKey:  entry.Symbol,
		Name:        name,
		Exchange:    entry.Exchange,
		Kind:        models.KindFromAssetType(entry.AssetType),
		Inception:   entry.IPODate,
		Termination: entry.DelistingDate,
	}, nil
}
