package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/alphavantage"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/scheduling"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/util"
)

// compactDays is the longest daily range served by the vendor's "compact"
// output (100 data points).
const compactDays = 100

// LandingStore is the slice of repository.LandingRepository the extractor
// uses.
type LandingStore interface {
	LatestHash(ctx context.Context, entityID int64, dataset string) (string, error)
	Store(ctx context.Context, resp *models.LandingResponse) error
}

// PayloadCache memoizes envelopes per pair; implemented by cache.MemoryCache.
type PayloadCache interface {
	GetPayload(entityID int64, dataset string) (*alphavantage.Envelope, bool)
	SetPayload(entityID int64, dataset string, env *alphavantage.Envelope)
}

// VendorClient is the slice of alphavantage.Client the extractor uses.
type VendorClient interface {
	GetFundamentals(ctx context.Context, function, symbol string) (*alphavantage.Envelope, error)
	GetDailyAdjusted(ctx context.Context, symbol, outputSize string) (*alphavantage.Envelope, error)
}

// ExtractService implements scheduling.Fetcher: it pulls raw payloads from
// the vendor and lands them. Fundamentals endpoints return all quarters in
// one response, so the envelope is memoized per pair and each planned quarter
// is answered from it; the landing row is written once per actual fetch, and
// only when the content hash differs from the last stored payload.
type ExtractService struct {
	landing  LandingStore
	avClient VendorClient
	payloads PayloadCache
}

// NewExtractService creates a new ExtractService
func NewExtractService(landing LandingStore, avClient VendorClient, payloads PayloadCache) *ExtractService {
	return &ExtractService{
		landing:  landing,
		avClient: avClient,
		payloads: payloads,
	}
}

// Fetch resolves one planned period for one pair. Outcomes map onto the
// coordinator's taxonomy: nil advances coverage, scheduling.ErrNoData records
// a definitive gap, scheduling.ErrUnauthenticated aborts the cycle, anything
// else counts as a transient failure.
func (s *ExtractService) Fetch(ctx context.Context, ent models.Entity, ds models.Dataset, p scheduling.Period) error {
	env, ok := s.payloads.GetPayload(ent.ID, ds.Name)
	if !ok {
		var err error
		env, err = s.fetchEnvelope(ctx, ent, ds, p)
		if err != nil {
			return err
		}
		s.payloads.SetPayload(ent.ID, ds.Name, env)

		if env.Class == alphavantage.ClassData {
			if err := s.land(ctx, ent, ds, p, env.Payload); err != nil {
				return err
			}
		}
	}

	switch env.Class {
	case alphavantage.ClassUnauthenticated:
		return fmt.Errorf("%s: %w", env.Message, scheduling.ErrUnauthenticated)
	case alphavantage.ClassRateLimited:
		return fmt.Errorf("rate limited: %s", env.Message)
	case alphavantage.ClassError:
		return fmt.Errorf("vendor rejected request: %s", env.Message)
	case alphavantage.ClassEmpty:
		return scheduling.ErrNoData
	}

	if ds.Granularity == models.GranularityQuarter {
		return checkQuarter(env.Payload, p)
	}
	return nil
}

func (s *ExtractService) fetchEnvelope(ctx context.Context, ent models.Entity, ds models.Dataset, p scheduling.Period) (*alphavantage.Envelope, error) {
	if ds.Granularity == models.GranularityDay {
		outputSize := "compact"
		if p.End.Sub(p.Start) > compactDays*24*time.Hour {
			outputSize = "full"
		}
		return s.avClient.GetDailyAdjusted(ctx, ent.NaturalKey, outputSize)
	}
	return s.avClient.GetFundamentals(ctx, ds.APIFunction, ent.NaturalKey)
}

// land stores the raw payload unless it is byte-identical to the last stored
// one for this pair.
func (s *ExtractService) land(ctx context.Context, ent models.Entity, ds models.Dataset, p scheduling.Period, payload []byte) error {
	hash := util.ContentHash(payload)

	latest, err := s.landing.LatestHash(ctx, ent.ID, ds.Name)
	if err != nil {
		return err
	}
	if latest == hash {
		log.Debugf("%s/%s content unchanged, skipping landing write", ent.NaturalKey, ds.Name)
		return nil
	}

	end := p.End
	return s.landing.Store(ctx, &models.LandingResponse{
		EntityID:    ent.ID,
		Dataset:     ds.Name,
		PeriodEnd:   &end,
		ContentHash: hash,
		Payload:     payload,
	})
}

// fundamentalsReports is the slice of the fundamentals payload needed to tell
// which fiscal quarters the vendor actually has.
type fundamentalsReports struct {
	QuarterlyReports []struct {
		FiscalDateEnding string `json:"fiscalDateEnding"`
	} `json:"quarterlyReports"`
}

// checkQuarter reports ErrNoData when a fundamentals payload carries no
// fiscal report ending inside the planned quarter. Snapshot payloads without
// a quarterlyReports section (OVERVIEW) always satisfy the period.
func checkQuarter(payload []byte, p scheduling.Period) error {
	var reports fundamentalsReports
	if err := json.Unmarshal(payload, &reports); err != nil {
		return fmt.Errorf("failed to unmarshal fundamentals payload: %w", err)
	}
	if reports.QuarterlyReports == nil {
		return nil
	}

	for _, report := range reports.QuarterlyReports {
		ending := util.ParseVendorDate(report.FiscalDateEnding)
		if ending == nil {
			continue
		}
		if !ending.Before(p.Start) && !ending.After(p.End) {
			return nil
		}
	}
	return scheduling.ErrNoData
}
