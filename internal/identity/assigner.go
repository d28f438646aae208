package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
	log "github.com/sirupsen/logrus"
)

// ErrCollisionSpaceExhausted is returned when the forward scan from a derived
// code exceeds the scan bound without finding a free identifier.
var ErrCollisionSpaceExhausted = errors.New("identity: collision space exhausted")

// ErrCodeTaken is returned by a Registry when an insert lost to another key
// already holding the candidate entity ID.
var ErrCodeTaken = errors.New("identity: entity id already taken")

// ErrKeyUnbound is returned by Registry.FindID when a natural key has no
// entity ID yet.
var ErrKeyUnbound = errors.New("identity: natural key not bound")

const (
	// codeWidth is how many leading characters of the natural key contribute
	// to the derived code. Longer keys truncate; the forward scan resolves
	// the resulting collisions.
	codeWidth = 8

	// codeBase is the positional base: 38 character ranks plus the padding
	// rank 0, so shorter keys sort below their extensions.
	codeBase = 39

	// defaultMaxScan bounds the forward scan. Collision clusters in a real
	// ticker universe are single digits; hitting this bound means the
	// derivation itself is broken.
	defaultMaxScan = 1024
)

// DeriveCode converts a natural key into a deterministic integer whose
// ordering matches lexicographic key order: for keys a < b that fit in
// codeWidth characters, DeriveCode(a) < DeriveCode(b) unless they share an
// 8-character prefix. Character ranks follow ASCII order: '-' < '.' < digits
// < letters. Lowercase folds to uppercase; anything else gets the top rank.
func DeriveCode(naturalKey string) int64 {
	key := strings.ToUpper(naturalKey)
	var code int64
	for i := 0; i < codeWidth; i++ {
		code *= codeBase
		if i < len(key) {
			code += int64(charRank(key[i]))
		}
	}
	return code
}

func charRank(c byte) int {
	switch {
	case c == '-':
		return 1
	case c == '.':
		return 2
	case c >= '0' && c <= '9':
		return 3 + int(c-'0')
	case c >= 'A' && c <= 'Z':
		return 13 + int(c-'A')
	default:
		return 38
	}
}

// Registry is the persistence surface the Assigner needs. EntityRepository
// implements it against the entities table.
type Registry interface {
	// FindID returns the entity ID bound to a natural key, or ErrKeyUnbound.
	FindID(ctx context.Context, naturalKey string) (int64, error)
	// CodeTaken reports whether an entity ID is already bound to any key.
	CodeTaken(ctx context.Context, code int64) (bool, error)
	// Create atomically binds ent (with ent.ID set) keyed on its natural key.
	// created is false when the key was already bound by a concurrent caller.
	// Returns ErrCodeTaken when ent.ID lost a race to a different key.
	Create(ctx context.Context, ent *models.Entity) (created bool, err error)
}

// Assigner issues stable, order-preserving entity IDs. Assignment is
// append-only and idempotent: once a key holds an ID it keeps it forever, and
// re-running assignment over an unchanged universe changes nothing.
type Assigner struct {
	registry Registry
	maxScan  int64
}

// NewAssigner creates an Assigner backed by the given registry.
func NewAssigner(registry Registry) *Assigner {
	return &Assigner{registry: registry, maxScan: defaultMaxScan}
}

// Assign binds an entity ID to ent.NaturalKey, setting ent.ID, and reports
// whether a new binding was written. If the key is already bound the existing
// ID is adopted and nothing is written. A collision on the derived code scans
// forward (code, code+1, ...) until a free value is found, so the first key
// processed for a code keeps it. Callers that process keys in sorted order
// (AssignAll) therefore give the canonical, sort-first key the base code.
func (a *Assigner) Assign(ctx context.Context, ent *models.Entity) (bool, error) {
	if id, err := a.registry.FindID(ctx, ent.NaturalKey); err == nil {
		ent.ID = id
		return false, nil
	} else if !errors.Is(err, ErrKeyUnbound) {
		return false, fmt.Errorf("identity lookup for %s: %w", ent.NaturalKey, err)
	}

	base := DeriveCode(ent.NaturalKey)
	for offset := int64(0); offset < a.maxScan; offset++ {
		code := base + offset

		taken, err := a.registry.CodeTaken(ctx, code)
		if err != nil {
			return false, fmt.Errorf("identity scan for %s: %w", ent.NaturalKey, err)
		}
		if taken {
			continue
		}

		ent.ID = code
		created, err := a.registry.Create(ctx, ent)
		if errors.Is(err, ErrCodeTaken) {
			// Lost the code to a concurrent assignment; keep scanning.
			continue
		}
		if err != nil {
			return false, fmt.Errorf("identity bind for %s: %w", ent.NaturalKey, err)
		}
		if !created {
			// A concurrent caller bound this key first; adopt its ID.
			id, err := a.registry.FindID(ctx, ent.NaturalKey)
			if err != nil {
				return false, fmt.Errorf("identity re-lookup for %s: %w", ent.NaturalKey, err)
			}
			ent.ID = id
			return false, nil
		}
		if offset > 0 {
			log.Infof("assigned %s entity id %d (%d past derived code)", ent.NaturalKey, code, offset)
		}
		return true, nil
	}

	return false, fmt.Errorf("assigning %s: %w", ent.NaturalKey, ErrCollisionSpaceExhausted)
}

// AssignAll assigns IDs for a batch of entities in natural-key order, which
// makes the overall mapping deterministic: re-running over the same universe
// reproduces it exactly. Entities whose keys are already bound are left
// untouched. Returns the number of new assignments.
func (a *Assigner) AssignAll(ctx context.Context, ents []*models.Entity) (int, error) {
	sort.Slice(ents, func(i, j int) bool {
		return ents[i].NaturalKey < ents[j].NaturalKey
	})

	assigned := 0
	for _, ent := range ents {
		created, err := a.Assign(ctx, ent)
		if err != nil {
			return assigned, err
		}
		if created {
			assigned++
		}
	}
	return assigned, nil
}
