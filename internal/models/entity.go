package models

import (
	"time"
)

// EntityKind classifies a tracked entity
type EntityKind string

const (
	EntityKindEquity EntityKind = "equity"
	EntityKindFund   EntityKind = "fund"
	EntityKindOther  EntityKind = "other"
)

// KindFromAssetType maps vendor asset type strings to an EntityKind
func KindFromAssetType(assetType string) EntityKind {
	switch assetType {
	case "Stock":
		return EntityKindEquity
	case "ETF":
		return EntityKindFund
	default:
		return EntityKindOther
	}
}

// Entity represents a tracked symbol with a stable integer identity.
// Entities are append-only: delisting sets TerminationDate, rows are never
// deleted because dataset rows reference EntityID.
type Entity struct {
	ID          int64      `json:"entity_id"`
	NaturalKey  string     `json:"natural_key"` // ticker
	Name        string     `json:"name"`
	Exchange    string     `json:"exchange"`
	Kind        EntityKind `json:"kind"`
	Inception   *time.Time `json:"inception_date"`   // nullable DATE
	Termination *time.Time `json:"termination_date"` // nullable DATE
}

// Active reports whether the entity is still listed at the given time.
func (e *Entity) Active(at time.Time) bool {
	return e.Termination == nil || e.Termination.After(at)
}
