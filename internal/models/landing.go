package models

import (
	"time"
)

// LandingResponse is one raw vendor payload stored before any downstream
// transformation. The content hash lets re-fetches of unchanged data be
// detected without comparing payloads.
type LandingResponse struct {
	ID          int64      `json:"id"`
	EntityID    int64      `json:"entity_id"`
	Dataset     string     `json:"dataset_name"`
	PeriodEnd   *time.Time `json:"period_end"`
	ContentHash string     `json:"content_hash"`
	Payload     []byte     `json:"payload"`
	FetchedAt   time.Time  `json:"fetched_at"`
}
