package model

import "time"

type Instrument struct {
	Symbol     string  `json:"symbol"`
	BaseAsset  string  `json:"base_asset"`
	QuoteAsset string  `json:"quote_asset"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
}

// UniverseSnapshot is one refresh worth of instruments. A new refresh replaces
// the whole snapshot, records are never updated in place.
type UniverseSnapshot struct {
	Instruments []Instrument `json:"instruments"`
	FetchedAt   time.Time    `json:"fetched_at"`
	Source      string       `json:"source"`
}
