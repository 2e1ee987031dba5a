package model

import "time"

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TailResult is what the detector reports for a qualifying candle.
type TailResult struct {
	Direction    Direction `json:"direction"`
	RatioPercent float64   `json:"ratio_percent"`
}

type Signal struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	RatioPercent float64   `json:"ratio_percent"`
	CandleTime   int64     `json:"candle_time"`
	DetectedAt   time.Time `json:"detected_at"`
}
