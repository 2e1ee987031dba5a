package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"tailwatch/internal/domain/model"
)

const ratioPlaces = 2

// DetectTail classifies a single candle against thresholdPercent.
//
// The upper wick is checked first, so when both wicks exceed the threshold the
// candle is reported as a sell. A zero range candle never produces a signal.
// The reported ratio is rounded to two places; comparisons use the raw value.
func DetectTail(c model.Candle, thresholdPercent float64) (model.TailResult, bool) {
	candleRange := c.High - c.Low
	if candleRange == 0 {
		return model.TailResult{}, false
	}

	upperTail := c.High - math.Max(c.Open, c.Close)
	lowerTail := math.Min(c.Open, c.Close) - c.Low

	upperRatio := upperTail / candleRange * 100
	lowerRatio := lowerTail / candleRange * 100

	if upperRatio > thresholdPercent {
		return model.TailResult{Direction: model.DirectionSell, RatioPercent: roundRatio(upperRatio)}, true
	}
	if lowerRatio > thresholdPercent {
		return model.TailResult{Direction: model.DirectionBuy, RatioPercent: roundRatio(lowerRatio)}, true
	}
	return model.TailResult{}, false
}

// LatestCandle returns the most recent candle of an oldest-first window.
func LatestCandle(candles []model.Candle) (model.Candle, bool) {
	if len(candles) == 0 {
		return model.Candle{}, false
	}
	return candles[len(candles)-1], true
}

// roundRatio rounds half away from zero on the shortest decimal form of v, so
// 1.005 becomes 1.01 where binary toFixed(2) yields 1.00.
func roundRatio(v float64) float64 {
	return decimal.NewFromFloat(v).Round(ratioPlaces).InexactFloat64()
}
