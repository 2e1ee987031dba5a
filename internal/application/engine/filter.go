// Package engine holds the decision logic of the service: instrument filtering
// and tail signal detection. Everything here is a pure function of its inputs.
package engine

import (
	"math"
	"strconv"
	"strings"

	"tailwatch/internal/domain/model"
)

// FilterInstruments returns the records matching every dimension of spec, in
// source order. The input slice is not modified.
func FilterInstruments(records []model.Instrument, spec model.FilterSpec) []model.Instrument {
	term := strings.ToLower(spec.SearchTerm)

	out := make([]model.Instrument, 0, len(records))
	for _, r := range records {
		if !matchesSearch(r, term) {
			continue
		}
		if !matchesQuote(r, spec.QuoteAsset) {
			continue
		}
		if !matchesValue(r.Price, spec.PriceOp, spec.PriceValue) {
			continue
		}
		if !matchesValue(r.Volume, spec.VolumeOp, spec.VolumeValue) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// term must already be lower-cased.
func matchesSearch(r model.Instrument, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Symbol), term) ||
		strings.Contains(strings.ToLower(r.BaseAsset), term) ||
		strings.Contains(strings.ToLower(r.QuoteAsset), term)
}

func matchesQuote(r model.Instrument, quote string) bool {
	return quote == model.QuoteAll || r.QuoteAsset == quote
}

// A non-positive threshold means the dimension is unconstrained, not "equal to zero".
func matchesValue(v float64, op model.Comparator, threshold float64) bool {
	if threshold <= 0 {
		return true
	}
	switch op {
	case model.CompareEq:
		return v == threshold
	case model.CompareGt:
		return v > threshold
	case model.CompareLt:
		return v < threshold
	case model.CompareGte:
		return v >= threshold
	case model.CompareLte:
		return v <= threshold
	}
	return true
}

// ParseFilterValue normalises a user supplied number. Anything that does not
// parse as a finite float becomes 0, which disables the dimension.
func ParseFilterValue(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
