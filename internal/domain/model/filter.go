package model

type Comparator string

const (
	CompareEq  Comparator = "eq"
	CompareGt  Comparator = "gt"
	CompareLt  Comparator = "lt"
	CompareGte Comparator = "gte"
	CompareLte Comparator = "lte"
)

// QuoteAll disables the quote asset filter.
const QuoteAll = "all"

// FilterSpec selects instruments from a universe snapshot. Price and volume
// dimensions are disabled when their value is zero or negative.
type FilterSpec struct {
	SearchTerm  string     `json:"search"`
	QuoteAsset  string     `json:"quote"`
	PriceOp     Comparator `json:"price_op"`
	PriceValue  float64    `json:"price"`
	VolumeOp    Comparator `json:"volume_op"`
	VolumeValue float64    `json:"volume"`
}

func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		QuoteAsset: QuoteAll,
		PriceOp:    CompareGt,
		VolumeOp:   CompareGt,
	}
}

func (c Comparator) Valid() bool {
	switch c {
	case CompareEq, CompareGt, CompareLt, CompareGte, CompareLte:
		return true
	}
	return false
}
