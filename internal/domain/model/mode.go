package model

// DataMode selects the market data provider feeding the scheduler.
type DataMode int

const (
	LiveMode DataMode = iota
	TestMode
)

func (m DataMode) String() string {
	switch m {
	case LiveMode:
		return "live"
	case TestMode:
		return "test"
	default:
		return "unknown"
	}
}

func ParseDataMode(s string) (DataMode, bool) {
	switch s {
	case "live":
		return LiveMode, true
	case "test":
		return TestMode, true
	default:
		return LiveMode, false
	}
}
