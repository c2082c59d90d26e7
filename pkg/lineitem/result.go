package lineitem

// Result is the timing classification of one billing row
type Result int

const (
	// ResultIgnore drops the row entirely
	ResultIgnore Result = iota
	// ResultDelay defers the row to the second pass
	ResultDelay
	// ResultHourly books the row at its start hour
	ResultHourly
	// ResultDaily books the row at the first hour of its day
	ResultDaily
	// ResultMonthly spreads the row evenly across the billing month
	ResultMonthly
)

// String returns the string value of Result
func (r Result) String() string {
	switch r {
	case ResultIgnore:
		return "ignore"
	case ResultDelay:
		return "delay"
	case ResultHourly:
		return "hourly"
	case ResultDaily:
		return "daily"
	case ResultMonthly:
		return "monthly"
	}
	return "unknown"
}
