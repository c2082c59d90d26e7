package reservation

// Window is one purchased-capacity interval: Count reserved units from
// Start to End (epoch millis, end exclusive).
type Window struct {
	Count int
	Start int64
	End   int64
}

// ActiveAt reports whether the window covers the instant t
func (w Window) ActiveAt(t int64) bool {
	return t >= w.Start && t < w.End
}

// TermHours returns the contracted term length in hours
func (w Window) TermHours() float64 {
	return float64(w.End-w.Start) / (1000 * 60 * 60)
}
