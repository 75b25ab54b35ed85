package util

import "time"

func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// NewImmediateTicker returns a ticker that fires once right away and then
// on every interval, unlike time.NewTicker which waits for the first tick.
func NewImmediateTicker(d time.Duration) *time.Ticker {
	t := time.NewTicker(d)
	oc := t.C
	nc := make(chan time.Time, 1)
	go func() {
		nc <- time.Now()
		for tm := range oc {
			nc <- tm
		}
	}()
	t.C = nc
	return t
}
