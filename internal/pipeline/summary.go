package pipeline

import "math"

// Verdict compares a count with the number of parts the tray should hold.
type Verdict struct {
	Count       int
	Theoretical int
	// OverCount is set when more parts were counted than the tray holds,
	// which can only be a detection error.
	OverCount bool
	// YieldRate is Count/Theoretical in percent, rounded half up to 0.1.
	// It is zero when Theoretical is not positive.
	YieldRate float64
}

// Summary builds the verdict for count against theoretical.
func Summary(count, theoretical int) Verdict {
	v := Verdict{Count: count, Theoretical: theoretical}
	if theoretical <= 0 {
		return v
	}
	v.OverCount = count > theoretical
	v.YieldRate = math.Floor(float64(count)/float64(theoretical)*1000+0.5) / 10
	return v
}

// BelowLimit reports whether the yield rate is under limit percent.
func (v Verdict) BelowLimit(limit float64) bool {
	return v.Theoretical > 0 && v.YieldRate < limit
}
