// Package tariff provides the peak-hours rate lookup used to price the
// estimated extra cost of anomalous consumption.
package tariff

// Schedule maps hour-of-day to a per-kWh rate. A schedule with no peak/off-peak
// rates configured falls back to the flat rate for every hour.
type Schedule struct {
	peakStart   int
	peakEnd     int
	peakRate    float64
	offPeakRate float64
	flatRate    float64
}

func NewSchedule(peakStart, peakEnd int, peakRate, offPeakRate, flatRate float64) *Schedule {
	return &Schedule{
		peakStart:   peakStart,
		peakEnd:     peakEnd,
		peakRate:    peakRate,
		offPeakRate: offPeakRate,
		flatRate:    flatRate,
	}
}

// IsPeak reports whether hour falls inside the peak window. The window is
// inclusive on both ends and may wrap past midnight.
func (s *Schedule) IsPeak(hour int) bool {
	if s.peakStart <= s.peakEnd {
		return hour >= s.peakStart && hour <= s.peakEnd
	}
	return hour >= s.peakStart || hour <= s.peakEnd
}

// RateAt returns the per-kWh rate for the given hour.
func (s *Schedule) RateAt(hour int) float64 {
	if s.peakRate <= 0 || s.offPeakRate <= 0 {
		return s.flatRate
	}
	if s.IsPeak(hour) {
		return s.peakRate
	}
	return s.offPeakRate
}
