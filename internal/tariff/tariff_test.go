package tariff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateAt_PeakWindow(t *testing.T) {
	s := NewSchedule(17, 21, 0.28, 0.12, 0.15)

	tests := []struct {
		hour int
		want float64
	}{
		{16, 0.12},
		{17, 0.28},
		{19, 0.28},
		{21, 0.28},
		{22, 0.12},
		{3, 0.12},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, s.RateAt(tt.hour), 1e-9, "hour %d", tt.hour)
	}
}

func TestRateAt_WrappingWindow(t *testing.T) {
	s := NewSchedule(22, 2, 0.30, 0.10, 0.15)

	assert.True(t, s.IsPeak(23))
	assert.True(t, s.IsPeak(1))
	assert.False(t, s.IsPeak(12))
	assert.InDelta(t, 0.30, s.RateAt(23), 1e-9)
	assert.InDelta(t, 0.10, s.RateAt(12), 1e-9)
}

func TestRateAt_FlatFallback(t *testing.T) {
	s := NewSchedule(17, 21, 0, 0, 0.15)

	for hour := 0; hour < 24; hour++ {
		assert.InDelta(t, 0.15, s.RateAt(hour), 1e-9)
	}
}
