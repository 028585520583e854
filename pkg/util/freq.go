package util

import (
	"fmt"
	"math"
)

// FormatHz renders a frequency with a unit suited to its magnitude.
func FormatHz(hz float64) string {
	switch abs := math.Abs(hz); {
	case abs >= 1e6:
		return fmt.Sprintf("%.3f MHz", hz/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.3f kHz", hz/1e3)
	default:
		return fmt.Sprintf("%.1f Hz", hz)
	}
}

// FrequencyRange returns the lowest and highest of freqs.
func FrequencyRange(freqs ...float64) (low, high float64) {
	low = math.Inf(1)
	high = math.Inf(-1)

	for _, freq := range freqs {
		low = math.Min(low, freq)
		high = math.Max(high, freq)
	}

	return
}
