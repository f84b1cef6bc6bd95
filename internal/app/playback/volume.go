package playback

import (
	"fmt"
	"math"
)

const (
	// MaxVolume is the top of the display scale.
	MaxVolume = 100
	// UnityVolume is the display value that maps to a multiplier of 1.0.
	UnityVolume = 50
)

// ClampVolume clamps percent into [0, MaxVolume].
func ClampVolume(percent int) int {
	return max(0, min(percent, MaxVolume))
}

// VolumeToMultiplier maps a display percentage to the transport gain in [0, 2].
func VolumeToMultiplier(percent int) float64 {
	return float64(ClampVolume(percent)) / UnityVolume
}

// MultiplierToVolume is the inverse of VolumeToMultiplier.
func MultiplierToVolume(multiplier float64) int {
	return ClampVolume(int(math.Round(multiplier * UnityVolume)))
}

// FormatVolume renders a multiplier as a display percentage, e.g. "50%".
func FormatVolume(multiplier float64) string {
	return fmt.Sprintf("%d%%", MultiplierToVolume(multiplier))
}
