package tts

const (
	// DefaultRate is the speaking rate used until the reader picks another.
	DefaultRate = 0.9
	// MinRate is the slowest accepted speaking rate.
	MinRate = 0.1
	// MaxRate is the fastest accepted speaking rate.
	MaxRate = 2.0
)

// RateSteps are the speeds offered by the player controls.
var RateSteps = []float64{0.5, 0.75, 0.9, 1.0, 1.25, 1.5, 2.0}

// ClampRate bounds rate to [MinRate, MaxRate].
func ClampRate(rate float64) float64 {
	switch {
	case rate < MinRate:
		return MinRate
	case rate > MaxRate:
		return MaxRate
	default:
		return rate
	}
}

// NextRate returns the first step faster than rate, or the fastest step.
func NextRate(rate float64) float64 {
	for _, step := range RateSteps {
		if step > rate+1e-9 {
			return step
		}
	}
	return RateSteps[len(RateSteps)-1]
}

// PrevRate returns the first step slower than rate, or the slowest step.
func PrevRate(rate float64) float64 {
	for i := len(RateSteps) - 1; i >= 0; i-- {
		if RateSteps[i] < rate-1e-9 {
			return RateSteps[i]
		}
	}
	return RateSteps[0]
}
