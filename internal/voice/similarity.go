package voice

import "math"

// DefaultMatchThreshold is the distance below which a candidate counts as a
// match at all.
const DefaultMatchThreshold = 0.5

// Floors keep the relative difference defined for flat or silent signals.
const (
	pitchFloor    = 1.0
	varianceFloor = 1.0
	energyFloor   = 0.001
	zcrFloor      = 0.001
	centroidFloor = 1.0
)

// Weights sets how much each feature contributes to the distance.
type Weights struct {
	Pitch            float64
	PitchVariance    float64
	Energy           float64
	ZeroCrossingRate float64
	SpectralCentroid float64
}

// DefaultWeights favours pitch, which separates speakers best.
func DefaultWeights() Weights {
	return Weights{
		Pitch:            0.35,
		PitchVariance:    0.20,
		Energy:           0.15,
		ZeroCrossingRate: 0.15,
		SpectralCentroid: 0.15,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Pitch + w.PitchVariance + w.Energy + w.ZeroCrossingRate + w.SpectralCentroid
}

// Score returns the weighted distance between two feature vectors. Lower is
// more similar; identical vectors score 0.
func (w Weights) Score(a, b Features) float64 {
	return relativeDiff(a.AvgPitch, b.AvgPitch, pitchFloor)*w.Pitch +
		relativeDiff(a.PitchVariance, b.PitchVariance, varianceFloor)*w.PitchVariance +
		relativeDiff(a.AvgEnergy, b.AvgEnergy, energyFloor)*w.Energy +
		relativeDiff(a.ZeroCrossingRate, b.ZeroCrossingRate, zcrFloor)*w.ZeroCrossingRate +
		relativeDiff(a.SpectralCentroid, b.SpectralCentroid, centroidFloor)*w.SpectralCentroid
}

// Score uses DefaultWeights.
func Score(a, b Features) float64 {
	return DefaultWeights().Score(a, b)
}

func relativeDiff(a, b, floor float64) float64 {
	return math.Abs(a-b) / math.Max(math.Max(a, b), floor)
}

// Matcher picks the closest enrolled profile for a feature vector.
type Matcher struct {
	Weights   Weights
	Threshold float64
}

// DefaultMatcher uses DefaultWeights and DefaultMatchThreshold.
func DefaultMatcher() Matcher {
	return Matcher{Weights: DefaultWeights(), Threshold: DefaultMatchThreshold}
}

// Best returns the minimum-distance enrolled profile and its distance. ok is
// false when there is no enrolled candidate or the best distance is not below
// the threshold.
func (m Matcher) Best(f Features, profiles []Profile) (best Profile, distance float64, ok bool) {
	distance = math.Inf(1)
	found := false
	for _, p := range profiles {
		if !p.Enrolled || p.Features == nil {
			continue
		}
		score := m.Weights.Score(f, *p.Features)
		if score < distance {
			distance = score
			best = p
			found = true
		}
	}
	if !found {
		return Profile{}, distance, false
	}
	return best, distance, distance < m.Threshold
}
