package voice

import (
	"math"
	"sync"
)

const (
	// MinPitchHz and MaxPitchHz bound the autocorrelation search to the
	// human voice band.
	MinPitchHz = 50
	MaxPitchHz = 400

	// CentroidWindow is the fixed DFT size used for the spectral centroid.
	CentroidWindow = 2048

	pitchWindowSeconds = 0.1
)

// Features is the numeric fingerprint of a voice sample.
type Features struct {
	AvgPitch              float64 `json:"avgPitch"`
	PitchVariance         float64 `json:"pitchVariance"`
	AvgEnergy             float64 `json:"avgEnergy"`
	ZeroCrossingRate      float64 `json:"zeroCrossingRate"`
	SpectralCentroid      float64 `json:"spectralCentroid"`
	SampleDurationSeconds float64 `json:"sampleDuration"`
}

// Extract computes the full feature vector for mono PCM samples in [-1, 1].
func Extract(samples []float32, sampleRate int) Features {
	f := Features{
		AvgPitch:         EstimatePitch(samples, sampleRate),
		PitchVariance:    PitchVariance(samples, sampleRate),
		AvgEnergy:        AverageEnergy(samples),
		ZeroCrossingRate: ZeroCrossingRate(samples),
		SpectralCentroid: SpectralCentroid(samples, sampleRate),
	}
	if sampleRate > 0 {
		f.SampleDurationSeconds = float64(len(samples)) / float64(sampleRate)
	}
	return f
}

// EstimatePitch returns the fundamental frequency picked by unnormalized
// autocorrelation over periods in the 50-400 Hz band, or 0 when no period
// has a positive correlation.
func EstimatePitch(samples []float32, sampleRate int) float64 {
	if sampleRate <= 0 || len(samples) == 0 {
		return 0
	}

	minPeriod := sampleRate / MaxPitchHz
	maxPeriod := sampleRate / MinPitchHz
	if minPeriod < 1 {
		minPeriod = 1
	}

	var bestCorrelation float64
	bestPeriod := 0
	for period := minPeriod; period <= maxPeriod; period++ {
		var correlation float64
		for i := 0; i < len(samples)-period; i++ {
			correlation += float64(samples[i]) * float64(samples[i+period])
		}
		if correlation > bestCorrelation {
			bestCorrelation = correlation
			bestPeriod = period
		}
	}

	if bestPeriod == 0 {
		return 0
	}
	return float64(sampleRate) / float64(bestPeriod)
}

// PitchVariance is the population standard deviation of per-window pitch
// estimates over contiguous 100 ms windows. Windows without a pitch are
// ignored.
func PitchVariance(samples []float32, sampleRate int) float64 {
	windowSize := int(float64(sampleRate) * pitchWindowSeconds)
	if windowSize <= 0 {
		return 0
	}

	var pitches []float64
	for start := 0; start+windowSize <= len(samples); start += windowSize {
		if pitch := EstimatePitch(samples[start:start+windowSize], sampleRate); pitch > 0 {
			pitches = append(pitches, pitch)
		}
	}
	if len(pitches) == 0 {
		return 0
	}

	var mean float64
	for _, p := range pitches {
		mean += p
	}
	mean /= float64(len(pitches))

	var variance float64
	for _, p := range pitches {
		variance += (p - mean) * (p - mean)
	}
	return math.Sqrt(variance / float64(len(pitches)))
}

// AverageEnergy is the RMS amplitude of the buffer.
func AverageEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZeroCrossingRate counts sign changes between adjacent samples, with zero
// treated as non-negative, normalized by the buffer length.
func ZeroCrossingRate(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i] >= 0) != (samples[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

var (
	twiddleOnce sync.Once
	twiddleCos  []float64
	twiddleSin  []float64
)

// twiddles precomputes cos/sin of 2*pi*i/CentroidWindow. Every angle used by
// the direct DFT is (k*n) mod CentroidWindow of this table.
func twiddles() ([]float64, []float64) {
	twiddleOnce.Do(func() {
		twiddleCos = make([]float64, CentroidWindow)
		twiddleSin = make([]float64, CentroidWindow)
		for i := 0; i < CentroidWindow; i++ {
			angle := 2 * math.Pi * float64(i) / CentroidWindow
			twiddleCos[i] = math.Cos(angle)
			twiddleSin[i] = math.Sin(angle)
		}
	})
	return twiddleCos, twiddleSin
}

// SpectralCentroid is the magnitude-weighted mean frequency of a direct DFT
// over the first CentroidWindow samples. Shorter buffers contribute only the
// samples they have.
func SpectralCentroid(samples []float32, sampleRate int) float64 {
	if sampleRate <= 0 || len(samples) == 0 {
		return 0
	}

	n := len(samples)
	if n > CentroidWindow {
		n = CentroidWindow
	}
	cosTable, sinTable := twiddles()

	var weightedSum, sum float64
	for k := 0; k < CentroidWindow/2; k++ {
		var re, im float64
		for i := 0; i < n; i++ {
			idx := (k * i) % CentroidWindow
			re += float64(samples[i]) * cosTable[idx]
			im += float64(samples[i]) * sinTable[idx]
		}
		magnitude := math.Sqrt(re*re + im*im)
		frequency := float64(k) * float64(sampleRate) / CentroidWindow
		weightedSum += frequency * magnitude
		sum += magnitude
	}

	if sum <= 0 {
		return 0
	}
	return weightedSum / sum
}
