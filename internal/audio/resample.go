package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts a mono stream between sample rates. It keeps filter
// state between calls, so one instance serves one continuous stream.
type Resampler struct {
	from, to  int
	resampler resampling.Resampler
}

func NewResampler(from, to int) (*Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid resample %d Hz -> %d Hz", from, to)
	}
	r := &Resampler{from: from, to: to}
	if from == to {
		return r, nil
	}

	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	r.resampler = resampler
	return r, nil
}

// Process returns the resampled counterpart of samples. Output may lag the
// input by the filter delay.
func (r *Resampler) Process(samples []float32) ([]float32, error) {
	if r.resampler == nil {
		return samples, nil
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}
	output, err := r.resampler.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}

// Resample converts a whole clip to sampleRate.
func Resample(pcm PCM, sampleRate int) (PCM, error) {
	if pcm.SampleRate == sampleRate || len(pcm.Samples) == 0 {
		return pcm, nil
	}
	r, err := NewResampler(pcm.SampleRate, sampleRate)
	if err != nil {
		return PCM{}, err
	}
	samples, err := r.Process(pcm.Samples)
	if err != nil {
		return PCM{}, err
	}
	return PCM{Samples: samples, SampleRate: sampleRate}, nil
}
