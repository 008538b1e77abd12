package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResamplePassthrough(t *testing.T) {
	pcm := PCM{Samples: tone(150, 44100, 4096, 0.5), SampleRate: 44100}

	out, err := Resample(pcm, 44100)
	require.NoError(t, err)
	assert.Equal(t, pcm, out)
}

func TestResampleOpusRateToCaptureRate(t *testing.T) {
	pcm := PCM{Samples: tone(150, OpusSampleRate, OpusSampleRate, 0.5), SampleRate: OpusSampleRate}

	out, err := Resample(pcm, CaptureSampleRate)
	require.NoError(t, err)
	assert.Equal(t, CaptureSampleRate, out.SampleRate)
	assert.InDelta(t, CaptureSampleRate, len(out.Samples), 2000, "length scales with the rate ratio")
	assert.InDelta(t, RMS(pcm.Samples), RMS(out.Samples), 0.05)
}

func TestNewResamplerRejectsBadRates(t *testing.T) {
	_, err := NewResampler(0, 44100)
	assert.Error(t, err)
}
