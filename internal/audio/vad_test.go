package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRMSGate(t *testing.T) {
	gate := NewRMSGate(0)
	assert.Equal(t, DefaultSilenceThreshold, gate.Threshold)

	assert.False(t, gate.IsSpeech(make([]float32, BlockSize), CaptureSampleRate))
	assert.False(t, gate.IsSpeech(tone(150, CaptureSampleRate, BlockSize, 0.005), CaptureSampleRate))
	assert.True(t, gate.IsSpeech(tone(150, CaptureSampleRate, BlockSize, 0.5), CaptureSampleRate))
	assert.NoError(t, gate.Close())
}

func TestWebRTCVADRejectsSilence(t *testing.T) {
	vad, err := NewWebRTCVAD(DefaultSilenceThreshold)
	require.NoError(t, err)
	defer vad.Close()

	for _, rate := range []int{16000, 44100, 48000} {
		assert.False(t, vad.IsSpeech(make([]float32, 4096), rate), "rate %d", rate)
	}
}

func TestWebRTCVADFallsBackForUnsupportedRates(t *testing.T) {
	vad, err := NewWebRTCVAD(DefaultSilenceThreshold)
	require.NoError(t, err)
	defer vad.Close()

	// WebRTC has no 44.1kHz mode; loud blocks pass on energy alone.
	assert.True(t, vad.IsSpeech(tone(150, 44100, 4096, 0.5), 44100))
}

func TestWebRTCVADAfterClose(t *testing.T) {
	vad, err := NewWebRTCVAD(DefaultSilenceThreshold)
	require.NoError(t, err)
	require.NoError(t, vad.Close())

	assert.True(t, vad.IsSpeech(tone(150, 16000, 1600, 0.5), 16000))
	assert.False(t, vad.IsSpeech(make([]float32, 1600), 16000))
}
