package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tone(freq float64, sampleRate, n int, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestFloatToInt16(t *testing.T) {
	got := FloatToInt16([]float32{-1, -0.5, 0, 0.5, 1, 2, -2})
	assert.Equal(t, []int16{-32768, -16384, 0, 16383, 32767, 32767, -32768}, got)
}

func TestInt16ToFloat(t *testing.T) {
	got := Int16ToFloat([]int16{-32768, 0, 16384})
	assert.Equal(t, []float32{-1, 0, 0.5}, got)
}

func TestInt16Bytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 258}
	assert.Equal(t, samples, bytesToInt16Slice(int16SliceToBytes(samples)))
	assert.Equal(t, []byte{0x02, 0x01}, int16SliceToBytes([]int16{258}))
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS(make([]float32, 16)))
	assert.InDelta(t, 0.25, RMS([]float32{0.25, -0.25}), 1e-9)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]float32{0, 0.1}))
	assert.False(t, Valid(nil))
	assert.False(t, Valid([]float32{0, float32(math.NaN())}))
	assert.False(t, Valid([]float32{float32(math.Inf(-1))}))
}

func TestPCMDuration(t *testing.T) {
	assert.Equal(t, "1.5s", PCM{Samples: make([]float32, 66150), SampleRate: 44100}.Duration().String())
	assert.Zero(t, PCM{Samples: make([]float32, 10)}.Duration())
}
