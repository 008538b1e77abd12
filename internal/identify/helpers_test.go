package identify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/user/meeting-voiceid/internal/audio"
	"github.com/user/meeting-voiceid/internal/voice"
)

const testRate = audio.CaptureSampleRate

// voiceBlocks slices a continuous sine into n capture blocks.
func voiceBlocks(freq float64, n int) [][]float32 {
	blocks := make([][]float32, n)
	for b := range blocks {
		block := make([]float32, audio.BlockSize)
		for i := range block {
			sample := b*audio.BlockSize + i
			block[i] = float32(0.3 * math.Sin(2*math.Pi*freq*float64(sample)/testRate))
		}
		blocks[b] = block
	}
	return blocks
}

func silentBlocks(n int) [][]float32 {
	blocks := make([][]float32, n)
	for i := range blocks {
		blocks[i] = make([]float32, audio.BlockSize)
	}
	return blocks
}

func concat(blocks [][]float32) []float32 {
	var out []float32
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

// enrollFrom commits the features of exactly the audio a match cycle will
// see, so that speaker scores 0.
func enrollFrom(t *testing.T, r *voice.Registry, id, name string, blocks [][]float32) {
	t.Helper()
	r.CreateProfile(id, name)
	_, err := r.Commit(id, voice.Extract(concat(blocks), testRate), nil, "wav")
	require.NoError(t, err)
}

// meeting has Alice speaking at 150 Hz and Bob at 250 Hz.
func meeting(t *testing.T) (*voice.Registry, [][]float32, [][]float32) {
	blocks := DefaultConfig().MinSpeechBlocks
	alice := voiceBlocks(150, blocks)
	bob := voiceBlocks(250, blocks)

	r := voice.NewRegistry()
	enrollFrom(t, r, "a", "Alice", alice)
	enrollFrom(t, r, "b", "Bob", bob)
	return r, alice, bob
}
