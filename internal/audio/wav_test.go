package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVRecorderRoundTrip(t *testing.T) {
	codec := WAVCodec{}
	assert.Equal(t, "wav", codec.Name())
	assert.Equal(t, 16000, codec.SampleRate(16000))
	assert.Equal(t, CaptureSampleRate, codec.SampleRate(0))

	rec, err := codec.NewRecorder(16000)
	require.NoError(t, err)

	samples := tone(150, 16000, 16000, 0.5)
	for start := 0; start < len(samples); start += 4096 {
		end := start + 4096
		if end > len(samples) {
			end = len(samples)
		}
		require.NoError(t, rec.Write(samples[start:end]))
	}

	data, err := rec.Bytes()
	require.NoError(t, err)
	assert.Len(t, data, 44+2*len(samples))

	pcm, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 16000, pcm.SampleRate)
	require.Len(t, pcm.Samples, len(samples))
	for i := range samples {
		require.InDelta(t, samples[i], pcm.Samples[i], 1.0/16384)
	}
}

func TestWAVDecodeRejectsGarbage(t *testing.T) {
	codec := WAVCodec{}

	_, err := codec.Decode(nil)
	assert.Error(t, err)

	_, err = codec.Decode([]byte("definitely not a wav file"))
	assert.Error(t, err)

	header := EncodeWAV(nil, 16000)[:36] // RIFF + fmt, no data chunk
	_, err = codec.Decode(header)
	assert.Error(t, err)
}

func TestWAVDecodeUnsizedDataChunk(t *testing.T) {
	data := EncodeWAV([]float32{0.5, -0.5, 0.25}, 8000)
	// Streaming writers leave 0xFFFFFFFF in the data size.
	binary.LittleEndian.PutUint32(data[40:44], 0xFFFFFFFF)

	pcm, err := WAVCodec{}.Decode(data)
	require.NoError(t, err)
	assert.Len(t, pcm.Samples, 3)
}

func TestWAVDecodeDownmixesStereo(t *testing.T) {
	var buf bytes.Buffer
	frames := []int16{16384, 0, -16384, -16384}

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(frames)*2))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint32(22050))
	binary.Write(&buf, binary.LittleEndian, uint32(22050*4))
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(frames)*2))
	binary.Write(&buf, binary.LittleEndian, frames)

	pcm, err := WAVCodec{}.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 22050, pcm.SampleRate)
	assert.Equal(t, []float32{0.25, -0.5}, pcm.Samples)
}
