package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

const wavHeaderSize = 44

// WAVCodec stores recordings as 16-bit PCM RIFF/WAVE.
type WAVCodec struct{}

func (WAVCodec) Name() string { return "wav" }

func (WAVCodec) SampleRate(requested int) int {
	if requested <= 0 {
		return CaptureSampleRate
	}
	return requested
}

func (WAVCodec) NewRecorder(sampleRate int) (Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	return &wavRecorder{sampleRate: sampleRate}, nil
}

type wavRecorder struct {
	sampleRate int
	chunks     [][]byte
	size       int
	mutex      sync.Mutex
}

func (r *wavRecorder) Write(block []float32) error {
	chunk := int16SliceToBytes(FloatToInt16(block))

	r.mutex.Lock()
	r.chunks = append(r.chunks, chunk)
	r.size += len(chunk)
	r.mutex.Unlock()
	return nil
}

func (r *wavRecorder) Bytes() ([]byte, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+r.size))
	writeWAVHeader(buf, r.sampleRate, r.size)
	for _, chunk := range r.chunks {
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}

// EncodeWAV writes mono float samples as a 16-bit WAV file.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	data := int16SliceToBytes(FloatToInt16(samples))
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(data)))
	writeWAVHeader(buf, sampleRate, len(data))
	buf.Write(data)
	return buf.Bytes()
}

func writeWAVHeader(buf *bytes.Buffer, sampleRate, dataSize int) {
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(Channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*Channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(Channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
}

// Decode parses 16-bit PCM WAV, downmixing multi-channel audio to mono.
func (WAVCodec) Decode(data []byte) (PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCM{}, fmt.Errorf("not a RIFF/WAVE container")
	}

	var (
		channels   int
		sampleRate int
		haveFormat bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// Streaming writers leave the data size unset; take what is there.
			if id == "data" {
				size = len(data) - body
			} else {
				return PCM{}, fmt.Errorf("truncated %q chunk", id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return PCM{}, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || bits != 16 {
				return PCM{}, fmt.Errorf("unsupported wav format %d/%d-bit", format, bits)
			}
			if channels < 1 || sampleRate <= 0 {
				return PCM{}, fmt.Errorf("invalid wav format: %d channels at %d Hz", channels, sampleRate)
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return PCM{}, fmt.Errorf("data chunk before fmt chunk")
			}
			return PCM{
				Samples:    downmix(bytesToInt16Slice(data[body:body+size]), channels),
				SampleRate: sampleRate,
			}, nil
		}

		pos = body + size + size%2
	}

	return PCM{}, fmt.Errorf("no data chunk")
}

func downmix(interleaved []int16, channels int) []float32 {
	if channels == 1 {
		return Int16ToFloat(interleaved)
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(interleaved[i*channels+c]) / 0x8000
		}
		out[i] = sum / float32(channels)
	}
	return out
}
