package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"layeh.com/gopus"
)

const (
	OpusSampleRate = 48000
	OpusFrameSize  = 960 // 20ms at 48kHz

	opusMaxPacket = 4000
	opusMagic     = "OPK1"
)

// OpusCodec stores recordings as a sequence of length-prefixed 20ms Opus
// packets. Opus has no 44.1kHz mode, so capture runs at 48kHz.
type OpusCodec struct{}

func (OpusCodec) Name() string { return "opus" }

func (OpusCodec) SampleRate(int) int { return OpusSampleRate }

func (OpusCodec) NewRecorder(sampleRate int) (Recorder, error) {
	if sampleRate != OpusSampleRate {
		return nil, fmt.Errorf("opus recorder needs %d Hz, got %d", OpusSampleRate, sampleRate)
	}
	encoder, err := gopus.NewEncoder(OpusSampleRate, Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	return &opusRecorder{encoder: encoder}, nil
}

type opusRecorder struct {
	encoder *gopus.Encoder
	pending []int16
	packets [][]byte
	mutex   sync.Mutex
}

func (r *opusRecorder) Write(block []float32) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.pending = append(r.pending, FloatToInt16(block)...)
	for len(r.pending) >= OpusFrameSize {
		if err := r.encodeFrame(r.pending[:OpusFrameSize]); err != nil {
			return err
		}
		r.pending = r.pending[OpusFrameSize:]
	}
	return nil
}

func (r *opusRecorder) encodeFrame(frame []int16) error {
	packet, err := r.encoder.Encode(frame, OpusFrameSize, opusMaxPacket)
	if err != nil {
		return fmt.Errorf("failed to encode opus: %w", err)
	}
	r.packets = append(r.packets, packet)
	return nil
}

func (r *opusRecorder) Bytes() ([]byte, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Pad the trailing partial frame with silence.
	if len(r.pending) > 0 {
		frame := make([]int16, OpusFrameSize)
		copy(frame, r.pending)
		if err := r.encodeFrame(frame); err != nil {
			return nil, err
		}
		r.pending = nil
	}

	size := len(opusMagic)
	for _, p := range r.packets {
		size += 2 + len(p)
	}
	out := make([]byte, 0, size)
	out = append(out, opusMagic...)
	for _, p := range r.packets {
		out = binary.LittleEndian.AppendUint16(out, uint16(len(p)))
		out = append(out, p...)
	}
	return out, nil
}

func (OpusCodec) Decode(data []byte) (PCM, error) {
	if len(data) < len(opusMagic) || string(data[:len(opusMagic)]) != opusMagic {
		return PCM{}, fmt.Errorf("not an opus packet stream")
	}

	decoder, err := NewOpusDecoder()
	if err != nil {
		return PCM{}, err
	}

	var samples []float32
	pos := len(opusMagic)
	for pos < len(data) {
		if pos+2 > len(data) {
			return PCM{}, fmt.Errorf("truncated packet header at %d", pos)
		}
		n := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2
		if pos+n > len(data) {
			return PCM{}, fmt.Errorf("truncated packet at %d", pos)
		}
		pcm, err := decoder.Decode(data[pos : pos+n])
		if err != nil {
			return PCM{}, err
		}
		samples = append(samples, Int16ToFloat(pcm)...)
		pos += n
	}

	return PCM{Samples: samples, SampleRate: OpusSampleRate}, nil
}

// OpusDecoder decodes single 20ms Opus packets to 48kHz mono PCM.
type OpusDecoder struct {
	decoder *gopus.Decoder
}

func NewOpusDecoder() (*OpusDecoder, error) {
	decoder, err := gopus.NewDecoder(OpusSampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: decoder,
	}, nil
}

func (d *OpusDecoder) Decode(opus []byte) ([]int16, error) {
	// Comfort noise frames decode to silence
	if len(opus) == 3 && opus[0] == 0xF8 && opus[1] == 0xFF && opus[2] == 0xFE {
		return make([]int16, OpusFrameSize), nil
	}

	pcm, err := d.decoder.Decode(opus, OpusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("failed to decode opus: %w", err)
	}

	return pcm, nil
}
