package audio

import (
	"github.com/maxhawkins/go-webrtcvad"
)

// DefaultSilenceThreshold is the RMS level at or above which a block counts
// as speech.
const DefaultSilenceThreshold = 0.01

// RMSGate classifies blocks by RMS energy alone.
type RMSGate struct {
	Threshold float64
}

func NewRMSGate(threshold float64) *RMSGate {
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	return &RMSGate{Threshold: threshold}
}

func (g *RMSGate) IsSpeech(block []float32, _ int) bool {
	return RMS(block) >= g.Threshold
}

func (g *RMSGate) Close() error { return nil }

// webrtcRates are the rates the WebRTC detector accepts, with 10ms frames.
var webrtcRates = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}

// WebRTCVAD runs the WebRTC detector over 10ms frames of a block and
// falls back to the RMS gate for rates WebRTC does not support (44.1kHz).
type WebRTCVAD struct {
	vad      *webrtcvad.VAD
	fallback *RMSGate
}

func NewWebRTCVAD(rmsThreshold float64) (*WebRTCVAD, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}

	// Set aggressiveness (0-3, where 3 is most aggressive)
	if err := vad.SetMode(2); err != nil {
		return nil, err
	}

	return &WebRTCVAD{
		vad:      vad,
		fallback: NewRMSGate(rmsThreshold),
	}, nil
}

// IsSpeech reports speech when at least half of the block's 10ms frames are
// voiced. Quiet blocks are rejected by the RMS gate before WebRTC runs.
func (v *WebRTCVAD) IsSpeech(block []float32, sampleRate int) bool {
	if !v.fallback.IsSpeech(block, sampleRate) {
		return false
	}
	if v.vad == nil {
		return true
	}

	if !webrtcRates[sampleRate] {
		return true
	}
	frameLen := sampleRate / 100

	pcm := FloatToInt16(block)
	frames, voiced := 0, 0
	for start := 0; start+frameLen <= len(pcm); start += frameLen {
		isSpeech, err := v.vad.Process(sampleRate, int16SliceToBytes(pcm[start:start+frameLen]))
		if err != nil {
			return true
		}
		frames++
		if isSpeech {
			voiced++
		}
	}
	if frames == 0 {
		return true
	}
	return voiced*2 >= frames
}

func (v *WebRTCVAD) Close() error {
	v.vad = nil
	return nil
}
