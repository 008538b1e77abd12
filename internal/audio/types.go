package audio

import (
	"context"
	"time"
)

const (
	// CaptureSampleRate is the rate requested from local microphones.
	CaptureSampleRate = 44100
	// BlockSize is the number of samples per block delivered to the sessions.
	BlockSize = 4096
	Channels  = 1 // Mono
)

// StreamConfig describes the capture stream a session asks for.
type StreamConfig struct {
	SampleRate int
	Channels   int
	BlockSize  int
}

// Stream is an open capture stream delivering fixed-size mono float blocks
// in arrival order.
type Stream interface {
	// Blocks is closed after Close once buffered blocks have been delivered,
	// or when the device goes away.
	Blocks() <-chan []float32
	// SampleRate is the rate the device actually delivers.
	SampleRate() int
	// Close releases the device. Safe to call more than once.
	Close() error
}

// Microphone opens capture streams. Open may block on device permission.
type Microphone interface {
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// PCM is decoded mono audio.
type PCM struct {
	Samples    []float32
	SampleRate int
}

func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Recorder accumulates captured blocks as encoded chunks.
type Recorder interface {
	Write(block []float32) error
	// Bytes finalizes the recording into a single container.
	Bytes() ([]byte, error)
}

// Codec turns captured audio into retained bytes and back into PCM.
type Codec interface {
	Name() string
	// SampleRate returns the capture rate the codec can carry for a
	// requested rate.
	SampleRate(requested int) int
	NewRecorder(sampleRate int) (Recorder, error)
	Decode(data []byte) (PCM, error)
}

// VAD decides whether a block contains speech.
type VAD interface {
	IsSpeech(block []float32, sampleRate int) bool
	Close() error
}
