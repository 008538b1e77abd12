// Package mock provides an in-memory Microphone for tests. Blocks are pushed
// by the test and delivered through the opened stream.
package mock

import (
	"context"
	"sync"

	"github.com/user/meeting-voiceid/internal/audio"
)

// Microphone records every Open call. When OpenErr is set, Open fails
// without creating a stream.
type Microphone struct {
	OpenErr error

	mu      sync.Mutex
	opens   int
	configs []audio.StreamConfig
	streams []*Stream
}

func (m *Microphone) Open(_ context.Context, cfg audio.StreamConfig) (audio.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opens++
	m.configs = append(m.configs, cfg)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	s := NewStream(cfg.SampleRate)
	m.streams = append(m.streams, s)
	return s, nil
}

// Opens returns the number of Open calls, successful or not.
func (m *Microphone) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

func (m *Microphone) Configs() []audio.StreamConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audio.StreamConfig(nil), m.configs...)
}

// Streams returns every stream handed out so far.
func (m *Microphone) Streams() []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Stream(nil), m.streams...)
}

// Last returns the most recently opened stream, or nil.
func (m *Microphone) Last() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// Stream is a buffered fake capture stream.
type Stream struct {
	rate   int
	blocks chan []float32

	mu     sync.Mutex
	closed bool
	closes int
}

func NewStream(sampleRate int) *Stream {
	return &Stream{
		rate:   sampleRate,
		blocks: make(chan []float32, 1024),
	}
}

// Push delivers a block unless the stream is closed.
func (s *Stream) Push(block []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.blocks <- block
	return true
}

// PushAll delivers blocks in order.
func (s *Stream) PushAll(blocks [][]float32) {
	for _, b := range blocks {
		s.Push(b)
	}
}

// End closes the block channel as if the device went away. It does not
// count as a Close call.
func (s *Stream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.blocks)
	}
}

func (s *Stream) Blocks() <-chan []float32 { return s.blocks }

func (s *Stream) SampleRate() int { return s.rate }

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if !s.closed {
		s.closed = true
		close(s.blocks)
	}
	return nil
}

// Closed reports whether the block channel has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Closes counts Close calls, including repeated ones.
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
