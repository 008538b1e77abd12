// Package local captures the default local input device through miniaudio.
package local

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
	"github.com/user/meeting-voiceid/internal/audio"
)

// Microphone opens a fresh device per stream.
type Microphone struct{}

func NewMicrophone() *Microphone {
	return &Microphone{}
}

func (m *Microphone) Open(ctx context.Context, cfg audio.StreamConfig) (audio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CaptureSampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = audio.BlockSize
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("component", "miniaudio").Msg(message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	s := &stream{
		ctx:        mctx,
		reframer:   audio.NewReframer(cfg.BlockSize, 32),
		sampleRate: cfg.SampleRate,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = audio.Channels
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockSize)

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
	})
	if err != nil {
		s.freeContext()
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		s.freeContext()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	log.Info().
		Int("sample_rate", cfg.SampleRate).
		Int("block_size", cfg.BlockSize).
		Msg("Microphone capture started")

	return s, nil
}

type stream struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	reframer   *audio.Reframer
	sampleRate int

	release sync.Once
}

// onData runs on the miniaudio thread and must not block.
func (s *stream) onData(_, input []byte, frames uint32) {
	n := int(frames) * audio.Channels
	if n*4 > len(input) {
		n = len(input) / 4
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}
	s.reframer.Push(samples)
}

func (s *stream) freeContext() {
	if err := s.ctx.Uninit(); err != nil {
		log.Warn().Err(err).Msg("Failed to uninit audio context")
	}
	s.ctx.Free()
}

func (s *stream) Blocks() <-chan []float32 {
	return s.reframer.Blocks()
}

func (s *stream) SampleRate() int {
	return s.sampleRate
}

func (s *stream) Close() error {
	var err error
	s.release.Do(func() {
		if stopErr := s.device.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop capture device: %w", stopErr)
		}
		s.device.Uninit()
		s.freeContext()
		s.reframer.Stop()
		log.Info().Int("dropped_blocks", s.reframer.Dropped()).Msg("Microphone capture stopped")
	})
	return err
}
