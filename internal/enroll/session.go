// Package enroll records a short voice sample for one profile and commits
// its feature vector to the registry.
//
// At most one recording is active per Session. A recording is committed only
// by a successful Stop; Cancel and every failure path leave the profile as it
// was.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/user/meeting-voiceid/internal/audio"
	"github.com/user/meeting-voiceid/internal/voice"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives elapsed recording time in seconds.
type ProgressFunc func(seconds float64)

type Config struct {
	SampleRate       int
	BlockSize        int
	ProgressInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:       audio.CaptureSampleRate,
		BlockSize:        audio.BlockSize,
		ProgressInterval: 100 * time.Millisecond,
	}
}

type Session struct {
	registry *voice.Registry
	mic      audio.Microphone
	codec    audio.Codec
	config   Config

	active *recording
	mutex  sync.Mutex
}

type recording struct {
	id        string
	profileID string
	stream    audio.Stream
	recorder  audio.Recorder

	cancel  context.CancelFunc
	drained chan struct{}
	err     error

	release  sync.Once
	stopping bool
	canceled bool

	progressMu sync.Mutex
	progress   float64
}

func New(registry *voice.Registry, mic audio.Microphone, codec audio.Codec, cfg Config) *Session {
	defaults := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaults.SampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaults.BlockSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaults.ProgressInterval
	}
	if codec == nil {
		codec = audio.WAVCodec{}
	}
	return &Session{
		registry: registry,
		mic:      mic,
		codec:    codec,
		config:   cfg,
	}
}

// Start opens the microphone and begins recording for profileID. The caller
// decides when to Stop; there is no duration cap.
func (s *Session) Start(ctx context.Context, profileID string, onProgress ProgressFunc) error {
	s.mutex.Lock()
	if s.active != nil {
		s.mutex.Unlock()
		return voice.ErrAlreadyRecording
	}
	profile, ok := s.registry.Get(profileID)
	if !ok {
		s.mutex.Unlock()
		return fmt.Errorf("%w: %s", voice.ErrProfileNotFound, profileID)
	}

	recCtx, cancel := context.WithCancel(context.Background())
	rec := &recording{
		id:        uuid.NewString(),
		profileID: profileID,
		cancel:    cancel,
	}
	// Reserve the slot while the device is being acquired.
	s.active = rec
	s.mutex.Unlock()

	sampleRate := s.codec.SampleRate(s.config.SampleRate)
	stream, err := s.mic.Open(ctx, audio.StreamConfig{
		SampleRate: sampleRate,
		Channels:   audio.Channels,
		BlockSize:  s.config.BlockSize,
	})
	if err != nil {
		s.abandon(rec)
		log.Warn().Err(err).Str("profile_id", profileID).Msg("Failed to open microphone for enrollment")
		return fmt.Errorf("%w: %w", voice.ErrMicrophoneUnavailable, err)
	}
	recorder, err := s.codec.NewRecorder(stream.SampleRate())
	if err != nil {
		stream.Close()
		s.abandon(rec)
		return fmt.Errorf("failed to create %s recorder: %w", s.codec.Name(), err)
	}

	s.mutex.Lock()
	if s.active != rec || rec.canceled {
		s.mutex.Unlock()
		stream.Close()
		cancel()
		return fmt.Errorf("enrollment canceled while opening microphone: %w", context.Canceled)
	}
	rec.stream = stream
	rec.recorder = recorder
	rec.drained = make(chan struct{})
	s.mutex.Unlock()

	group, groupCtx := errgroup.WithContext(recCtx)
	group.Go(rec.collect)
	group.Go(func() error { return rec.tick(groupCtx, s.config.ProgressInterval, onProgress) })
	go func() {
		if err := group.Wait(); err != nil {
			log.Warn().Err(err).Str("recording_id", rec.id).Msg("Enrollment recording ended with error")
		}
		log.Debug().Str("recording_id", rec.id).Msg("Enrollment goroutines stopped")
	}()

	log.Info().
		Str("recording_id", rec.id).
		Str("profile_id", profileID).
		Str("name", profile.Name).
		Str("codec", s.codec.Name()).
		Int("sample_rate", stream.SampleRate()).
		Msg("Started voice enrollment")

	return nil
}

// abandon clears a reservation that never became a running recording.
func (s *Session) abandon(rec *recording) {
	rec.cancel()
	s.mutex.Lock()
	if s.active == rec {
		s.active = nil
	}
	s.mutex.Unlock()
}

// collect drains the stream into the recorder until the stream is closed.
// A recorder failure ends the recording early; Stop reports it.
func (r *recording) collect() error {
	defer close(r.drained)
	for block := range r.stream.Blocks() {
		if r.err != nil {
			continue
		}
		if err := r.recorder.Write(block); err != nil {
			log.Warn().Err(err).Str("recording_id", r.id).Msg("Failed to record block")
			r.err = err
		}
	}
	return r.err
}

func (r *recording) tick(ctx context.Context, interval time.Duration, onProgress ProgressFunc) error {
	report := func(ticks int) {
		seconds := float64(ticks) * interval.Seconds()
		r.progressMu.Lock()
		r.progress = seconds
		r.progressMu.Unlock()
		if onProgress != nil {
			onProgress(seconds)
		}
	}

	report(0)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ticker.C:
			ticks++
			report(ticks)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *recording) closeStream() {
	r.release.Do(func() {
		if r.stream == nil {
			return
		}
		if err := r.stream.Close(); err != nil {
			log.Warn().Err(err).Str("recording_id", r.id).Msg("Failed to close capture stream")
		}
	})
}

// shutdown releases the stream, waits for the collector to drain it and
// stops the progress ticker. It never waits on the ticker, so it is safe to
// reach from inside a progress callback.
func (r *recording) shutdown() {
	r.closeStream()
	if r.drained != nil {
		<-r.drained
	}
	r.cancel()
}

// Stop ends the recording, decodes it, extracts features and commits them to
// the profile. The returned profile is the committed state.
func (s *Session) Stop(ctx context.Context, profileID string) (voice.Profile, error) {
	s.mutex.Lock()
	rec := s.active
	if rec == nil || rec.stopping || rec.recorder == nil {
		s.mutex.Unlock()
		return voice.Profile{}, voice.ErrNotRecording
	}
	if rec.profileID != profileID {
		s.mutex.Unlock()
		return voice.Profile{}, fmt.Errorf("%w: recording %s, got %s", voice.ErrProfileMismatch, rec.profileID, profileID)
	}
	rec.stopping = true
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		if s.active == rec {
			s.active = nil
		}
		s.mutex.Unlock()
	}()

	rec.shutdown()
	if rec.err != nil {
		return voice.Profile{}, fmt.Errorf("%w: %w", voice.ErrDecodeFailure, rec.err)
	}

	data, err := rec.recorder.Bytes()
	if err != nil {
		return voice.Profile{}, fmt.Errorf("%w: %w", voice.ErrDecodeFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return voice.Profile{}, err
	}

	pcm, err := s.codec.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("recording_id", rec.id).Str("codec", s.codec.Name()).Msg("Failed to decode enrollment recording")
		return voice.Profile{}, fmt.Errorf("%w: %w", voice.ErrDecodeFailure, err)
	}
	if len(pcm.Samples) == 0 || pcm.SampleRate <= 0 {
		return voice.Profile{}, fmt.Errorf("%w: no audio captured", voice.ErrDecodeFailure)
	}
	// Live audio is analysed at the capture rate; fingerprints must match it.
	pcm, err = audio.Resample(pcm, s.config.SampleRate)
	if err != nil {
		return voice.Profile{}, fmt.Errorf("%w: %w", voice.ErrDecodeFailure, err)
	}

	features := voice.Extract(pcm.Samples, pcm.SampleRate)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if rec.canceled {
		return voice.Profile{}, fmt.Errorf("enrollment canceled: %w", context.Canceled)
	}
	profile, err := s.registry.Commit(profileID, features, data, s.codec.Name())
	if err != nil {
		return voice.Profile{}, err
	}

	log.Info().
		Str("recording_id", rec.id).
		Str("profile_id", profileID).
		Dur("duration", pcm.Duration()).
		Float64("avg_pitch", features.AvgPitch).
		Float64("pitch_variance", features.PitchVariance).
		Float64("avg_energy", features.AvgEnergy).
		Float64("zcr", features.ZeroCrossingRate).
		Float64("spectral_centroid", features.SpectralCentroid).
		Msg("Voice enrollment completed")

	return profile, nil
}

// Cancel drops the active recording, if any, without touching the profile.
func (s *Session) Cancel() {
	s.mutex.Lock()
	rec := s.active
	if rec == nil {
		s.mutex.Unlock()
		return
	}
	rec.canceled = true
	s.active = nil
	s.mutex.Unlock()

	rec.closeStream()
	rec.cancel()
	rec.progressMu.Lock()
	rec.progress = 0
	rec.progressMu.Unlock()

	log.Info().Str("recording_id", rec.id).Str("profile_id", rec.profileID).Msg("Voice enrollment canceled")
}

func (s *Session) IsActive() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.active != nil
}

// ProfileID returns the profile being recorded, or "".
func (s *Session) ProfileID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.profileID
}

// Progress returns the last reported elapsed seconds, 0 when idle.
func (s *Session) Progress() float64 {
	s.mutex.Lock()
	rec := s.active
	s.mutex.Unlock()
	if rec == nil {
		return 0
	}
	rec.progressMu.Lock()
	defer rec.progressMu.Unlock()
	return rec.progress
}

// IsUnavailable reports whether err came from acquiring the microphone.
func IsUnavailable(err error) bool {
	return errors.Is(err, voice.ErrMicrophoneUnavailable)
}
