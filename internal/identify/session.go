// Package identify matches live microphone audio against enrolled voice
// profiles and reports who is speaking.
//
// A Session owns one capture stream and one processing goroutine. Blocks are
// handled in arrival order by a Tracker; feature extraction and matching run
// inline, so match cycles never overlap. onSpeakerChange fires once per
// change of best match and never for "no match".
package identify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/user/meeting-voiceid/internal/audio"
	"github.com/user/meeting-voiceid/internal/voice"
)

// SpeakerChangeFunc receives the display name of the new speaker.
type SpeakerChangeFunc func(name string)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateListening
	StateMatching
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateMatching:
		return "matching"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Session.
type Option func(*Session)

// WithSpeechGate replaces the default RMS gate.
func WithSpeechGate(gate audio.VAD) Option {
	return func(s *Session) {
		if gate != nil {
			s.gate = gate
		}
	}
}

type Session struct {
	profiles ProfileSource
	mic      audio.Microphone
	gate     audio.VAD
	config   Config

	state    State
	listener *listener
	current  string
	mutex    sync.Mutex
}

type listener struct {
	id       string
	stream   audio.Stream
	tracker  *Tracker
	onChange SpeakerChangeFunc
	cancel   context.CancelFunc
	release  sync.Once
	done     chan struct{}
}

func New(profiles ProfileSource, mic audio.Microphone, cfg Config, opts ...Option) *Session {
	s := &Session{
		profiles: profiles,
		mic:      mic,
		config:   cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gate == nil {
		s.gate = audio.NewRMSGate(s.config.SilenceThreshold)
	}
	return s
}

// Start begins continuous identification. It returns false without touching
// the microphone when no profile is enrolled.
func (s *Session) Start(ctx context.Context, onSpeakerChange SpeakerChangeFunc) (bool, error) {
	if len(s.profiles.ListEnrolled()) == 0 {
		log.Info().Msg("No enrolled voices, realtime identification not started")
		return false, nil
	}

	s.mutex.Lock()
	if s.state != StateIdle {
		s.mutex.Unlock()
		return false, voice.ErrAlreadyRecording
	}
	s.state = StateStarting
	s.mutex.Unlock()

	stream, err := s.mic.Open(ctx, audio.StreamConfig{
		SampleRate: s.config.SampleRate,
		Channels:   audio.Channels,
		BlockSize:  s.config.BlockSize,
	})
	if err != nil {
		s.mutex.Lock()
		s.state = StateIdle
		s.mutex.Unlock()
		log.Warn().Err(err).Msg("Failed to open microphone for identification")
		return false, fmt.Errorf("%w: %w", voice.ErrMicrophoneUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l := &listener{
		id:       uuid.NewString(),
		stream:   stream,
		tracker:  NewTracker(s.profiles, s.gate, s.config),
		onChange: onSpeakerChange,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mutex.Lock()
	if s.state != StateStarting {
		// Stopped while the device was being acquired.
		s.mutex.Unlock()
		l.close()
		return false, fmt.Errorf("identification stopped while opening microphone: %w", context.Canceled)
	}
	s.listener = l
	s.current = ""
	s.state = StateListening
	s.mutex.Unlock()

	go s.processAudioLoop(loopCtx, l)

	log.Info().
		Str("listener_id", l.id).
		Int("sample_rate", stream.SampleRate()).
		Int("enrolled", len(s.profiles.ListEnrolled())).
		Msg("Realtime identification started")

	return true, nil
}

func (l *listener) close() {
	l.release.Do(func() {
		l.cancel()
		if err := l.stream.Close(); err != nil {
			log.Warn().Err(err).Str("listener_id", l.id).Msg("Failed to close capture stream")
		}
	})
}

func (s *Session) processAudioLoop(ctx context.Context, l *listener) {
	defer close(l.done)
	defer log.Debug().Str("listener_id", l.id).Msg("Identification loop stopped")

	sampleRate := l.stream.SampleRate()
	for {
		select {
		case block, ok := <-l.stream.Blocks():
			if !ok {
				s.streamEnded(l)
				return
			}
			s.processBlock(l, block, sampleRate)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) processBlock(l *listener, block []float32, sampleRate int) {
	if !s.enter(l, StateMatching) {
		return
	}
	decision, err := l.tracker.Process(block, sampleRate)
	if !s.enter(l, StateListening) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("listener_id", l.id).Int("samples", len(block)).Msg("Skipping audio block")
		return
	}
	if !decision.Changed {
		return
	}

	s.mutex.Lock()
	if s.listener != l {
		s.mutex.Unlock()
		return
	}
	s.current = decision.Speaker
	s.mutex.Unlock()

	if l.onChange != nil {
		l.onChange(decision.Speaker)
	}
}

// enter moves between Listening and Matching while l is still the active
// listener.
func (s *Session) enter(l *listener, state State) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener != l {
		return false
	}
	s.state = state
	return true
}

func (s *Session) streamEnded(l *listener) {
	s.mutex.Lock()
	if s.listener != l {
		s.mutex.Unlock()
		return
	}
	s.listener = nil
	s.current = ""
	s.state = StateIdle
	s.mutex.Unlock()

	l.close()
	log.Warn().Str("listener_id", l.id).Msg("Capture stream ended, realtime identification stopped")
}

// Stop releases the capture stream and forgets the current speaker. Safe to
// call in any state, including from onSpeakerChange.
func (s *Session) Stop() {
	s.mutex.Lock()
	l := s.listener
	switch {
	case l != nil:
		s.state = StateStopping
	case s.state == StateStarting:
		// Start notices and releases the stream it is opening.
		s.state = StateIdle
		s.mutex.Unlock()
		return
	default:
		s.mutex.Unlock()
		return
	}
	s.listener = nil
	s.current = ""
	s.mutex.Unlock()

	l.close()

	s.mutex.Lock()
	if s.state == StateStopping {
		s.state = StateIdle
	}
	s.mutex.Unlock()

	log.Info().Str("listener_id", l.id).Msg("Realtime identification stopped")
}

var closedDone = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Done is closed when the current listener's processing goroutine exits. It
// is already closed when idle.
func (s *Session) Done() <-chan struct{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return closedDone
	}
	return s.listener.done
}

// CurrentSpeaker returns the last announced speaker.
func (s *Session) CurrentSpeaker() (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current, s.current != ""
}

func (s *Session) IsActive() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.listener != nil
}

func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}
