// Package app wires the profile registry, the enrollment and identification
// sessions and persistence into the facade used by the CLI.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/user/meeting-voiceid/internal/audio"
	"github.com/user/meeting-voiceid/internal/config"
	"github.com/user/meeting-voiceid/internal/enroll"
	"github.com/user/meeting-voiceid/internal/identify"
	"github.com/user/meeting-voiceid/internal/store"
	"github.com/user/meeting-voiceid/internal/transcript"
	"github.com/user/meeting-voiceid/internal/voice"
)

type Service struct {
	config   *config.Config
	registry *voice.Registry
	store    *store.FileStore
	gate     audio.VAD
	matcher  voice.Matcher

	enrollment *enroll.Session
	realtime   *identify.Session

	// Speaker timeline of the current realtime run.
	assembler *transcript.Assembler
	sessionID string
	mutex     sync.Mutex
}

// NewService restores persisted profiles from cfg.DataDir and prepares both
// sessions on mic.
func NewService(cfg *config.Config, mic audio.Microphone) (*Service, error) {
	fileStore, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	profiles, err := fileStore.LoadProfiles()
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	registry := voice.NewRegistry()
	registry.Restore(profiles)

	codec, err := newCodec(cfg.EnrollmentCodec)
	if err != nil {
		return nil, err
	}

	gate, err := newSpeechGate(cfg.SpeechGate, cfg.SilenceThreshold)
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:     cfg,
		registry:   registry,
		store:      fileStore,
		gate:       gate,
		matcher:    cfg.Matcher(),
		enrollment: enroll.New(registry, mic, codec, cfg.Enrollment()),
		realtime:   identify.New(registry, mic, cfg.Identify(), identify.WithSpeechGate(gate)),
	}

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("profiles", len(profiles)).
		Int("enrolled", registry.EnrolledCount()).
		Str("codec", codec.Name()).
		Str("speech_gate", cfg.SpeechGate).
		Msg("Voice identification service ready")

	return s, nil
}

func newCodec(name string) (audio.Codec, error) {
	switch name {
	case "", "wav":
		return audio.WAVCodec{}, nil
	case "opus":
		return audio.OpusCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported enrollment codec: %s", name)
	}
}

func newSpeechGate(name string, threshold float64) (audio.VAD, error) {
	switch name {
	case "", "rms":
		return audio.NewRMSGate(threshold), nil
	case "webrtc":
		vad, err := audio.NewWebRTCVAD(threshold)
		if err != nil {
			return nil, fmt.Errorf("failed to create webrtc speech gate: %w", err)
		}
		return vad, nil
	default:
		return nil, fmt.Errorf("unsupported speech gate: %s", name)
	}
}

func (s *Service) CreateVoiceProfile(id, name string) voice.Profile {
	return s.registry.CreateProfile(id, name)
}

func (s *Service) GetVoiceProfile(id string) (voice.Profile, bool) {
	return s.registry.Get(id)
}

func (s *Service) ListVoiceProfiles() []voice.Profile {
	return s.registry.List()
}

func (s *Service) EnrolledCount() int {
	return s.registry.EnrolledCount()
}

// RenameVoiceProfile changes the display name used in announcements.
func (s *Service) RenameVoiceProfile(id, name string) (voice.Profile, error) {
	profile, err := s.registry.Rename(id, name)
	if err != nil {
		return voice.Profile{}, err
	}
	if err := s.saveProfiles(); err != nil {
		return profile, err
	}
	return profile, nil
}

// ClearVoiceProfiles empties the registry and the stored profiles. A running
// identification keeps going and simply finds nobody to match.
func (s *Service) ClearVoiceProfiles() error {
	s.registry.Clear()
	if err := s.store.ClearProfiles(); err != nil {
		return fmt.Errorf("failed to clear stored profiles: %w", err)
	}
	return nil
}

func (s *Service) StartEnrollment(ctx context.Context, profileID string, onProgress enroll.ProgressFunc) error {
	return s.enrollment.Start(ctx, profileID, onProgress)
}

// StopEnrollment commits the recording and persists the updated registry.
func (s *Service) StopEnrollment(ctx context.Context, profileID string) (voice.Profile, error) {
	profile, err := s.enrollment.Stop(ctx, profileID)
	if err != nil {
		return voice.Profile{}, err
	}
	if err := s.saveProfiles(); err != nil {
		return profile, err
	}
	return profile, nil
}

func (s *Service) CancelEnrollment() {
	s.enrollment.Cancel()
}

func (s *Service) IsEnrollmentActive() bool {
	return s.enrollment.IsActive()
}

func (s *Service) EnrollmentProgress() float64 {
	return s.enrollment.Progress()
}

// StartRealtimeIdentification starts listening and records every speaker
// change on a fresh timeline. It returns false when nobody is enrolled.
func (s *Service) StartRealtimeIdentification(ctx context.Context, onSpeakerChange identify.SpeakerChangeFunc) (bool, error) {
	assembler := transcript.NewAssembler(nil)
	started, err := s.realtime.Start(ctx, func(name string) {
		assembler.OnSpeakerChange(name)
		if onSpeakerChange != nil {
			onSpeakerChange(name)
		}
	})
	if err != nil || !started {
		return started, err
	}

	s.mutex.Lock()
	s.assembler = assembler
	s.sessionID = store.GenerateSessionID()
	s.mutex.Unlock()

	return true, nil
}

// StopRealtimeIdentification stops listening and saves the speaker timeline
// when SAVE_TRANSCRIPTS is on.
func (s *Service) StopRealtimeIdentification() error {
	s.realtime.Stop()

	s.mutex.Lock()
	assembler, sessionID := s.assembler, s.sessionID
	s.assembler, s.sessionID = nil, ""
	s.mutex.Unlock()

	if assembler == nil || !s.config.SaveTranscripts {
		return nil
	}
	segments := assembler.Segments()
	if len(segments) == 0 {
		return nil
	}
	if _, err := s.store.SaveTranscript(sessionID, segments); err != nil {
		return fmt.Errorf("failed to save speaker timeline: %w", err)
	}
	return nil
}

// AddTranscriptSegment attributes text from an external transcriber to the
// current speaker of the running identification.
func (s *Service) AddTranscriptSegment(text string) (transcript.Segment, bool) {
	s.mutex.Lock()
	assembler := s.assembler
	s.mutex.Unlock()

	if assembler == nil {
		return transcript.Segment{}, false
	}
	return assembler.AddSegment(text), true
}

func (s *Service) IsRealtimeActive() bool {
	return s.realtime.IsActive()
}

// RealtimeDone is closed when the identification loop exits.
func (s *Service) RealtimeDone() <-chan struct{} {
	return s.realtime.Done()
}

func (s *Service) CurrentIdentifiedSpeaker() (string, bool) {
	return s.realtime.CurrentSpeaker()
}

// MatchVoice returns the enrolled profile closest to features, if any is
// within the match threshold.
func (s *Service) MatchVoice(features voice.Features) (voice.Profile, bool) {
	return s.registry.Match(features, s.matcher)
}

func (s *Service) saveProfiles() error {
	if err := s.store.SaveProfiles(s.registry.List()); err != nil {
		return fmt.Errorf("failed to persist profiles: %w", err)
	}
	return nil
}

// Close stops both sessions and releases the speech gate.
func (s *Service) Close() error {
	s.enrollment.Cancel()
	err := s.StopRealtimeIdentification()
	if closeErr := s.gate.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
