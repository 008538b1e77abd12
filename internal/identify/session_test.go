package identify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/meeting-voiceid/internal/audio/mock"
	"github.com/user/meeting-voiceid/internal/voice"
)

type announcements struct {
	mu    sync.Mutex
	names []string
}

func (a *announcements) record(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, name)
}

func (a *announcements) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.names...)
}

func TestStartWithoutEnrolledProfiles(t *testing.T) {
	mic := &mock.Microphone{}
	s := New(voice.NewRegistry(), mic, DefaultConfig())

	started, err := s.Start(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Zero(t, mic.Opens(), "microphone is never opened")
	assert.False(t, s.IsActive())
}

func TestSessionAnnouncesSpeakers(t *testing.T) {
	registry, alice, bob := meeting(t)
	mic := &mock.Microphone{}
	s := New(registry, mic, DefaultConfig())
	heard := &announcements{}

	started, err := s.Start(context.Background(), heard.record)
	require.NoError(t, err)
	require.True(t, started)
	assert.True(t, s.IsActive())
	assert.Equal(t, testRate, mic.Configs()[0].SampleRate)

	stream := mic.Last()
	stream.PushAll(alice)
	stream.PushAll(silentBlocks(25))
	stream.PushAll(bob)

	require.Eventually(t, func() bool { return len(heard.list()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Alice", "Bob"}, heard.list())

	name, ok := s.CurrentSpeaker()
	assert.True(t, ok)
	assert.Equal(t, "Bob", name)

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, stream.Closes())
	assert.False(t, s.IsActive())
	assert.Equal(t, StateIdle, s.State())

	_, ok = s.CurrentSpeaker()
	assert.False(t, ok, "stop forgets the last speaker")
}

func TestSessionSkipsMalformedBlocks(t *testing.T) {
	registry, alice, _ := meeting(t)
	mic := &mock.Microphone{}
	s := New(registry, mic, DefaultConfig())
	heard := &announcements{}

	_, err := s.Start(context.Background(), heard.record)
	require.NoError(t, err)
	defer s.Stop()

	stream := mic.Last()
	stream.Push(nil)
	stream.Push([]float32{})
	stream.PushAll(alice)

	require.Eventually(t, func() bool { return len(heard.list()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, s.IsActive())
}

func TestSessionDoubleStart(t *testing.T) {
	registry, _, _ := meeting(t)
	mic := &mock.Microphone{}
	s := New(registry, mic, DefaultConfig())

	_, err := s.Start(context.Background(), nil)
	require.NoError(t, err)
	defer s.Stop()

	_, err = s.Start(context.Background(), nil)
	assert.ErrorIs(t, err, voice.ErrAlreadyRecording)
	assert.Equal(t, 1, mic.Opens())
}

func TestSessionMicrophoneUnavailable(t *testing.T) {
	registry, _, _ := meeting(t)
	mic := &mock.Microphone{OpenErr: errors.New("device busy")}
	s := New(registry, mic, DefaultConfig())

	started, err := s.Start(context.Background(), nil)
	assert.False(t, started)
	assert.ErrorIs(t, err, voice.ErrMicrophoneUnavailable)
	assert.Equal(t, StateIdle, s.State())

	mic.OpenErr = nil
	started, err = s.Start(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, started)
	s.Stop()
}

func TestSessionStreamEnds(t *testing.T) {
	registry, _, _ := meeting(t)
	mic := &mock.Microphone{}
	s := New(registry, mic, DefaultConfig())

	_, err := s.Start(context.Background(), nil)
	require.NoError(t, err)
	done := s.Done()

	mic.Last().End()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processing loop did not exit")
	}
	assert.False(t, s.IsActive())
	assert.Equal(t, 1, mic.Last().Closes())
}

func TestStopFromSpeakerCallback(t *testing.T) {
	registry, alice, _ := meeting(t)
	mic := &mock.Microphone{}
	s := New(registry, mic, DefaultConfig())

	stopped := make(chan struct{})
	_, err := s.Start(context.Background(), func(string) {
		s.Stop()
		close(stopped)
	})
	require.NoError(t, err)
	mic.Last().PushAll(alice)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("speaker callback never ran")
	}
	assert.False(t, s.IsActive())
	assert.Equal(t, 1, mic.Last().Closes())
}

func TestClearedRegistryWhileListening(t *testing.T) {
	registry, alice, _ := meeting(t)
	mic := &mock.Microphone{}
	s := New(registry, mic, DefaultConfig())
	heard := &announcements{}

	_, err := s.Start(context.Background(), heard.record)
	require.NoError(t, err)
	defer s.Stop()

	registry.Clear()
	mic.Last().PushAll(alice)
	mic.Last().PushAll(silentBlocks(1))

	require.Eventually(t, func() bool { return len(mic.Last().Blocks()) == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, heard.list())
	assert.True(t, s.IsActive(), "session keeps running with nobody enrolled")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "state(42)", State(42).String())
}
