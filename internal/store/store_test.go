package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/meeting-voiceid/internal/transcript"
	"github.com/user/meeting-voiceid/internal/voice"
)

func TestNewFileStoreCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileStore(dir)
	require.NoError(t, err)

	for _, sub := range []string{"samples", "transcripts"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoadProfilesMissingFile(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	profiles, err := s.LoadProfiles()
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestProfilesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	features := voice.Features{AvgPitch: 150, AvgEnergy: 0.2, SampleDurationSeconds: 3}
	enrolledAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	profiles := []voice.Profile{
		{ID: "p1", Name: "Alice", Enrolled: true, Features: &features, SampleAudio: []byte("RIFFdata"), SampleCodec: "wav", EnrolledAt: enrolledAt},
		{ID: "p2", Name: "Bob"},
	}
	require.NoError(t, s.SaveProfiles(profiles))

	sample, err := os.ReadFile(filepath.Join(dir, "samples", "p1.wav"))
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), sample)

	raw, err := os.ReadFile(filepath.Join(dir, "profiles.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "RIFFdata", "raw audio stays out of profiles.json")

	loaded, err := s.LoadProfiles()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "Alice", loaded[0].Name)
	assert.Equal(t, features, *loaded[0].Features)
	assert.Equal(t, []byte("RIFFdata"), loaded[0].SampleAudio)
	assert.True(t, loaded[0].EnrolledAt.Equal(enrolledAt))
	assert.Nil(t, loaded[1].Features)
	assert.Nil(t, loaded[1].SampleAudio)
}

func TestLoadProfilesMissingSample(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	features := voice.Features{AvgPitch: 150}
	require.NoError(t, s.SaveProfiles([]voice.Profile{
		{ID: "p1", Name: "Alice", Enrolled: true, Features: &features, SampleAudio: []byte{1}, SampleCodec: "opus"},
	}))
	require.NoError(t, os.Remove(filepath.Join(dir, "samples", "p1.opus")))

	loaded, err := s.LoadProfiles()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.NotNil(t, loaded[0].Features, "features survive without the sample")
	assert.Nil(t, loaded[0].SampleAudio)
}

func TestLoadProfilesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profiles.json"), []byte("{not json"), 0644))

	_, err = s.LoadProfiles()
	assert.Error(t, err)
}

func TestClearProfiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	features := voice.Features{AvgPitch: 150}
	require.NoError(t, s.SaveProfiles([]voice.Profile{
		{ID: "p1", Name: "Alice", Features: &features, SampleAudio: []byte{1}, SampleCodec: "wav"},
	}))

	require.NoError(t, s.ClearProfiles())
	require.NoError(t, s.ClearProfiles())

	loaded, err := s.LoadProfiles()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	entries, err := os.ReadDir(filepath.Join(dir, "samples"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTranscriptRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	a := transcript.NewAssembler(nil)
	a.OnSpeakerChange("Alice")
	a.AddSegment("hello")
	segments := a.Segments()

	path, err := s.SaveTranscript("session_test", segments)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "session_test.jsonl"))

	loaded, err := s.LoadTranscript("session_test")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, segments[1].ID, loaded[1].ID)
	assert.Equal(t, "Alice", loaded[1].SpeakerName)
	assert.Equal(t, "hello", loaded[1].Text)
	assert.True(t, loaded[0].Turn)

	_, err = s.LoadTranscript("missing")
	assert.Error(t, err)
}

func TestGenerateSessionID(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateSessionID(), "session_"))
}
