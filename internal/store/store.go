package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/meeting-voiceid/internal/transcript"
	"github.com/user/meeting-voiceid/internal/voice"
)

const profilesFile = "profiles.json"

// FileStore persists voice profiles, their enrollment samples and speaker
// timelines under a base directory.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	// Create directories if they don't exist
	for _, dir := range []string{"samples", "transcripts"} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &FileStore{
		baseDir: baseDir,
	}, nil
}

// SaveProfiles writes profiles.json and one sample file per enrolled profile.
func (s *FileStore) SaveProfiles(profiles []voice.Profile) error {
	for _, p := range profiles {
		if len(p.SampleAudio) == 0 {
			continue
		}
		if err := os.WriteFile(s.samplePath(p), p.SampleAudio, 0644); err != nil {
			return fmt.Errorf("failed to write sample for %s: %w", p.ID, err)
		}
	}

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	path := filepath.Join(s.baseDir, profilesFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace profiles file: %w", err)
	}

	log.Info().
		Str("file", path).
		Int("profiles", len(profiles)).
		Msg("Saved voice profiles")

	return nil
}

// LoadProfiles reads profiles.json. A missing file yields no profiles.
func (s *FileStore) LoadProfiles() ([]voice.Profile, error) {
	path := filepath.Join(s.baseDir, profilesFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var profiles []voice.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}

	for i := range profiles {
		if profiles[i].SampleCodec == "" {
			continue
		}
		sample, err := os.ReadFile(s.samplePath(profiles[i]))
		if err != nil {
			log.Warn().Err(err).Str("profile_id", profiles[i].ID).Msg("Enrollment sample missing")
			continue
		}
		profiles[i].SampleAudio = sample
	}

	return profiles, nil
}

// ClearProfiles removes the profiles file and every stored sample.
func (s *FileStore) ClearProfiles() error {
	if err := os.Remove(filepath.Join(s.baseDir, profilesFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove profiles file: %w", err)
	}
	samples := filepath.Join(s.baseDir, "samples")
	if err := os.RemoveAll(samples); err != nil {
		return fmt.Errorf("failed to remove samples: %w", err)
	}
	return os.MkdirAll(samples, 0755)
}

func (s *FileStore) samplePath(p voice.Profile) string {
	ext := p.SampleCodec
	if ext == "" {
		ext = "bin"
	}
	return filepath.Join(s.baseDir, "samples", fmt.Sprintf("%s.%s", filepath.Base(p.ID), ext))
}

// SaveTranscript writes segments as JSON lines and returns the file path.
func (s *FileStore) SaveTranscript(sessionID string, segments []transcript.Segment) (string, error) {
	filename := fmt.Sprintf("%s.jsonl", sessionID)
	filepath := filepath.Join(s.baseDir, "transcripts", filename)

	file, err := os.Create(filepath)
	if err != nil {
		return "", fmt.Errorf("failed to create transcript file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, segment := range segments {
		if err := encoder.Encode(segment); err != nil {
			return "", fmt.Errorf("failed to encode segment: %w", err)
		}
	}

	log.Info().
		Str("session_id", sessionID).
		Str("file", filepath).
		Int("segments", len(segments)).
		Msg("Saved transcript")

	return filepath, nil
}

func (s *FileStore) LoadTranscript(sessionID string) ([]transcript.Segment, error) {
	filename := fmt.Sprintf("%s.jsonl", sessionID)
	filepath := filepath.Join(s.baseDir, "transcripts", filename)

	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	var segments []transcript.Segment
	decoder := json.NewDecoder(file)

	for decoder.More() {
		var segment transcript.Segment
		if err := decoder.Decode(&segment); err != nil {
			return nil, fmt.Errorf("failed to decode segment: %w", err)
		}
		segments = append(segments, segment)
	}

	return segments, nil
}

func GenerateSessionID() string {
	return fmt.Sprintf("session_%s", time.Now().Format("20060102_150405"))
}
