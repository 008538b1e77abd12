package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/user/meeting-voiceid/internal/enroll"
	"github.com/user/meeting-voiceid/internal/identify"
	"github.com/user/meeting-voiceid/internal/voice"
)

type Config struct {
	// Storage
	DataDir string

	// Capture
	CaptureBackend string // "malgo" or "discord"
	SampleRate     int
	BlockSize      int

	// Discord settings
	DiscordToken     string
	DiscordGuildID   string
	DiscordChannelID string

	// Enrollment
	EnrollmentSeconds int
	EnrollmentCodec   string // "wav" or "opus"

	// Speech detection
	SpeechGate       string // "rms" or "webrtc"
	SilenceThreshold float64
	SilenceBlocks    int
	MinSpeechBlocks  int
	RetainBlocks     int

	// Matching
	MatchThreshold         float64
	WeightPitch            float64
	WeightPitchVariance    float64
	WeightEnergy           float64
	WeightZeroCrossingRate float64
	WeightCentroid         float64

	// Speaker timeline
	SaveTranscripts bool

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file found, using environment variables only")
	}

	weights := voice.DefaultWeights()

	cfg := &Config{
		// Storage
		DataDir: getEnvOrDefault("DATA_DIR", "./data"),

		// Capture
		CaptureBackend: getEnvOrDefault("CAPTURE_BACKEND", "malgo"),
		SampleRate:     getIntEnvOrDefault("SAMPLE_RATE", 44100),
		BlockSize:      getIntEnvOrDefault("BLOCK_SIZE", 4096),

		// Discord
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordGuildID:   os.Getenv("DISCORD_GUILD_ID"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),

		// Enrollment
		EnrollmentSeconds: getIntEnvOrDefault("ENROLLMENT_SECONDS", 3),
		EnrollmentCodec:   getEnvOrDefault("ENROLLMENT_CODEC", "wav"),

		// Speech detection
		SpeechGate:       getEnvOrDefault("SPEECH_GATE", "rms"),
		SilenceThreshold: getFloatEnvOrDefault("SILENCE_THRESHOLD", 0.01),
		SilenceBlocks:    getIntEnvOrDefault("SILENCE_BLOCKS", 20),
		MinSpeechBlocks:  getIntEnvOrDefault("MIN_SPEECH_BLOCKS", 10),
		RetainBlocks:     getIntEnvOrDefault("RETAIN_BLOCKS", 3),

		// Matching
		MatchThreshold:         getFloatEnvOrDefault("MATCH_THRESHOLD", voice.DefaultMatchThreshold),
		WeightPitch:            getFloatEnvOrDefault("WEIGHT_PITCH", weights.Pitch),
		WeightPitchVariance:    getFloatEnvOrDefault("WEIGHT_PITCH_VARIANCE", weights.PitchVariance),
		WeightEnergy:           getFloatEnvOrDefault("WEIGHT_ENERGY", weights.Energy),
		WeightZeroCrossingRate: getFloatEnvOrDefault("WEIGHT_ZCR", weights.ZeroCrossingRate),
		WeightCentroid:         getFloatEnvOrDefault("WEIGHT_CENTROID", weights.SpectralCentroid),

		// Speaker timeline
		SaveTranscripts: getBoolEnvOrDefault("SAVE_TRANSCRIPTS", true),

		// Logging
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.CaptureBackend != "malgo" && c.CaptureBackend != "discord" {
		return fmt.Errorf("CAPTURE_BACKEND must be 'malgo' or 'discord'")
	}

	if c.CaptureBackend == "discord" {
		if c.DiscordToken == "" {
			return fmt.Errorf("DISCORD_TOKEN is required when using discord backend")
		}
		if c.DiscordGuildID == "" || c.DiscordChannelID == "" {
			return fmt.Errorf("DISCORD_GUILD_ID and DISCORD_CHANNEL_ID are required when using discord backend")
		}
	}

	if c.EnrollmentCodec != "wav" && c.EnrollmentCodec != "opus" {
		return fmt.Errorf("ENROLLMENT_CODEC must be 'wav' or 'opus'")
	}

	if c.SpeechGate != "rms" && c.SpeechGate != "webrtc" {
		return fmt.Errorf("SPEECH_GATE must be 'rms' or 'webrtc'")
	}

	if c.SampleRate <= 0 || c.BlockSize <= 0 {
		return fmt.Errorf("SAMPLE_RATE and BLOCK_SIZE must be positive")
	}

	if c.EnrollmentSeconds <= 0 {
		return fmt.Errorf("ENROLLMENT_SECONDS must be positive")
	}

	if c.MinSpeechBlocks <= 0 || c.RetainBlocks < 0 || c.RetainBlocks >= c.MinSpeechBlocks {
		return fmt.Errorf("RETAIN_BLOCKS must be between 0 and MIN_SPEECH_BLOCKS-1")
	}

	if c.MatchThreshold <= 0 {
		return fmt.Errorf("MATCH_THRESHOLD must be positive")
	}

	if c.Matcher().Weights.Sum() <= 0 {
		return fmt.Errorf("at least one WEIGHT_* must be positive")
	}

	return nil
}

func (c *Config) Matcher() voice.Matcher {
	return voice.Matcher{
		Weights: voice.Weights{
			Pitch:            c.WeightPitch,
			PitchVariance:    c.WeightPitchVariance,
			Energy:           c.WeightEnergy,
			ZeroCrossingRate: c.WeightZeroCrossingRate,
			SpectralCentroid: c.WeightCentroid,
		},
		Threshold: c.MatchThreshold,
	}
}

func (c *Config) Enrollment() enroll.Config {
	return enroll.Config{
		SampleRate:       c.SampleRate,
		BlockSize:        c.BlockSize,
		ProgressInterval: 100 * time.Millisecond,
	}
}

func (c *Config) Identify() identify.Config {
	return identify.Config{
		SampleRate:       c.SampleRate,
		BlockSize:        c.BlockSize,
		SilenceThreshold: c.SilenceThreshold,
		SilenceBlocks:    c.SilenceBlocks,
		MinSpeechBlocks:  c.MinSpeechBlocks,
		RetainBlocks:     c.RetainBlocks,
		Matcher:          c.Matcher(),
	}
}

// EnrollmentDuration is how long the CLI records before stopping.
func (c *Config) EnrollmentDuration() time.Duration {
	return time.Duration(c.EnrollmentSeconds) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnvOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
