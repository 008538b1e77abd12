package identify

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/user/meeting-voiceid/internal/audio"
	"github.com/user/meeting-voiceid/internal/voice"
)

// ErrMalformedBlock is returned for empty blocks or blocks holding NaN/Inf.
var ErrMalformedBlock = errors.New("malformed audio block")

// ProfileSource lists the profiles live audio is matched against.
type ProfileSource interface {
	ListEnrolled() []voice.Profile
}

// Config holds the tuning constants of the identification loop.
type Config struct {
	SampleRate       int
	BlockSize        int
	SilenceThreshold float64
	// SilenceBlocks is how many consecutive silent blocks are tolerated
	// before the speech buffer is dropped.
	SilenceBlocks   int
	MinSpeechBlocks int
	RetainBlocks    int
	Matcher         voice.Matcher
}

func DefaultConfig() Config {
	return Config{
		SampleRate:       audio.CaptureSampleRate,
		BlockSize:        audio.BlockSize,
		SilenceThreshold: audio.DefaultSilenceThreshold,
		SilenceBlocks:    20,
		MinSpeechBlocks:  10,
		RetainBlocks:     3,
		Matcher:          voice.DefaultMatcher(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = d.BlockSize
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	if c.SilenceBlocks <= 0 {
		c.SilenceBlocks = d.SilenceBlocks
	}
	if c.MinSpeechBlocks <= 0 {
		c.MinSpeechBlocks = d.MinSpeechBlocks
	}
	if c.RetainBlocks < 0 || c.RetainBlocks >= c.MinSpeechBlocks {
		c.RetainBlocks = d.RetainBlocks
	}
	if c.Matcher.Threshold <= 0 {
		c.Matcher.Threshold = d.Matcher.Threshold
	}
	if c.Matcher.Weights.Sum() <= 0 {
		c.Matcher.Weights = d.Matcher.Weights
	}
	return c
}

// Decision is the outcome of one block.
type Decision struct {
	Speech  bool
	Matched bool // a match cycle ran
	Speaker string
	Score   float64
	Changed bool // Speaker differs from the previous announcement
}

// Tracker runs the per-block identification algorithm. It is not safe for
// concurrent use; a Session drives it from a single goroutine.
type Tracker struct {
	config   Config
	profiles ProfileSource
	gate     audio.VAD

	speech       [][]float32
	silentBlocks int
	current      string
}

func NewTracker(profiles ProfileSource, gate audio.VAD, cfg Config) *Tracker {
	cfg = cfg.withDefaults()
	if gate == nil {
		gate = audio.NewRMSGate(cfg.SilenceThreshold)
	}
	return &Tracker{
		config:   cfg,
		profiles: profiles,
		gate:     gate,
	}
}

// Process consumes one block in arrival order.
func (t *Tracker) Process(block []float32, sampleRate int) (Decision, error) {
	if !audio.Valid(block) {
		return Decision{}, ErrMalformedBlock
	}
	if sampleRate <= 0 {
		sampleRate = t.config.SampleRate
	}

	if !t.gate.IsSpeech(block, sampleRate) {
		t.silentBlocks++
		if t.silentBlocks > t.config.SilenceBlocks && len(t.speech) > 0 {
			log.Debug().Int("silent_blocks", t.silentBlocks).Int("dropped_blocks", len(t.speech)).Msg("Speaker went quiet, clearing speech buffer")
			t.speech = nil
		}
		return Decision{}, nil
	}

	t.silentBlocks = 0
	t.speech = append(t.speech, append([]float32(nil), block...))
	if len(t.speech) < t.config.MinSpeechBlocks {
		return Decision{Speech: true}, nil
	}

	decision := t.match(sampleRate)
	t.speech = append([][]float32(nil), t.speech[len(t.speech)-t.config.RetainBlocks:]...)
	return decision, nil
}

func (t *Tracker) match(sampleRate int) Decision {
	size := 0
	for _, b := range t.speech {
		size += len(b)
	}
	samples := make([]float32, 0, size)
	for _, b := range t.speech {
		samples = append(samples, b...)
	}

	features := voice.Extract(samples, sampleRate)
	decision := Decision{Speech: true, Matched: true}

	best, score, ok := t.config.Matcher.Best(features, t.profiles.ListEnrolled())
	decision.Score = score
	if !ok {
		log.Debug().Float64("best_score", score).Float64("avg_pitch", features.AvgPitch).Msg("No enrolled voice below threshold")
		decision.Speaker = t.current
		return decision
	}

	decision.Speaker = best.Name
	if best.Name != t.current {
		log.Info().
			Str("previous", t.current).
			Str("speaker", best.Name).
			Str("profile_id", best.ID).
			Float64("score", score).
			Msg("Speaker changed")
		t.current = best.Name
		decision.Changed = true
	}
	return decision
}

// Current is the last announced speaker, "" before the first match.
func (t *Tracker) Current() string {
	return t.current
}

// Buffered is the number of speech blocks waiting for the next match cycle.
func (t *Tracker) Buffered() int {
	return len(t.speech)
}

// Reset clears buffered audio and the announced speaker.
func (t *Tracker) Reset() {
	t.speech = nil
	t.silentBlocks = 0
	t.current = ""
}
