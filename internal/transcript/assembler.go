package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// UnknownSpeaker labels text that arrives before any voice was identified.
const UnknownSpeaker = "Unknown"

// Segment is one piece of transcript attributed to a speaker. Turn segments
// carry no text and mark the moment the identified speaker changed.
type Segment struct {
	ID          uuid.UUID `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	SpeakerName string    `json:"speaker_name"`
	Text        string    `json:"text,omitempty"`
	Turn        bool      `json:"turn,omitempty"`
}

// SegmentFunc is the "add transcript segment" callback of the meeting store.
type SegmentFunc func(Segment)

// Assembler attributes transcribed text to whoever the identification session
// last announced.
type Assembler struct {
	onSegment SegmentFunc
	clock     func() time.Time

	current  string
	segments []Segment
	mutex    sync.Mutex
}

func NewAssembler(onSegment SegmentFunc) *Assembler {
	return &Assembler{
		onSegment: onSegment,
		clock:     time.Now,
	}
}

// OnSpeakerChange records a turn. Its signature matches the identification
// session callback.
func (a *Assembler) OnSpeakerChange(name string) {
	seg := a.add(func(now time.Time) Segment {
		a.current = name
		return Segment{ID: uuid.New(), Timestamp: now, SpeakerName: name, Turn: true}
	})
	log.Debug().Str("speaker", name).Time("at", seg.Timestamp).Msg("Recorded speaker turn")
}

// AddSegment attributes text from an external transcriber to the current
// speaker.
func (a *Assembler) AddSegment(text string) Segment {
	return a.add(func(now time.Time) Segment {
		speaker := a.current
		if speaker == "" {
			speaker = UnknownSpeaker
		}
		return Segment{ID: uuid.New(), Timestamp: now, SpeakerName: speaker, Text: text}
	})
}

func (a *Assembler) add(build func(now time.Time) Segment) Segment {
	a.mutex.Lock()
	seg := build(a.clock())
	a.segments = append(a.segments, seg)
	a.mutex.Unlock()

	if a.onSegment != nil {
		a.onSegment(seg)
	}
	return seg
}

func (a *Assembler) CurrentSpeaker() string {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.current
}

// Segments returns a copy of everything recorded so far.
func (a *Assembler) Segments() []Segment {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return append([]Segment(nil), a.segments...)
}
