package transcript

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSegmentBeforeAnyAnnouncement(t *testing.T) {
	a := NewAssembler(nil)

	seg := a.AddSegment("hello everyone")
	assert.Equal(t, UnknownSpeaker, seg.SpeakerName)
	assert.Equal(t, "hello everyone", seg.Text)
	assert.False(t, seg.Turn)
	assert.NotEqual(t, uuid.Nil, seg.ID)
}

func TestSegmentsFollowSpeakerChanges(t *testing.T) {
	var delivered []Segment
	a := NewAssembler(func(s Segment) { delivered = append(delivered, s) })

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a.clock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	a.OnSpeakerChange("Alice")
	a.AddSegment("let's start")
	a.OnSpeakerChange("Bob")
	a.AddSegment("sounds good")
	a.AddSegment("first item")

	segments := a.Segments()
	require.Len(t, segments, 5)
	assert.Equal(t, delivered, segments)

	assert.True(t, segments[0].Turn)
	assert.Equal(t, "Alice", segments[0].SpeakerName)
	assert.Equal(t, "Alice", segments[1].SpeakerName)
	assert.Equal(t, "Bob", segments[3].SpeakerName)
	assert.Equal(t, "Bob", segments[4].SpeakerName)
	assert.True(t, segments[4].Timestamp.After(segments[0].Timestamp))
	assert.Equal(t, "Bob", a.CurrentSpeaker())

	ids := map[uuid.UUID]bool{}
	for _, s := range segments {
		ids[s.ID] = true
	}
	assert.Len(t, ids, 5)
}

func TestSegmentsReturnsCopy(t *testing.T) {
	a := NewAssembler(nil)
	a.AddSegment("one")

	segments := a.Segments()
	segments[0].Text = "changed"

	assert.Equal(t, "one", a.Segments()[0].Text)
}
