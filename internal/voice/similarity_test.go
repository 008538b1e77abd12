package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Features{AvgPitch: 210, PitchVariance: 18, AvgEnergy: 0.08, ZeroCrossingRate: 0.06, SpectralCentroid: 1400}
	bob   = Features{AvgPitch: 110, PitchVariance: 9, AvgEnergy: 0.12, ZeroCrossingRate: 0.03, SpectralCentroid: 800}
)

func enrolled(id, name string, f Features) Profile {
	return Profile{ID: id, Name: name, Enrolled: true, Features: &f}
}

func TestScoreReflexive(t *testing.T) {
	for _, f := range []Features{alice, bob, {}} {
		assert.Zero(t, Score(f, f))
	}
}

func TestScoreSymmetric(t *testing.T) {
	assert.Equal(t, Score(alice, bob), Score(bob, alice))

	w := Weights{Pitch: 1, Energy: 3}
	assert.Equal(t, w.Score(alice, bob), w.Score(bob, alice))
}

func TestScoreRelativeDifferences(t *testing.T) {
	a := Features{AvgPitch: 200}
	b := Features{AvgPitch: 100}

	// |200-100| / 200 weighted by 0.35
	assert.InDelta(t, 0.175, Score(a, b), 1e-9)
}

func TestScoreFloorsNearZero(t *testing.T) {
	a := Features{AvgEnergy: 0.0005}
	b := Features{}

	// Energy difference is divided by the 0.001 floor, not by 0.0005.
	assert.InDelta(t, 0.5*0.15, Score(a, b), 1e-9)
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
}

func TestBestNoEnrolledProfiles(t *testing.T) {
	m := DefaultMatcher()

	_, _, ok := m.Best(alice, nil)
	assert.False(t, ok)

	_, _, ok = m.Best(alice, []Profile{{ID: "p1", Name: "Alice"}})
	assert.False(t, ok)
}

func TestBestPicksIdenticalProfile(t *testing.T) {
	m := DefaultMatcher()
	profiles := []Profile{enrolled("b", "Bob", bob), enrolled("a", "Alice", alice)}

	best, distance, ok := m.Best(alice, profiles)
	require.True(t, ok)
	assert.Equal(t, "a", best.ID)
	assert.Zero(t, distance)
}

func TestBestRespectsThreshold(t *testing.T) {
	far := Features{AvgPitch: 400, PitchVariance: 80, AvgEnergy: 0.9, ZeroCrossingRate: 0.4, SpectralCentroid: 6000}
	m := DefaultMatcher()

	best, distance, ok := m.Best(far, []Profile{enrolled("a", "Alice", alice)})
	assert.False(t, ok)
	assert.Equal(t, "a", best.ID)
	assert.GreaterOrEqual(t, distance, DefaultMatchThreshold)

	m.Threshold = distance + 0.01
	_, _, ok = m.Best(far, []Profile{enrolled("a", "Alice", alice)})
	assert.True(t, ok)
}
