package voice

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Profile is one participant's voice enrollment. Enrolled is true exactly
// when Features is set.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Enrolled    bool      `json:"enrolled"`
	Features    *Features `json:"features,omitempty"`
	SampleAudio []byte    `json:"-"`
	SampleCodec string    `json:"sampleCodec,omitempty"`
	EnrolledAt  time.Time `json:"enrolledAt,omitempty"`
}

func (p Profile) clone() Profile {
	if p.Features != nil {
		f := *p.Features
		p.Features = &f
	}
	if p.SampleAudio != nil {
		p.SampleAudio = append([]byte(nil), p.SampleAudio...)
	}
	return p
}

// Registry is the in-memory store of voice profiles, keyed by id and kept in
// insertion order. All accessors return copies.
type Registry struct {
	profiles map[string]*Profile
	order    []string
	mutex    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]*Profile),
	}
}

// CreateProfile inserts an unenrolled profile, overwriting any profile with
// the same id.
func (r *Registry) CreateProfile(id, name string) Profile {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.profiles[id]; !exists {
		r.order = append(r.order, id)
	}
	p := &Profile{ID: id, Name: name}
	r.profiles[id] = p

	log.Debug().Str("profile_id", id).Str("name", name).Msg("Created voice profile")
	return p.clone()
}

func (r *Registry) Get(id string) (Profile, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return p.clone(), true
}

func (r *Registry) List() []Profile {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	list := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.profiles[id].clone())
	}
	return list
}

// ListEnrolled returns the profiles that can be matched against.
func (r *Registry) ListEnrolled() []Profile {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var list []Profile
	for _, id := range r.order {
		if p := r.profiles[id]; p.Enrolled && p.Features != nil {
			list = append(list, p.clone())
		}
	}
	return list
}

func (r *Registry) EnrolledCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	count := 0
	for _, p := range r.profiles {
		if p.Enrolled && p.Features != nil {
			count++
		}
	}
	return count
}

// Clear removes every profile.
func (r *Registry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.profiles = make(map[string]*Profile)
	r.order = nil
	log.Debug().Msg("Cleared voice profiles")
}

func (r *Registry) Rename(id, name string) (Profile, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	p.Name = name
	return p.clone(), nil
}

// Commit replaces the features of an existing profile and marks it enrolled.
// It is the only way a profile becomes enrolled.
func (r *Registry) Commit(id string, features Features, sample []byte, codec string) (Profile, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	p.Features = &features
	p.Enrolled = true
	p.SampleAudio = append([]byte(nil), sample...)
	p.SampleCodec = codec
	p.EnrolledAt = time.Now()

	log.Info().
		Str("profile_id", id).
		Str("name", p.Name).
		Float64("avg_pitch", features.AvgPitch).
		Float64("duration_s", features.SampleDurationSeconds).
		Msg("Committed voice enrollment")
	return p.clone(), nil
}

// Restore loads previously persisted profiles, replacing same-id entries.
// Profiles whose Enrolled flag disagrees with their features are normalized.
func (r *Registry) Restore(profiles []Profile) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, p := range profiles {
		p := p.clone()
		p.Enrolled = p.Features != nil
		if _, exists := r.profiles[p.ID]; !exists {
			r.order = append(r.order, p.ID)
		}
		r.profiles[p.ID] = &p
	}
}

// Match returns the best enrolled profile below the matcher threshold.
func (r *Registry) Match(f Features, m Matcher) (Profile, bool) {
	best, score, ok := m.Best(f, r.ListEnrolled())
	if !ok {
		log.Debug().Float64("best_score", score).Msg("No voice match found")
		return Profile{}, false
	}
	log.Debug().Str("profile_id", best.ID).Str("name", best.Name).Float64("score", score).Msg("Matched voice")
	return best, true
}
