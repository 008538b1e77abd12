package audio

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Reframer regroups capture callbacks of arbitrary length into fixed-size
// blocks and hands them to a bounded channel. Blocks that do not fit are
// dropped rather than stalling the capture callback.
type Reframer struct {
	blockSize int
	buffer    []float32

	blocks  chan []float32
	stopped bool
	dropped int
	mutex   sync.Mutex
}

func NewReframer(blockSize, queue int) *Reframer {
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	if queue <= 0 {
		queue = 32
	}
	return &Reframer{
		blockSize: blockSize,
		buffer:    make([]float32, 0, blockSize),
		blocks:    make(chan []float32, queue),
	}
}

// Push appends samples, emitting every completed block.
func (r *Reframer) Push(samples []float32) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped {
		return
	}

	for len(samples) > 0 {
		n := r.blockSize - len(r.buffer)
		if n > len(samples) {
			n = len(samples)
		}
		r.buffer = append(r.buffer, samples[:n]...)
		samples = samples[n:]

		if len(r.buffer) == r.blockSize {
			r.emit(r.buffer)
			r.buffer = make([]float32, 0, r.blockSize)
		}
	}
}

func (r *Reframer) emit(block []float32) {
	select {
	case r.blocks <- block:
	default:
		r.dropped++
		log.Warn().Int("block_size", len(block)).Int("dropped", r.dropped).Msg("Block queue full, dropping block")
	}
}

func (r *Reframer) Blocks() <-chan []float32 {
	return r.blocks
}

// Dropped is the number of blocks discarded because the queue was full.
func (r *Reframer) Dropped() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.dropped
}

// Stop flushes the trailing partial block and closes the channel.
func (r *Reframer) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true

	if len(r.buffer) > 0 {
		r.emit(r.buffer)
		r.buffer = nil
	}
	close(r.blocks)
}
