// Package pool implements a fixed-type object pool with free-list
// reclamation and handle-based back-references: a chunked-growth,
// never-shrink memory pool suited to an order book's allocation
// pattern.
//
// Records are stored in chunks that are appended, never resized or
// relocated, so a Handle taken from Allocate remains valid (modulo
// reuse detected by its generation counter) for the lifetime of the
// Pool.
package pool

import "sync"

// Handle is an opaque reference to a slot inside a Pool. It encodes
// enough information to detect a stale reference to a slot that has
// since been deallocated and reallocated.
type Handle struct {
	chunk      uint32
	slot       uint32
	generation uint32
}

// Valid reports whether h refers to any slot at all (the zero Handle is
// never returned by Allocate).
func (h Handle) Valid() bool {
	return h.generation != 0
}

// Stats summarizes a pool's allocation activity.
type Stats struct {
	TotalAllocated  int // slots ever carved out of a chunk
	CurrentUsage    int // slots currently allocated (not on the free list)
	PeakUsage       int
	AllocationCount int // cumulative Allocate calls that did not come from the free list or did
	FreeCount       int // slots currently on the free list
}

const initialChunkCapacity = 64

// Pool is a generic fixed-type object pool. The zero value is not
// usable; construct with New.
type Pool[T any] struct {
	mu sync.Mutex

	chunks      [][]T
	generations [][]uint32 // per-slot generation, parallel to chunks
	freeList    []Handle

	totalAllocated  int
	currentUsage    int
	peakUsage       int
	allocationCount int
}

// New creates an empty Pool. The first Allocate call grows an initial
// chunk of capacity initialChunkCapacity.
func New[T any]() *Pool[T] {
	return &Pool[T]{}
}

// Allocate returns a handle to a zero-valued record. If the free list is
// non-empty, a freed slot is reused (its generation incremented so any
// stale handle to it becomes detectably invalid); otherwise the pool
// grows by appending a new chunk of double the previous capacity.
func (p *Pool[T]) Allocate() (Handle, *T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.freeList); n > 0 {
		h := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		var zero T
		p.chunks[h.chunk][h.slot] = zero
		p.currentUsage++
		p.allocationCount++
		if p.currentUsage > p.peakUsage {
			p.peakUsage = p.currentUsage
		}
		return h, &p.chunks[h.chunk][h.slot]
	}

	p.growIfFull()

	chunkIdx := uint32(len(p.chunks) - 1)
	chunk := p.chunks[chunkIdx]
	used := p.totalAllocated - p.chunkStart(chunkIdx)
	slotIdx := uint32(used)

	gen := p.generations[chunkIdx][slotIdx]
	if gen == 0 {
		gen = 1
	}
	p.generations[chunkIdx][slotIdx] = gen

	p.totalAllocated++
	p.currentUsage++
	p.allocationCount++
	if p.currentUsage > p.peakUsage {
		p.peakUsage = p.currentUsage
	}

	h := Handle{chunk: chunkIdx, slot: slotIdx, generation: gen}
	return h, &chunk[slotIdx]
}

// Deallocate pushes h onto the free list without clearing the record's
// contents; the slot's generation is bumped so any handle copy taken
// before this call is detectably stale on the next Get.
func (p *Pool[T]) Deallocate(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.validLocked(h) {
		return
	}
	p.generations[h.chunk][h.slot]++
	if p.generations[h.chunk][h.slot] == 0 {
		p.generations[h.chunk][h.slot] = 1
	}
	h.generation = p.generations[h.chunk][h.slot]
	p.freeList = append(p.freeList, h)
	p.currentUsage--
}

// Get dereferences h, returning nil if h is stale (deallocated and
// possibly reused) or out of range.
func (p *Pool[T]) Get(h Handle) *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(h) {
		return nil
	}
	return &p.chunks[h.chunk][h.slot]
}

func (p *Pool[T]) validLocked(h Handle) bool {
	if int(h.chunk) >= len(p.chunks) {
		return false
	}
	if int(h.slot) >= len(p.chunks[h.chunk]) {
		return false
	}
	return p.generations[h.chunk][h.slot] == h.generation && h.generation != 0
}

// Reset drops the free list and marks every carved-out slot free again,
// without releasing the underlying chunks.
func (p *Pool[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.freeList = p.freeList[:0]
	for c, gens := range p.generations {
		carved := p.totalAllocated - p.chunkStart(uint32(c))
		for s := 0; s < len(gens) && s < carved; s++ {
			p.freeList = append(p.freeList, Handle{
				chunk:      uint32(c),
				slot:       uint32(s),
				generation: gens[s],
			})
		}
	}
	p.currentUsage = 0
}

// Stats reports pool usage.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		TotalAllocated:  p.totalAllocated,
		CurrentUsage:    p.currentUsage,
		PeakUsage:       p.peakUsage,
		AllocationCount: p.allocationCount,
		FreeCount:       len(p.freeList),
	}
}

// growIfFull appends a new chunk when the current chunk (if any) is
// fully carved out. Must be called with p.mu held.
func (p *Pool[T]) growIfFull() {
	if len(p.chunks) == 0 {
		p.appendChunk(initialChunkCapacity)
		return
	}
	last := len(p.chunks) - 1
	if p.totalAllocated-p.chunkStart(uint32(last)) >= len(p.chunks[last]) {
		p.appendChunk(len(p.chunks[last]) * 2)
	}
}

func (p *Pool[T]) appendChunk(capacity int) {
	p.chunks = append(p.chunks, make([]T, capacity))
	p.generations = append(p.generations, make([]uint32, capacity))
}

// chunkStart returns the cumulative slot count of all chunks before idx.
func (p *Pool[T]) chunkStart(idx uint32) int {
	start := 0
	for i := uint32(0); i < idx; i++ {
		start += len(p.chunks[i])
	}
	return start
}
