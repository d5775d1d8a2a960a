// Package batchstore is the content-addressed cache of pending and decided
// command batches keyed by types.BatchId (spec.md §4, "Batch Store").
// Entries are written once and never mutated after insertion, so the store
// only needs a read/write mutex guarding the map itself, not the entries.
package batchstore

import (
	"sync"

	"github.com/rabia-project/rabia/types"
)

// Batch is the immutable unit of replication: one origin's ordered list of
// opaque, origin-encoded commands, identified by BatchId.
type Batch struct {
	ID       types.BatchId
	Origin   types.NodeId
	Commands [][]byte
	// CorrelationId is only meaningful on the origin node, where it keys the
	// promise apply() is waiting on; it is not required to be populated by
	// other nodes storing a batch received via NewBatch.
	CorrelationId types.CorrelationId
}

// Store is a concurrent, write-once-per-key cache of Batches.
type Store struct {
	mu    sync.RWMutex
	byID  map[types.BatchId]Batch
	queue []types.BatchId // proposable queue, FIFO, origin-local only
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[types.BatchId]Batch)}
}

// Put inserts b if its id is not already present. Returns false if the id
// was already known, in which case the existing entry is left untouched
// (batches are immutable once stored).
func (s *Store) Put(b Batch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[b.ID]; exists {
		return false
	}
	s.byID[b.ID] = b
	return true
}

// Get returns the batch for id, if known.
func (s *Store) Get(id types.BatchId) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	return b, ok
}

// Has reports whether id is present without copying the batch.
func (s *Store) Has(id types.BatchId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Evict removes every id in ids, used by periodic cleanup (§4.4.8) once
// their owning phases have aged past the retention window.
func (s *Store) Evict(ids []types.BatchId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.byID, id)
	}
}

// Len reports the number of batches currently cached.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// PushProposable appends id to the tail of the local proposable queue. Only
// meaningful on the node that originates id (§4.4.2 step 5), but carry-over
// on skip (§4.4.7) re-enqueues a foreign-looking but locally-originated id
// at the head via PushProposableFront.
func (s *Store) PushProposable(id types.BatchId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, id)
}

// PushProposableFront re-inserts id at the head of the proposable queue
// (carry-over on a V0/skip decision, §4.4.7).
func (s *Store) PushProposableFront(id types.BatchId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append([]types.BatchId{id}, s.queue...)
}

// PopProposable removes and returns the head of the proposable queue. The
// second return is false when the queue is empty, the caller's cue to
// propose the skip sentinel.
func (s *Store) PopProposable() (types.BatchId, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return types.BatchId{}, false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	return id, true
}

// ProposableLen reports how many batches are queued to be proposed.
func (s *Store) ProposableLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}
