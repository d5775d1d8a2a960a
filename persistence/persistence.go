// Package persistence saves and loads the engine's minimal recovery state
// (spec.md §4.7, §6.4): SavedState{appliedPhase, snapshot}. There is no
// command log; every restart either resumes from the latest snapshot or
// falls back to a fresh state machine. Storage is a single-bucket bbolt
// database, whose transactional commit already gives the "write-tmp-then-
// rename or equivalent" atomicity §6.4 asks for; the snapshot bytes are
// additionally compressed with klauspost/compress's zstd encoder since
// state-machine snapshots are the one place in this engine where payload
// size is large enough for compression to matter.
package persistence

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"

	"github.com/rabia-project/rabia/types"
)

var (
	bucketName = []byte("rabia")
	stateKey   = []byte("saved_state")
	poisonKey  = []byte("poisoned")
)

// Store persists types.SavedState to a local bbolt database.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("persistence: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: initializing bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes state as the new latest-wins record, compressing the
// snapshot payload. The bbolt transaction commit is the atomic replace.
func (s *Store) Save(state types.SavedState) error {
	compressed, err := compress(state.Snapshot)
	if err != nil {
		return fmt.Errorf("persistence: compressing snapshot: %w", err)
	}
	record := encodeRecord(state.AppliedPhase, compressed)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(stateKey, record)
	})
}

// Load reads the latest SavedState. ok is false if nothing has been saved
// yet, the §4.7 "else reset()" startup path.
func (s *Store) Load() (state types.SavedState, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get(stateKey)
		if data == nil {
			return nil
		}
		phase, compressed, decodeErr := decodeRecord(data)
		if decodeErr != nil {
			return decodeErr
		}
		snapshot, decErr := decompress(compressed)
		if decErr != nil {
			return decErr
		}
		state = types.SavedState{AppliedPhase: phase, Snapshot: snapshot}
		ok = true
		return nil
	})
	if err != nil {
		return types.SavedState{}, false, fmt.Errorf("persistence: loading state: %w", err)
	}
	return state, ok, nil
}

// MarkPoisoned records a fatal invariant violation (§7's "log, write poison
// marker, stop" path). Open does not check the marker; a later Poisoned call
// reports it, and node.New refuses to resume a replica whose store has it.
func (s *Store) MarkPoisoned(reason string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(poisonKey, []byte(reason))
	})
}

// Poisoned reports whether this store was previously marked poisoned, and
// the reason recorded at the time.
func (s *Store) Poisoned() (reason string, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get(poisonKey)
		if data == nil {
			return nil
		}
		reason, ok = string(data), true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("persistence: reading poison marker: %w", err)
	}
	return reason, ok, nil
}

func encodeRecord(phase types.Phase, compressedSnapshot []byte) []byte {
	buf := make([]byte, 8+len(compressedSnapshot))
	binary.BigEndian.PutUint64(buf[:8], uint64(phase))
	copy(buf[8:], compressedSnapshot)
	return buf
}

func decodeRecord(data []byte) (types.Phase, []byte, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("persistence: corrupt record, too short (%d bytes)", len(data))
	}
	phase := types.Phase(binary.BigEndian.Uint64(data[:8]))
	return phase, data[8:], nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
