package sessionlib

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// PersistenceStore load/save errors.
var (
	// ErrNoCheckpoint means no checkpoint has been persisted yet.
	ErrNoCheckpoint = errors.New("no checkpoint persisted")
	// ErrCheckpointCorrupted means the persisted checkpoint failed to decode
	// or its checksum did not match.
	ErrCheckpointCorrupted = errors.New("persisted checkpoint is corrupted")
)

// Checkpoint is the persisted snapshot of the session record used for crash
// recovery.
type Checkpoint struct {
	// Record is the full session record at persistence time.
	Record SessionRecord
	// PersistedAt is the time the checkpoint was written.
	PersistedAt time.Time
	// Checksum is derived from the record identity (id, start time, planned
	// duration); see RecordChecksum.
	Checksum string
}

// PersistenceStore provides durable load/save of the single session
// checkpoint with integrity verification.
type PersistenceStore interface {
	// Save persists a checkpoint of the record.
	Save(r *SessionRecord, now time.Time) error
	// Load returns the last checkpoint. It returns ErrNoCheckpoint when
	// nothing was persisted and ErrCheckpointCorrupted when the stored data
	// fails integrity verification.
	Load() (*Checkpoint, error)
	// Clear discards the persisted checkpoint, if any.
	Clear() error
}

// FileStore persists the checkpoint as a single gob-encoded file on an
// afero filesystem. Writes are buffer-first so a failed encode never
// truncates an existing good checkpoint.
type FileStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore writing to path on fs. Pass
// afero.NewOsFs() for a real on-disk store.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// Save encodes the record with its checksum and writes it atomically enough
// for a single-owner store: encode to memory first, then one WriteFile.
func (s *FileStore) Save(r *SessionRecord, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := Checkpoint{
		Record:      *r,
		PersistedAt: now,
		Checksum:    checksumOf(r),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&cp); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Load reads and verifies the last checkpoint.
func (s *FileStore) Load() (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoCheckpoint
	}

	var cp Checkpoint
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cp); err != nil {
		return nil, ErrCheckpointCorrupted
	}
	if cp.Checksum != checksumOf(&cp.Record) {
		return nil, ErrCheckpointCorrupted
	}
	return &cp, nil
}

// Clear removes the checkpoint file. A missing file is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

var _ PersistenceStore = (*FileStore)(nil)

// MemStore is an in-memory PersistenceStore for embedding the engine without
// durability (and for tests that inject failures).
type MemStore struct {
	mu   sync.Mutex
	cp   *Checkpoint
	fail error // if set, Save returns this error
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore { return &MemStore{} }

// FailWith makes subsequent Save calls return err.
func (s *MemStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Save stores a copy of the record.
func (s *MemStore) Save(r *SessionRecord, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.cp = &Checkpoint{Record: *r, PersistedAt: now, Checksum: checksumOf(r)}
	return nil
}

// Load returns the stored checkpoint.
func (s *MemStore) Load() (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return nil, ErrNoCheckpoint
	}
	cp := *s.cp
	return &cp, nil
}

// Clear discards the stored checkpoint.
func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp = nil
	return nil
}

var _ PersistenceStore = (*MemStore)(nil)
