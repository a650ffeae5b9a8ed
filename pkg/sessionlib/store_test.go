package sessionlib

import (
	"bytes"
	"encoding/gob"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/data/session.vigil")

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := testRecord(start, 5*time.Hour)
	rec.ExecutionCount = 7
	rec.AccumulatedPaused = 12 * time.Minute
	rec.LastError = NewSessionError(KindTimingPrecisionLost, errors.New("drift"))
	rec.appendSleepWake(start.Add(time.Hour), SleepEvent)

	now := start.Add(2 * time.Hour)
	if err := store.Save(rec, now); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cp.PersistedAt.Equal(now) {
		t.Errorf("persisted at = %v, want %v", cp.PersistedAt, now)
	}
	got := cp.Record
	if got.ID != rec.ID || got.ExecutionCount != 7 || got.AccumulatedPaused != 12*time.Minute {
		t.Errorf("record mismatch: %+v", got)
	}
	if got.LastError == nil || got.LastError.Kind != KindTimingPrecisionLost {
		t.Errorf("last error not restored: %+v", got.LastError)
	}
	if len(got.SleepWakeLog) != 1 {
		t.Errorf("sleep/wake log not restored: %+v", got.SleepWakeLog)
	}
}

func TestFileStoreNoCheckpoint(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "/data/session.vigil")
	if _, err := store.Load(); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("load on empty store = %v, want ErrNoCheckpoint", err)
	}
}

func TestFileStoreCorruptedData(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/data/session.vigil")

	if err := afero.WriteFile(fs, "/data/session.vigil", []byte("not a checkpoint"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrCheckpointCorrupted) {
		t.Errorf("load of garbage = %v, want ErrCheckpointCorrupted", err)
	}
}

func TestFileStoreChecksumMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/data/session.vigil")

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := testRecord(start, 5*time.Hour)
	if err := store.Save(rec, start); err != nil {
		t.Fatal(err)
	}

	// Rewrite the checkpoint with a tampered identity but the stale checksum.
	cp, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	cp.Record.ID = "tampered"
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/data/session.vigil", buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(); !errors.Is(err, ErrCheckpointCorrupted) {
		t.Errorf("load of tampered checkpoint = %v, want ErrCheckpointCorrupted", err)
	}
}

func TestFileStoreClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/data/session.vigil")

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Save(testRecord(start, time.Hour), start); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("load after clear = %v, want ErrNoCheckpoint", err)
	}
	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestMemStoreFailWith(t *testing.T) {
	store := NewMemStore()
	boom := errors.New("disk full")
	store.FailWith(boom)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Save(testRecord(start, time.Hour), start); !errors.Is(err, boom) {
		t.Errorf("save = %v, want injected failure", err)
	}
}
