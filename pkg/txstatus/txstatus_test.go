package txstatus

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/applier"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "txstatus.db")))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openStore(t)
	id := types.Blake2b([]byte("tx"))

	if err := s.Record(id, applier.StatusFailed, "asset script denied", 42); err != nil {
		t.Fatalf("record: %v", err)
	}

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != applier.StatusFailed || rec.Height != 42 || rec.Reason != "asset script denied" {
		t.Errorf("record = %+v", rec)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	if _, err := s.Get(types.Blake2b([]byte("never"))); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing: %v, want not found", err)
	}
}

func TestRecordOverwrite(t *testing.T) {
	s := openStore(t)
	id := types.Blake2b([]byte("replayed"))

	if err := s.Record(id, applier.StatusApplied, "", 7); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record(id, applier.StatusApplied, "", 7); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != applier.StatusApplied || rec.Height != 7 || rec.Reason != "" {
		t.Errorf("record = %+v", rec)
	}
}
