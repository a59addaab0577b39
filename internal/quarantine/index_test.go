package quarantine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testEntry(id string, recordedAt time.Time) *Entry {
	return &Entry{
		ID:             id,
		OriginalPath:   "/home/alice/" + id + ".pdf",
		QuarantinePath: "/var/quarantine/20250101_120000_000000/" + id + ".pdf",
		RecordedAt:     recordedAt,
		SHA256:         "deadbeef",
	}
}

func TestIndexRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	defer idx.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	newer := testEntry("id-newer", base.Add(time.Hour))
	older := testEntry("id-older", base)

	// Insert out of order; List must sort by quarantine time.
	if err := idx.Put(newer); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := idx.Put(older); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := idx.Get("id-older")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.OriginalPath != older.OriginalPath || !got.RecordedAt.Equal(older.RecordedAt) {
		t.Errorf("Get() = %+v, want %+v", got, older)
	}

	entries, err := idx.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].ID != "id-older" || entries[1].ID != "id-newer" {
		t.Errorf("List() order = %s, %s; want id-older, id-newer", entries[0].ID, entries[1].ID)
	}

	if err := idx.Delete("id-older"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := idx.Get("id-older"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestIndexPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	if err := idx.Put(testEntry("survivor", time.Now().UTC())); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	idx, err = OpenIndex(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer idx.Close()

	got, err := idx.Get("survivor")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.SHA256 != "deadbeef" {
		t.Errorf("SHA256 = %q after reopen, want deadbeef", got.SHA256)
	}
}

func TestIndexClosed(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := idx.Put(testEntry("x", time.Now())); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("Put() error = %v, want ErrIndexClosed", err)
	}
	if _, err := idx.Get("x"); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("Get() error = %v, want ErrIndexClosed", err)
	}
	if _, err := idx.List(); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("List() error = %v, want ErrIndexClosed", err)
	}
	if err := idx.Delete("x"); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("Delete() error = %v, want ErrIndexClosed", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
