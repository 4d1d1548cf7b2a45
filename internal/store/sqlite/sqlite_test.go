package sqlite

import (
	"path/filepath"
	"testing"

	"simpletasks/internal/store"
)

// mustNew creates an in-memory store and registers cleanup
func mustNew(t *testing.T) *Slots {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestSlotsImplementsInterface verifies the Slots type implements store.Slots.
func TestSlotsImplementsInterface(t *testing.T) {
	var _ store.Slots = (*Slots)(nil)
}

// TestGetMissing verifies an unset key reports ok=false without error.
func TestGetMissing(t *testing.T) {
	s := mustNew(t)

	_, ok, err := s.Get("books")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok {
		t.Error("Get on unset key returned ok=true")
	}
}

// TestPutOverwrites verifies Put upserts the whole value.
func TestPutOverwrites(t *testing.T) {
	s := mustNew(t)

	if err := s.Put("books", []byte(`[1]`)); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := s.Put("books", []byte(`[1,2]`)); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, ok, err := s.Get("books")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if string(got) != "[1,2]" {
		t.Errorf("Get = %q, want %q", got, "[1,2]")
	}

	mod, err := s.Modified("books")
	if err != nil {
		t.Fatalf("Modified error: %v", err)
	}
	if mod.IsZero() {
		t.Error("Modified should be set after Put")
	}
}

// TestKeysAreIndependent verifies the two list slots do not interfere.
func TestKeysAreIndependent(t *testing.T) {
	s := mustNew(t)

	_ = s.Put("books", []byte(`["b"]`))
	_ = s.Put("tasks", []byte(`["t"]`))

	books, _, _ := s.Get("books")
	tasks, _, _ := s.Get("tasks")
	if string(books) != `["b"]` || string(tasks) != `["t"]` {
		t.Errorf("books = %s, tasks = %s", books, tasks)
	}
}

// TestPersistsAcrossReopen verifies data survives closing the database.
func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simpletasks.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	type task struct {
		ID   int64  `json:"id"`
		Text string `json:"text"`
	}
	if err := store.Save(s, "tasks", []task{{ID: 1, Text: "persist me"}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	_ = s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer func() { _ = s.Close() }()

	got := store.Load[task](s, "tasks")
	if len(got) != 1 || got[0].Text != "persist me" {
		t.Errorf("Load after reopen = %+v", got)
	}
}
