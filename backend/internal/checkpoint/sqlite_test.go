package checkpoint

import (
	"os"
	"testing"
)

func openTestSQLite(t *testing.T, dir, jobKey string) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(dir, jobKey)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreResume(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.wav")

	s := openTestSQLite(t, dir, "job1")
	if _, err := s.Initialize(2); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := s.MarkDone("a", out, 100); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	s2 := openTestSQLite(t, dir, "job1")
	state, err := s2.Initialize(2)
	if err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	if len(state.Completed) != 1 || state.Completed[0] != "a" {
		t.Fatalf("completed = %v, want [a]", state.Completed)
	}
	if got, ok := s2.Output("a"); !ok || got != out {
		t.Fatalf("Output = %q, %v; want %q, true", got, ok, out)
	}
}

func TestSQLiteStoreJobsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.wav")

	s1 := openTestSQLite(t, dir, "job1")
	s1.Initialize(1)
	s1.MarkDone("a", out, 10)

	s2 := openTestSQLite(t, dir, "job2")
	s2.Initialize(1)
	if s2.IsDone("a") {
		t.Error("jobs must not see each other's items")
	}
}

func TestSQLiteStoreItemCountMismatchResets(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.wav")

	s := openTestSQLite(t, dir, "job1")
	s.Initialize(2)
	s.MarkDone("a", out, 10)

	state, err := s.Initialize(4)
	if err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	if len(state.Completed) != 0 {
		t.Fatalf("completed = %v, want empty after plan change", state.Completed)
	}
	if s.IsDone("a") {
		t.Error("stale item must not survive a plan change")
	}
}

func TestSQLiteStoreDeletedOutputNotDone(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.wav")

	s := openTestSQLite(t, dir, "job1")
	s.Initialize(1)
	s.MarkDone("a", out, 10)

	os.Remove(out)
	if s.IsDone("a") {
		t.Error("item with deleted output must read as not done")
	}
}

func TestSQLiteStoreCleanup(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.wav")

	s := openTestSQLite(t, dir, "job1")
	s.Initialize(1)
	s.MarkDone("a", out, 10)

	if err := s.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	state, err := s.Initialize(1)
	if err != nil {
		t.Fatalf("initialize after cleanup: %v", err)
	}
	if len(state.Completed) != 0 {
		t.Fatalf("completed = %v, want empty after cleanup", state.Completed)
	}
}
