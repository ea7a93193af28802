// Package checkpoint persists per-work-item completion state so a multi-hour
// generation job can be killed and resumed without re-paying for finished
// work. Two backends exist: a JSON file for the single-process CLI and a
// SQLite database for the web backend, where more than one process may touch
// the same data directory.
package checkpoint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// Status of one work item inside a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Record is the persisted state of a single work item.
type Record struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Chars     int       `json:"chars,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobState summarizes a job's checkpoint on load.
type JobState struct {
	JobKey     string    `json:"job_key"`
	TotalItems int       `json:"total_items"`
	Completed  []string  `json:"completed"`
	Done       bool      `json:"done"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is the checkpoint contract shared by the driver and the orchestrator.
//
// Initialize loads existing state when its item count matches expectedItems;
// any mismatch (changed voice, changed chunking) or unreadable data starts
// fresh instead of failing. Partial audio generated under different settings
// must never leak into a new run.
//
// IsDone and Output verify the recorded audio file still exists on disk; a
// record whose file was deleted out-of-band behaves as not-done.
type Store interface {
	Initialize(expectedItems int) (JobState, error)
	IsDone(id string) bool
	Output(id string) (string, bool)
	MarkDone(id, outputPath string, chars int) error
	MarkFailed(id, reason string) error
	MarkJobComplete() error
	Cleanup() error
	Close() error
}

// JobKey derives a stable job identity from the source file, the output path
// and a fingerprint of the generation settings. Re-running with identical
// inputs maps onto the same checkpoint.
func JobKey(sourcePath, outputPath, fingerprint string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s", sourcePath, outputPath, fingerprint)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// outputExists reports whether a done record's file is still on disk.
func outputExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
