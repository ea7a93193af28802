package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// fileState is the on-disk JSON layout. Unknown extra fields are ignored on
// load, so older binaries tolerate newer files.
type fileState struct {
	JobKey     string            `json:"job_key"`
	TotalItems int               `json:"total_items"`
	Done       bool              `json:"done"`
	StartedAt  time.Time         `json:"started_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Records    map[string]Record `json:"records"`
}

// FileStore keeps checkpoint state in a single JSON file, written atomically
// (temp file, fsync, rename). Single writer per job is a hard precondition.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// NewFileStore creates a store for jobKey under dir. The file is hidden the
// same way the progress files of typical converters are: ".<key>.progress.json".
func NewFileStore(dir, jobKey string) *FileStore {
	return &FileStore{
		path: filepath.Join(dir, fmt.Sprintf(".%s.progress.json", jobKey)),
		state: fileState{
			JobKey:  jobKey,
			Records: make(map[string]Record),
		},
	}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Initialize(expectedItems int) (JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := fileState{
		JobKey:     s.state.JobKey,
		TotalItems: expectedItems,
		StartedAt:  time.Now(),
		Records:    make(map[string]Record),
	}

	data, err := os.ReadFile(s.path)
	if err == nil {
		var loaded fileState
		if jsonErr := json.Unmarshal(data, &loaded); jsonErr == nil &&
			loaded.TotalItems == expectedItems && !loaded.Done {
			if loaded.Records == nil {
				loaded.Records = make(map[string]Record)
			}
			s.state = loaded
			return s.snapshotLocked(), nil
		}
		// Corrupt, completed, or generated under different settings: start over.
	}

	s.state = fresh
	if err := s.saveLocked(); err != nil {
		return JobState{}, err
	}
	return s.snapshotLocked(), nil
}

func (s *FileStore) IsDone(id string) bool {
	_, ok := s.Output(id)
	return ok
}

func (s *FileStore) Output(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Records[id]
	if !ok || rec.Status != StatusDone {
		return "", false
	}
	if !outputExists(rec.Output) {
		return "", false
	}
	return rec.Output, true
}

func (s *FileStore) MarkDone(id, outputPath string, chars int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Records[id] = Record{
		ID:        id,
		Status:    StatusDone,
		Output:    outputPath,
		Chars:     chars,
		UpdatedAt: time.Now(),
	}
	return s.saveLocked()
}

func (s *FileStore) MarkFailed(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Records[id] = Record{
		ID:        id,
		Status:    StatusFailed,
		Reason:    reason,
		UpdatedAt: time.Now(),
	}
	return s.saveLocked()
}

func (s *FileStore) MarkJobComplete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Done = true
	return s.saveLocked()
}

func (s *FileStore) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) Close() error {
	return nil
}

// saveLocked writes the state atomically: a crash mid-write leaves either the
// old file or the new one, never a truncated record that reads as done.
func (s *FileStore) saveLocked() error {
	s.state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) snapshotLocked() JobState {
	st := JobState{
		JobKey:     s.state.JobKey,
		TotalItems: s.state.TotalItems,
		Done:       s.state.Done,
		StartedAt:  s.state.StartedAt,
		UpdatedAt:  s.state.UpdatedAt,
	}
	for id, rec := range s.state.Records {
		if rec.Status == StatusDone && outputExists(rec.Output) {
			st.Completed = append(st.Completed, id)
		}
	}
	sort.Strings(st.Completed)
	return st
}
