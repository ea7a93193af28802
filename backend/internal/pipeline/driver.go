package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"unicode/utf8"

	"audiobook-forge/backend/internal/audio"
	"audiobook-forge/backend/internal/checkpoint"
	"audiobook-forge/backend/internal/segment"
	"audiobook-forge/backend/internal/tts"
)

// Failure records one work item the driver gave up on. The job carries on;
// the caller decides whether the remaining audio is worth assembling.
type Failure struct {
	ItemID string
	Err    error
}

// ItemFailure is the serializable form of a Failure carried on progress
// events and job results.
type ItemFailure struct {
	ItemID string `json:"itemId"`
	Reason string `json:"reason"`
}

// FailureDetails converts driver failures into their payload form.
func FailureDetails(failures []Failure) []ItemFailure {
	if len(failures) == 0 {
		return nil
	}
	out := make([]ItemFailure, len(failures))
	for i, f := range failures {
		out[i] = ItemFailure{ItemID: f.ItemID, Reason: f.Err.Error()}
	}
	return out
}

// DriverResult summarizes a generation pass.
type DriverResult struct {
	Completed int
	Cached    int
	Failures  []Failure
}

// ProgressFunc receives one callback per settled work item. kind is one of
// "cached", "done" or "failed".
type ProgressFunc func(settled, total int, itemID, kind string)

// Driver executes a plan sequentially against one TTS provider. Items are
// processed in order; completed items are skipped via the checkpoint store,
// and failures are recorded without stopping the run.
type Driver struct {
	Provider      tts.Provider
	Store         checkpoint.Store
	Retry         RetryPolicy
	TempDir       string
	Voice         tts.VoiceParams
	MinChunkChars int
	OnProgress    ProgressFunc
}

// Run works through the plan. It returns an error only for environmental
// problems (temp dir, cancellation); provider failures land in Failures.
func (d *Driver) Run(ctx context.Context, plan *Plan) (DriverResult, error) {
	if err := os.MkdirAll(d.TempDir, 0755); err != nil {
		return DriverResult{}, fmt.Errorf("create temp dir: %w", err)
	}

	var res DriverResult
	total := len(plan.Items)
	settled := 0

	report := func(itemID, kind string) {
		settled++
		if d.OnProgress != nil {
			d.OnProgress(settled, total, itemID, kind)
		}
	}

	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if d.Store.IsDone(item.ID) {
			res.Cached++
			report(item.ID, "cached")
			continue
		}

		path, err := d.generate(ctx, item)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			log.Printf("[Driver] Item %s failed: %v", item.ID, err)
			if merr := d.Store.MarkFailed(item.ID, err.Error()); merr != nil {
				log.Printf("[Driver] Recording failure for %s: %v", item.ID, merr)
			}
			res.Failures = append(res.Failures, Failure{ItemID: item.ID, Err: err})
			report(item.ID, "failed")
			continue
		}

		if err := d.Store.MarkDone(item.ID, path, utf8.RuneCountInString(item.Text)); err != nil {
			return res, fmt.Errorf("checkpoint %s: %w", item.ID, err)
		}
		res.Completed++
		report(item.ID, "done")
	}

	return res, nil
}

// generate synthesizes one item to a WAV file. On resource exhaustion it
// re-segments the text at progressively smaller budgets, down to
// MinChunkChars, and merges the pieces.
func (d *Driver) generate(ctx context.Context, item WorkItem) (string, error) {
	path := filepath.Join(d.TempDir, item.ID+".wav")

	err := d.Retry.Do(ctx, func() error {
		return d.synthToFile(ctx, item.Text, path)
	})
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, tts.ErrResourceExhausted) {
		return "", err
	}

	for size := utf8.RuneCountInString(item.Text) / 2; size >= d.MinChunkChars; size /= 2 {
		log.Printf("[Driver] Item %s exhausted provider resources, retrying at %d chars", item.ID, size)
		if perr := d.generatePieces(ctx, item, size, path); perr == nil {
			return path, nil
		} else if !errors.Is(perr, tts.ErrResourceExhausted) {
			return "", perr
		}
	}
	return "", err
}

func (d *Driver) generatePieces(ctx context.Context, item WorkItem, size int, outPath string) error {
	pieces := segment.Segment(item.Text, segment.Chars(size))
	if len(pieces) < 2 {
		return fmt.Errorf("%w: cannot split further", tts.ErrResourceExhausted)
	}

	paths := make([]string, 0, len(pieces))
	defer func() {
		for _, p := range paths {
			os.Remove(p)
		}
	}()

	for i, piece := range pieces {
		p := filepath.Join(d.TempDir, fmt.Sprintf("%s_p%03d.wav", item.ID, i))
		err := d.Retry.Do(ctx, func() error {
			return d.synthToFile(ctx, piece, p)
		})
		if err != nil {
			return err
		}
		paths = append(paths, p)
	}

	return audio.MergeFiles(paths, outPath, 0)
}

func (d *Driver) synthToFile(ctx context.Context, text, path string) error {
	a, err := d.Provider.Synthesize(ctx, text, d.Voice)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, a.WAV, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
