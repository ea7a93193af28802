package audio

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Group is one chapter's worth of work items, in document order. Auxiliary
// segments (intro, title announcement, outro) are groups of their own.
type Group struct {
	Title   string
	ItemIDs []string
}

// Result describes the produced artifact.
type Result struct {
	Path     string
	Markers  []Marker
	Muxed    bool
	Duration float64
}

// Assembler concatenates completed chunk audio in document order, inserts
// chapter pauses, computes chapter markers and muxes the result into the
// target container. A failed or unavailable muxer degrades to the raw WAV.
type Assembler struct {
	TempDir      string
	Muxer        *Muxer
	ChapterPause float64 // silence between chapter groups, seconds
}

// Assemble builds the final artifact at outPath. lookup resolves a work item
// id to its completed audio path; items without output are skipped, and
// groups with no playable items produce no marker.
func (a *Assembler) Assemble(ctx context.Context, groups []Group, lookup func(id string) (string, bool), outPath string, meta Metadata) (Result, error) {
	type pending struct {
		title string
		paths []string
	}
	var plan []pending
	for _, g := range groups {
		p := pending{title: g.Title}
		for _, id := range g.ItemIDs {
			if path, ok := lookup(id); ok {
				p.paths = append(p.paths, path)
			}
		}
		if len(p.paths) > 0 {
			plan = append(plan, p)
		}
	}
	if len(plan) == 0 {
		return Result{}, fmt.Errorf("no completed audio to assemble")
	}

	info, err := Probe(plan[0].paths[0])
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(a.TempDir, 0755); err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	combined := filepath.Join(a.TempDir, "combined.wav")

	w, err := NewWriter(combined, info.SampleRate, info.BitDepth, info.Channels)
	if err != nil {
		return Result{}, err
	}

	var markers []Marker
	for gi, g := range plan {
		if gi > 0 {
			if err := w.AppendSilence(a.ChapterPause); err != nil {
				w.Close()
				return Result{}, err
			}
		}

		start := w.Duration()
		if len(markers) > 0 {
			markers[len(markers)-1].End = start
		}
		markers = append(markers, Marker{Title: g.title, Start: start})

		for _, path := range g.paths {
			if _, err := w.AppendFile(path); err != nil {
				w.Close()
				return Result{}, err
			}
		}
	}

	if err := w.Close(); err != nil {
		return Result{}, err
	}
	total := w.Duration()
	markers[len(markers)-1].End = total

	res := Result{Markers: markers, Duration: total}

	// Raw WAV requested: no muxing step at all.
	if strings.EqualFold(filepath.Ext(outPath), ".wav") {
		if err := moveFile(combined, outPath); err != nil {
			return Result{}, fmt.Errorf("move output: %w", err)
		}
		res.Path = outPath
		return res, nil
	}

	if a.Muxer != nil {
		if err := a.Muxer.Mux(ctx, combined, markers, meta, outPath); err == nil {
			os.Remove(combined)
			res.Path = outPath
			res.Muxed = true
			return res, nil
		} else {
			log.Printf("[Assemble] Muxing failed, keeping raw audio: %v", err)
		}
	}

	// Degraded result: hand back the concatenated WAV rather than losing
	// hours of generated speech.
	fallback := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".wav"
	if err := moveFile(combined, fallback); err != nil {
		return Result{}, fmt.Errorf("move fallback output: %w", err)
	}
	res.Path = fallback
	return res, nil
}

// moveFile prefers a rename and falls back to copying when the source and
// destination sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
