package audio_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"audiobook-forge/backend/internal/audio"
	"audiobook-forge/backend/internal/tts"
)

const testRate = 24000

func writeSilence(t *testing.T, dir, name string, seconds float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	samples := int(seconds * testRate)
	if err := os.WriteFile(path, tts.SilenceWAV(samples, testRate), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()
	path := writeSilence(t, dir, "a.wav", 1.0)

	info, err := audio.Probe(path)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.SampleRate != testRate || info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("format = %dHz/%dch/%dbit, want %d/1/16", info.SampleRate, info.Channels, info.BitDepth, testRate)
	}
	if math.Abs(info.Duration-1.0) > 0.01 {
		t.Errorf("duration = %f, want 1.0", info.Duration)
	}
}

func TestProbeRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.wav")
	os.WriteFile(path, []byte("this is not audio"), 0644)

	if _, err := audio.Probe(path); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}

func TestMergeFilesDurationsAdd(t *testing.T) {
	dir := t.TempDir()
	a := writeSilence(t, dir, "a.wav", 1.0)
	b := writeSilence(t, dir, "b.wav", 0.5)
	out := filepath.Join(dir, "merged.wav")

	if err := audio.MergeFiles([]string{a, b}, out, 0.25); err != nil {
		t.Fatalf("merge: %v", err)
	}

	info, err := audio.Probe(out)
	if err != nil {
		t.Fatalf("probe merged: %v", err)
	}
	want := 1.0 + 0.25 + 0.5
	if math.Abs(info.Duration-want) > 0.01 {
		t.Errorf("merged duration = %f, want %f", info.Duration, want)
	}
}

func TestMergeFilesNoInputs(t *testing.T) {
	if err := audio.MergeFiles(nil, filepath.Join(t.TempDir(), "out.wav"), 0); err == nil {
		t.Fatal("expected error for empty input list")
	}
}
