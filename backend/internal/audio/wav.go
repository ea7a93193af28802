// Package audio concatenates generated speech chunks and assembles the final
// audiobook container.
package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Info describes a WAV file's format and length.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   float64 // seconds
}

// Probe reads a WAV file's header and duration.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("%s: not a valid WAV file", path)
	}

	dur, err := dec.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("%s: reading duration: %w", path, err)
	}

	return Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   dur.Seconds(),
	}, nil
}

// Writer appends PCM from multiple WAV files (plus silence) into one output
// file. All inputs must share the writer's sample rate and channel count.
type Writer struct {
	f          *os.File
	enc        *wav.Encoder
	sampleRate int
	channels   int
	bitDepth   int
	frames     int
}

func NewWriter(path string, sampleRate, bitDepth, channels int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &Writer{
		f:          f,
		enc:        wav.NewEncoder(f, sampleRate, bitDepth, channels, 1),
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
	}, nil
}

// AppendFile decodes one WAV file into the output and returns the seconds
// appended.
func (w *Writer) AppendFile(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf.Format.SampleRate != w.sampleRate || buf.Format.NumChannels != w.channels {
		return 0, fmt.Errorf("%s: format %dHz/%dch does not match output %dHz/%dch",
			path, buf.Format.SampleRate, buf.Format.NumChannels, w.sampleRate, w.channels)
	}

	if err := w.enc.Write(buf); err != nil {
		return 0, fmt.Errorf("append %s: %w", path, err)
	}

	frames := len(buf.Data) / w.channels
	w.frames += frames
	return float64(frames) / float64(w.sampleRate), nil
}

// AppendSilence writes the given duration of zero samples.
func (w *Writer) AppendSilence(seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	frames := int(seconds * float64(w.sampleRate))
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: w.sampleRate, NumChannels: w.channels},
		Data:           make([]int, frames*w.channels),
		SourceBitDepth: w.bitDepth,
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("append silence: %w", err)
	}
	w.frames += frames
	return nil
}

// Duration is the total seconds written so far.
func (w *Writer) Duration() float64 {
	return float64(w.frames) / float64(w.sampleRate)
}

// Close finalizes the WAV header.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return w.f.Close()
}

// MergeFiles concatenates WAV files into outPath with optional silence
// between them, using the first input's format.
func MergeFiles(inputs []string, outPath string, silenceSec float64) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input files to merge")
	}

	info, err := Probe(inputs[0])
	if err != nil {
		return err
	}

	w, err := NewWriter(outPath, info.SampleRate, info.BitDepth, info.Channels)
	if err != nil {
		return err
	}

	for i, in := range inputs {
		if i > 0 {
			if err := w.AppendSilence(silenceSec); err != nil {
				w.Close()
				return err
			}
		}
		if _, err := w.AppendFile(in); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
