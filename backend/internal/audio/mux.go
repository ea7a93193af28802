package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// ErrMuxUnavailable reports that the external muxing tool could not be found.
// Callers degrade to the raw concatenated audio instead of failing the job.
var ErrMuxUnavailable = errors.New("muxing tool unavailable")

// Marker is a chapter time range embedded in the output container.
type Marker struct {
	Title string
	Start float64 // seconds
	End   float64 // seconds
}

// Metadata is the book-level metadata written into the container.
type Metadata struct {
	Title     string
	Author    string
	Album     string
	Genre     string
	Year      string
	CoverPath string
}

// Muxer wraps the external ffmpeg binary that merges raw audio, chapter
// markers and metadata into an M4B container.
type Muxer struct {
	command []string
	bitrate string
}

// NewMuxer builds a muxer. command may be empty (plain "ffmpeg") or a
// shell-style override like "ffmpeg -loglevel error".
func NewMuxer(command, bitrate string) (*Muxer, error) {
	args := []string{"ffmpeg"}
	if command != "" {
		parsed, err := shellwords.Parse(command)
		if err != nil {
			return nil, fmt.Errorf("parse muxer command: %w", err)
		}
		if len(parsed) > 0 {
			args = parsed
		}
	}
	if bitrate == "" {
		bitrate = "128k"
	}
	return &Muxer{command: args, bitrate: bitrate}, nil
}

// Available checks that the external binary exists on PATH.
func (m *Muxer) Available() error {
	if _, err := exec.LookPath(m.command[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrMuxUnavailable, err)
	}
	return nil
}

// Mux embeds markers, metadata and an optional cover into outPath.
func (m *Muxer) Mux(ctx context.Context, audioPath string, markers []Marker, meta Metadata, outPath string) error {
	if err := m.Available(); err != nil {
		return err
	}

	metaFile, err := writeFFMetadata(filepath.Dir(outPath), markers, meta)
	if err != nil {
		return err
	}
	defer os.Remove(metaFile)

	args := append([]string{}, m.command[1:]...)
	args = append(args, "-y", "-i", audioPath, "-i", metaFile)

	hasCover := false
	if meta.CoverPath != "" {
		if _, err := os.Stat(meta.CoverPath); err == nil {
			args = append(args, "-i", meta.CoverPath)
			hasCover = true
		}
	}

	args = append(args, "-map", "0:a", "-map_metadata", "1")
	if hasCover {
		args = append(args, "-map", "2:v", "-c:v", "mjpeg", "-disposition:v:0", "attached_pic")
	}
	args = append(args, "-c:a", "aac", "-b:a", m.bitrate, outPath)

	cmd := exec.CommandContext(ctx, m.command[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("muxing failed: %w: %s", err, truncateOutput(out))
	}
	return nil
}

// writeFFMetadata emits an FFMETADATA1 file. Timestamps convert to integer
// milliseconds by truncation; each chapter's END is taken from the next
// chapter's START so adjacent markers stay exactly contiguous.
func writeFFMetadata(dir string, markers []Marker, meta Metadata) (string, error) {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")

	writeTag := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s=%s\n", key, escapeMetadata(value))
		}
	}
	writeTag("title", meta.Title)
	writeTag("artist", meta.Author)
	writeTag("album", meta.Album)
	writeTag("genre", meta.Genre)
	writeTag("date", meta.Year)

	startMs := make([]int64, len(markers))
	for i, mk := range markers {
		startMs[i] = int64(mk.Start * 1000)
	}
	for i, mk := range markers {
		endMs := int64(mk.End * 1000)
		if i+1 < len(markers) {
			endMs = startMs[i+1]
		}
		b.WriteString("\n[CHAPTER]\nTIMEBASE=1/1000\n")
		fmt.Fprintf(&b, "START=%d\n", startMs[i])
		fmt.Fprintf(&b, "END=%d\n", endMs)
		fmt.Fprintf(&b, "title=%s\n", escapeMetadata(mk.Title))
	}

	f, err := os.CreateTemp(dir, "ffmetadata-*.txt")
	if err != nil {
		return "", fmt.Errorf("create metadata file: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write metadata file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close metadata file: %w", err)
	}
	return f.Name(), nil
}

func escapeMetadata(value string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		"=", "\\=",
		";", "\\;",
		"#", "\\#",
		"\n", " ",
	)
	return r.Replace(value)
}

func truncateOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		return s[len(s)-400:]
	}
	return s
}
