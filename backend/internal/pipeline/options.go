// Package pipeline turns a parsed book into narrated audio: it plans work
// items, drives the TTS provider with retries and checkpoints, estimates
// cost, and sequences the whole conversion from parse to assembled output.
package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"audiobook-forge/backend/internal/document"
)

// Options is the per-conversion configuration, loadable from a YAML file.
// Zero values fall back to DefaultOptions so a partial file only overrides
// what it names.
type Options struct {
	Voice struct {
		Name     string  `yaml:"name"`
		Slug     string  `yaml:"slug"`
		Instruct string  `yaml:"instruct"`
		Speed    float64 `yaml:"speed"`
	} `yaml:"voice"`

	Output struct {
		Format     string `yaml:"format"`
		Bitrate    string `yaml:"bitrate"`
		EmbedCover bool   `yaml:"embed_cover"`
	} `yaml:"output"`

	Conversion struct {
		AnnounceChapters bool    `yaml:"announce_chapters"`
		ChapterPause     float64 `yaml:"chapter_pause"`
		ChunkChars       int     `yaml:"chunk_chars"`
		MinChunkChars    int     `yaml:"min_chunk_chars"`
		MaxAttempts      int     `yaml:"max_attempts"`
	} `yaml:"conversion"`

	TextCleaning document.CleaningOptions `yaml:"text_cleaning"`
	Chapters     document.Filter          `yaml:"chapters"`

	IntroText         string `yaml:"intro_text"`
	OutroText         string `yaml:"outro_text"`
	TitleAnnouncement string `yaml:"title_announcement"`
}

func DefaultOptions() Options {
	var o Options
	o.Voice.Name = "coral"
	o.Voice.Speed = 1.0
	o.Output.Format = "m4b"
	o.Output.Bitrate = "128k"
	o.Output.EmbedCover = true
	o.Conversion.AnnounceChapters = true
	o.Conversion.ChapterPause = 2.5
	o.Conversion.ChunkChars = 2800
	o.Conversion.MinChunkChars = 400
	o.Conversion.MaxAttempts = 3
	o.TextCleaning.CollapseWhitespace = true
	o.TextCleaning.FixHyphenation = true
	return o
}

// LoadOptions reads a YAML options file over the defaults. A missing path
// returns the defaults untouched.
func LoadOptions(path string) (Options, error) {
	o := DefaultOptions()
	if path == "" {
		return o, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return o, nil
		}
		return o, fmt.Errorf("read options: %w", err)
	}
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return o, fmt.Errorf("parse options %s: %w", path, err)
	}
	return o, o.Validate()
}

func (o *Options) Validate() error {
	if o.Conversion.ChunkChars <= 0 {
		return fmt.Errorf("chunk_chars must be positive, got %d", o.Conversion.ChunkChars)
	}
	if o.Conversion.MinChunkChars <= 0 || o.Conversion.MinChunkChars > o.Conversion.ChunkChars {
		return fmt.Errorf("min_chunk_chars must be in (0, chunk_chars], got %d", o.Conversion.MinChunkChars)
	}
	if o.Conversion.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", o.Conversion.MaxAttempts)
	}
	if o.Output.Format != "m4b" && o.Output.Format != "wav" {
		return fmt.Errorf("unsupported output format %q (want m4b or wav)", o.Output.Format)
	}
	if o.Voice.Speed != 0 && (o.Voice.Speed < 0.25 || o.Voice.Speed > 4.0) {
		return fmt.Errorf("voice speed %v out of range [0.25, 4.0]", o.Voice.Speed)
	}
	return nil
}

// VoiceSlug is the filesystem-safe voice label used in output names and
// checkpoint keys.
func (o *Options) VoiceSlug() string {
	if o.Voice.Slug != "" {
		return o.Voice.Slug
	}
	return o.Voice.Name
}

// Fingerprint hashes every option that changes the generated audio. Two runs
// with the same fingerprint may share a checkpoint; any difference keys a
// fresh one.
func (o *Options) Fingerprint() string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%v|%v|%d|%d|%v|%s|%s|%s|%v|%v",
		o.Voice.Name, o.Voice.Instruct, o.Voice.Speed,
		o.Conversion.AnnounceChapters, o.Conversion.ChunkChars, o.Conversion.MinChunkChars,
		o.TextCleaning, o.IntroText, o.OutroText, o.TitleAnnouncement,
		o.Chapters.Include, o.Chapters.Exclude)
	return hex.EncodeToString(h.Sum(nil))[:12]
}
