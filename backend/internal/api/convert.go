package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"audiobook-forge/backend/internal/jobs"
	"audiobook-forge/backend/internal/pipeline"
	"audiobook-forge/backend/internal/tts"
)

type convertRequest struct {
	BookPath          string   `json:"bookPath" binding:"required"`
	Provider          string   `json:"provider"`
	Voice             string   `json:"voice"`
	Instructions      string   `json:"instructions"`
	Speed             float64  `json:"speed"`
	Format            string   `json:"format"`
	IncludeChapters   []string `json:"includeChapters"`
	ExcludeChapters   []string `json:"excludeChapters"`
	AnnounceChapters  *bool    `json:"announceChapters"`
	IntroText         string   `json:"introText"`
	OutroText         string   `json:"outroText"`
	TitleAnnouncement string   `json:"titleAnnouncement"`
}

// StartConversion launches a conversion job for an uploaded book. One job
// runs at a time; progress flows through SSE and the websocket hub.
func (s *Server) StartConversion(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := os.Stat(req.BookPath); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Book file not found, upload it first"})
		return
	}

	opts := s.optionsFromRequest(req)
	if err := opts.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider, err := pipeline.ProviderFromConfig(s.cfg, req.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, ctx, err := s.manager.Start(req.BookPath)
	if err != nil {
		if errors.Is(err, jobs.ErrJobAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "A conversion is already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	outputPath := s.outputPathFor(req.BookPath, opts)
	go s.runConversion(ctx, job.ID, provider, pipeline.Request{
		InputPath:  req.BookPath,
		OutputPath: outputPath,
		Options:    opts,
	})

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) runConversion(ctx context.Context, jobID string, provider tts.Provider, req pipeline.Request) {
	orch := &pipeline.Orchestrator{
		Config:   s.cfg,
		Provider: provider,
		OCR:      pipeline.OCRFromConfig(ctx, s.cfg),
		OnEvent: func(ev pipeline.Event) {
			s.manager.Apply(jobID, ev)
		},
	}

	out, err := orch.Run(ctx, req)
	title := ""
	resultPath := ""
	var failures []pipeline.ItemFailure
	if out != nil {
		if out.Document != nil {
			title = out.Document.Title
		}
		resultPath = out.Result.Path
		failures = pipeline.FailureDetails(out.Failures)
	}
	s.manager.Finish(jobID, resultPath, title, failures)
	if err != nil {
		log.Printf("[API] Job %s ended: %v", jobID, err)
	}
}

func (s *Server) optionsFromRequest(req convertRequest) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Voice.Name = s.cfg.OpenAIVoice
	opts.Output.Format = s.cfg.OutputFormat
	opts.Output.Bitrate = s.cfg.Bitrate
	opts.Conversion.ChapterPause = s.cfg.ChapterPause
	opts.Conversion.ChunkChars = s.cfg.ChunkChars
	opts.Conversion.MinChunkChars = s.cfg.MinChunkChars
	opts.Conversion.MaxAttempts = s.cfg.MaxAttempts

	if req.Voice != "" {
		opts.Voice.Name = req.Voice
	}
	if req.Instructions != "" {
		opts.Voice.Instruct = req.Instructions
	}
	if req.Speed != 0 {
		opts.Voice.Speed = req.Speed
	}
	if req.Format != "" {
		opts.Output.Format = req.Format
	}
	if req.AnnounceChapters != nil {
		opts.Conversion.AnnounceChapters = *req.AnnounceChapters
	}
	opts.Chapters.Include = req.IncludeChapters
	opts.Chapters.Exclude = req.ExcludeChapters
	opts.IntroText = req.IntroText
	opts.OutroText = req.OutroText
	opts.TitleAnnouncement = req.TitleAnnouncement
	return opts
}

func (s *Server) outputPathFor(bookPath string, opts pipeline.Options) string {
	base := strings.TrimSuffix(filepath.Base(bookPath), filepath.Ext(bookPath))
	base = strings.ReplaceAll(base, " ", "_")
	name := fmt.Sprintf("%s_%s.%s", base, opts.VoiceSlug(), opts.Output.Format)
	return filepath.Join(s.cfg.OutputDir, name)
}

// GetJob returns the current state of one job.
func (s *Server) GetJob(c *gin.Context) {
	job, ok := s.manager.Get(c.Param("jobID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// CancelJob stops a running job; its checkpoint stays resumable.
func (s *Server) CancelJob(c *gin.Context) {
	err := s.manager.Cancel(c.Param("jobID"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Cancellation requested"})
	case errors.Is(err, jobs.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job"})
	case errors.Is(err, jobs.ErrNoRunningJob):
		c.JSON(http.StatusConflict, gin.H{"error": "Job is not running"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
