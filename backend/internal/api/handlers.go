package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"audiobook-forge/backend/internal/config"
)

func (s *Server) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg)
}

func (s *Server) UpdateConfig(c *gin.Context) {
	var newCfg config.Config
	if err := c.ShouldBindJSON(&newCfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Update values; directories and port stay fixed for the process
	// lifetime.
	s.cfg.Provider = newCfg.Provider
	s.cfg.OpenAIModel = newCfg.OpenAIModel
	s.cfg.OpenAIVoice = newCfg.OpenAIVoice
	s.cfg.LocalTTSUrl = newCfg.LocalTTSUrl
	s.cfg.LocalVoice = newCfg.LocalVoice
	s.cfg.OCREnabled = newCfg.OCREnabled
	s.cfg.GeminiModel = newCfg.GeminiModel
	s.cfg.OutputFormat = newCfg.OutputFormat
	s.cfg.Bitrate = newCfg.Bitrate
	s.cfg.FFmpegCmd = newCfg.FFmpegCmd
	s.cfg.ChapterPause = newCfg.ChapterPause
	s.cfg.ChunkChars = newCfg.ChunkChars
	s.cfg.MinChunkChars = newCfg.MinChunkChars
	s.cfg.MaxAttempts = newCfg.MaxAttempts

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save config"})
		return
	}
	c.JSON(http.StatusOK, s.cfg)
}
