package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// The OpenAI speech API ships a fixed voice roster.
var openAIVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo",
	"fable", "nova", "onyx", "sage", "shimmer",
}

type voiceOption struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Path     string `json:"path,omitempty"`
}

// ListVoices returns the voices available for each provider: the OpenAI
// roster plus any reference audio files found for the local server.
func (s *Server) ListVoices(c *gin.Context) {
	options := make([]voiceOption, 0, len(openAIVoices))
	for _, v := range openAIVoices {
		options = append(options, voiceOption{Name: v, Provider: "openai"})
	}

	voiceDir := filepath.Join(s.cfg.DataDir, "voices")
	if entries, err := os.ReadDir(voiceDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext != ".wav" && ext != ".mp3" && ext != ".ogg" && ext != ".flac" {
				continue
			}
			path := filepath.Join(voiceDir, e.Name())
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			options = append(options, voiceOption{
				Name:     e.Name(),
				Provider: "local",
				Path:     path,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"voices": options})
}
