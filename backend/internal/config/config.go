package config

import (
	"encoding/json"
	"os"
	"sync"
)

type Config struct {
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`   // Checkpoints and job metadata
	UploadDir string `json:"upload_dir"` // Uploaded books
	OutputDir string `json:"output_dir"` // Final audiobooks, served at /output
	TempDir   string `json:"temp_dir"`   // Per-job chunk audio

	Provider     string  `json:"provider"`      // "openai" or "local"
	OpenAIModel  string  `json:"openai_model"`  // Default "gpt-4o-mini-tts"
	OpenAIVoice  string  `json:"openai_voice"`  // Default "coral"
	LocalTTSUrl  string  `json:"local_tts_url"` // Local TTS server base URL
	LocalVoice   string  `json:"local_voice"`   // Reference voice for the local server
	OCREnabled   bool    `json:"ocr_enabled"`   // Gemini OCR fallback for scanned PDF pages
	GeminiModel  string  `json:"gemini_model"`  // OCR model
	OutputFormat string  `json:"output_format"` // "m4b" or "wav"
	Bitrate      string  `json:"bitrate"`       // Muxer audio bitrate, e.g. "128k"
	FFmpegCmd    string  `json:"ffmpeg_cmd"`    // Override, parsed shell-style ("ffmpeg -loglevel error")
	ChapterPause float64 `json:"chapter_pause"` // Silence between chapters in seconds

	ChunkChars    int    `json:"chunk_chars"`     // Segmenter budget per TTS request
	MinChunkChars int    `json:"min_chunk_chars"` // Floor when shrinking on resource exhaustion
	MaxAttempts   int    `json:"max_attempts"`    // Provider retry cap per work item
	Checkpoints   string `json:"checkpoints"`     // "file" or "sqlite"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex
)

const ConfigFile = "config.json"

func Load() *Config {
	once.Do(func() {
		instance = &Config{
			Port:          "8080",
			DataDir:       "data",
			UploadDir:     "uploads",
			OutputDir:     "data/out",
			TempDir:       "data/temp",
			Provider:      "openai",
			OpenAIModel:   "gpt-4o-mini-tts",
			OpenAIVoice:   "coral",
			LocalTTSUrl:   "http://127.0.0.1:7860",
			OCREnabled:    true,
			GeminiModel:   "gemini-2.0-flash",
			OutputFormat:  "m4b",
			Bitrate:       "128k",
			ChapterPause:  2.5,
			ChunkChars:    2800,
			MinChunkChars: 400,
			MaxAttempts:   3,
			Checkpoints:   "sqlite",
		}

		// Try to load from file
		file, err := os.ReadFile(ConfigFile)
		if err == nil {
			_ = json.Unmarshal(file, instance)
		}
	})
	return instance
}

func (c *Config) Save() error {
	mu.Lock()
	defer mu.Unlock()

	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigFile, bytes, 0644)
}

func Get() *Config {
	if instance == nil {
		return Load()
	}
	return instance
}
