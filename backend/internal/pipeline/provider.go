package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"

	"audiobook-forge/backend/internal/config"
	"audiobook-forge/backend/internal/document"
	"audiobook-forge/backend/internal/tts"
)

// ProviderFromConfig builds the configured TTS backend. name overrides the
// config when non-empty.
func ProviderFromConfig(cfg *config.Config, name string) (tts.Provider, error) {
	if name == "" {
		name = cfg.Provider
	}
	switch name {
	case "openai":
		return tts.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIModel)
	case "local":
		return tts.NewLocalProvider(cfg.LocalTTSUrl), nil
	case "mock":
		return &tts.MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q (want openai, local or mock)", name)
	}
}

// OCRFromConfig builds the vision OCR fallback, or nil when disabled or not
// configured. A missing key downgrades to no OCR rather than failing.
func OCRFromConfig(ctx context.Context, cfg *config.Config) document.OCR {
	if !cfg.OCREnabled {
		return nil
	}
	ocr, err := document.NewGeminiOCR(ctx, os.Getenv("GEMINI_API_KEY"), cfg.GeminiModel)
	if err != nil {
		log.Printf("[Pipeline] OCR disabled: %v", err)
		return nil
	}
	return ocr
}
