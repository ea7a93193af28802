package document

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// OCR transcribes a rendered page image into plain text.
type OCR interface {
	TranscribePage(ctx context.Context, image []byte, mimeType string) (string, error)
}

const ocrPrompt = "Transcribe all text visible in this book page image. " +
	"Return only the text content in reading order, with paragraph breaks preserved. " +
	"Ignore page numbers, headers and footers. If the page contains no text, return an empty response."

// GeminiOCR reads scanned pages through the Gemini vision models. It is the
// fallback for PDF pages where text extraction comes back empty.
type GeminiOCR struct {
	client *genai.Client
	model  string
}

func NewGeminiOCR(ctx context.Context, apiKey, model string) (*GeminiOCR, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiOCR{client: client, model: model}, nil
}

func (g *GeminiOCR) TranscribePage(ctx context.Context, image []byte, mimeType string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, mimeType),
		genai.NewPartFromText(ocrPrompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini ocr: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
