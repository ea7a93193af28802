package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

// Per-1k-character pricing for the speech models we know about.
var openAIPricing = map[string]float64{
	"gpt-4o-mini-tts": 0.015,
	"tts-1":           0.015,
	"tts-1-hd":        0.030,
}

// OpenAI WAV responses are 24 kHz mono PCM.
const openAISampleRate = 24000

// OpenAIProvider speaks to the OpenAI audio.speech endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrFatal)
	}
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai/" + p.model
}

func (p *OpenAIProvider) CostPer1kChars() float64 {
	if rate, ok := openAIPricing[p.model]; ok {
		return rate
	}
	return openAIPricing["gpt-4o-mini-tts"]
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, text string, params VoiceParams) (Audio, error) {
	voice := params.Voice
	if voice == "" {
		voice = "coral"
	}
	speed := params.Speed
	if speed == 0 {
		speed = 1.0
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          speed,
	})
	if err != nil {
		return Audio{}, classifyOpenAIError(err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: reading speech response: %v", ErrTransient, err)
	}
	if len(data) == 0 {
		return Audio{}, fmt.Errorf("%w: empty speech response", ErrTransient)
	}

	return Audio{WAV: data, SampleRate: openAISampleRate}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		default:
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
