// Package tts defines the provider contract the generation driver depends on,
// plus the concrete OpenAI and local-server backends.
package tts

import (
	"context"
	"errors"
)

// Audio is one synthesized piece of speech: a complete WAV payload plus its
// sample rate. Ownership passes to the caller.
type Audio struct {
	WAV        []byte
	SampleRate int
}

// VoiceParams selects a voice for synthesis. Instructions only apply to
// providers that support style prompts.
type VoiceParams struct {
	Voice        string
	Speed        float64
	Instructions string
}

// Provider is the abstraction over any TTS backend. Implementations classify
// failures with the sentinel errors below so the driver can tell retryable
// conditions from fatal ones.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, params VoiceParams) (Audio, error)

	// CostPer1kChars is the provider's price in USD per 1000 input
	// characters; zero for local/free backends.
	CostPer1kChars() float64
}

// Failure taxonomy. Providers wrap one of these into returned errors.
var (
	ErrRateLimited       = errors.New("tts: rate limited")
	ErrTransient         = errors.New("tts: transient failure")
	ErrResourceExhausted = errors.New("tts: resource exhausted")
	ErrFatal             = errors.New("tts: fatal provider error")
)

// Retryable reports whether the driver should retry after err. Resource
// exhaustion is retryable too, but the driver additionally shrinks the unit
// of work first.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrResourceExhausted)
}
