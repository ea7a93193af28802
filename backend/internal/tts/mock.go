package tts

import (
	"context"
	"encoding/binary"
	"unicode/utf8"
)

const mockSampleRate = 24000

// MockProvider synthesizes silence sized to the input text, roughly 60 ms per
// character. It exists for tests and for exercising the pipeline without a
// real backend.
type MockProvider struct {
	// Fail, when set, is consulted per call and may return an error to
	// simulate provider failures.
	Fail func(text string) error

	Calls int
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) CostPer1kChars() float64 {
	return 0
}

func (m *MockProvider) Synthesize(ctx context.Context, text string, params VoiceParams) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}
	m.Calls++
	if m.Fail != nil {
		if err := m.Fail(text); err != nil {
			return Audio{}, err
		}
	}

	samples := utf8.RuneCountInString(text) * mockSampleRate * 60 / 1000
	if samples == 0 {
		samples = mockSampleRate / 10
	}
	return Audio{WAV: SilenceWAV(samples, mockSampleRate), SampleRate: mockSampleRate}, nil
}

// SilenceWAV builds a minimal mono 16-bit PCM WAV file of n zero samples.
func SilenceWAV(n, sampleRate int) []byte {
	dataSize := uint32(n * 2)
	buf := make([]byte, 44+int(dataSize))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataSize)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)

	return buf
}
