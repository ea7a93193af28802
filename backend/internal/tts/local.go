package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
)

// LocalProvider drives a locally hosted TTS server exposing the Gradio event
// protocol (Index-TTS style). The model is a single stateful instance holding
// GPU or unified memory, so a mutex serializes all calls through one handle;
// concurrent jobs must share one LocalProvider value.
type LocalProvider struct {
	client *resty.Client
	url    string

	mu sync.Mutex
	// Remote paths of already-uploaded reference voices, keyed by local path.
	uploaded map[string]string
}

func NewLocalProvider(baseURL string) *LocalProvider {
	return &LocalProvider{
		client:   resty.New(),
		url:      strings.TrimRight(baseURL, "/"),
		uploaded: make(map[string]string),
	}
}

func (p *LocalProvider) Name() string {
	return "local"
}

func (p *LocalProvider) CostPer1kChars() float64 {
	return 0
}

func (p *LocalProvider) Synthesize(ctx context.Context, text string, params VoiceParams) (Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	voice := params.Voice
	if voice != "" {
		remote, err := p.ensureVoiceUploaded(ctx, voice)
		if err != nil {
			return Audio{}, err
		}
		voice = remote
	}

	speed := params.Speed
	if speed == 0 {
		speed = 1.0
	}

	var voiceRef interface{}
	if voice != "" {
		voiceRef = map[string]interface{}{
			"path": voice,
			"meta": map[string]string{"_type": "gradio.FileData"},
		}
	}

	payload := map[string]interface{}{
		"data": []interface{}{text, voiceRef, speed},
	}

	// Step 1: POST to obtain the event ID.
	var initResult struct {
		EventID string `json:"event_id"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&initResult).
		Post(p.url + "/gradio_api/call/synthesize")
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if resp.IsError() {
		return Audio{}, classifyLocalStatus(resp.StatusCode(), resp.String())
	}
	if initResult.EventID == "" {
		return Audio{}, fmt.Errorf("%w: no event_id returned", ErrFatal)
	}

	// Step 2: GET the event stream and take the last data line.
	streamResp, err := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("%s/gradio_api/call/synthesize/%s", p.url, initResult.EventID))
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer streamResp.RawBody().Close()

	body, err := io.ReadAll(streamResp.RawBody())
	if err != nil {
		return Audio{}, fmt.Errorf("%w: reading event stream: %v", ErrTransient, err)
	}

	resultPath, err := parseEventStream(string(body))
	if err != nil {
		return Audio{}, err
	}

	// Step 3: download the produced audio.
	fileURL := resultPath
	if !strings.HasPrefix(resultPath, "http") {
		fileURL = fmt.Sprintf("%s/file=%s", p.url, resultPath)
	}
	audioResp, err := p.client.R().SetContext(ctx).Get(fileURL)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: downloading audio: %v", ErrTransient, err)
	}
	if audioResp.IsError() {
		return Audio{}, classifyLocalStatus(audioResp.StatusCode(), audioResp.String())
	}

	return Audio{WAV: audioResp.Body(), SampleRate: 0}, nil
}

// ensureVoiceUploaded pushes a local reference-voice file to the server once
// and reuses the remote path for subsequent calls.
func (p *LocalProvider) ensureVoiceUploaded(ctx context.Context, voicePath string) (string, error) {
	if remote, ok := p.uploaded[voicePath]; ok {
		return remote, nil
	}
	if _, err := os.Stat(voicePath); err != nil {
		// Not a local file; pass through as a server-side path.
		return voicePath, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetFile("files", voicePath).
		Post(p.url + "/gradio_api/upload")
	if err != nil {
		return "", fmt.Errorf("%w: uploading voice: %v", ErrTransient, err)
	}
	if resp.IsError() {
		return "", classifyLocalStatus(resp.StatusCode(), resp.String())
	}

	var paths []string
	if err := json.Unmarshal(resp.Body(), &paths); err != nil || len(paths) == 0 {
		return "", fmt.Errorf("%w: no paths returned from voice upload", ErrFatal)
	}

	p.uploaded[voicePath] = paths[0]
	return paths[0], nil
}

// parseEventStream extracts the produced file path from a Gradio event
// response. The server sends "event:"/"data:" blocks; the last data line
// carries the result list.
func parseEventStream(body string) (string, error) {
	var lastData string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			lastData = strings.TrimPrefix(line, "data: ")
		}
	}
	if lastData == "" {
		return "", fmt.Errorf("%w: no data in event stream", ErrTransient)
	}

	var dataList []interface{}
	if err := json.Unmarshal([]byte(lastData), &dataList); err != nil {
		return "", classifyLocalBody(lastData)
	}
	if len(dataList) == 0 {
		return "", fmt.Errorf("%w: empty result data", ErrTransient)
	}

	if fileObj, ok := dataList[0].(map[string]interface{}); ok {
		if val, ok := fileObj["value"].(map[string]interface{}); ok {
			fileObj = val
		}
		if u, ok := fileObj["url"].(string); ok && u != "" {
			return u, nil
		}
		if path, ok := fileObj["path"].(string); ok && path != "" {
			return path, nil
		}
	}
	if path, ok := dataList[0].(string); ok && path != "" {
		return path, nil
	}
	return "", fmt.Errorf("%w: could not find audio path in result", ErrFatal)
}

func classifyLocalStatus(status int, body string) error {
	switch {
	case status == 429:
		return fmt.Errorf("%w: server status %d", ErrRateLimited, status)
	case status == 503 || looksExhausted(body):
		return fmt.Errorf("%w: server status %d: %s", ErrResourceExhausted, status, truncate(body, 200))
	case status >= 500:
		return fmt.Errorf("%w: server status %d: %s", ErrTransient, status, truncate(body, 200))
	default:
		return fmt.Errorf("%w: server status %d: %s", ErrFatal, status, truncate(body, 200))
	}
}

func classifyLocalBody(body string) error {
	if looksExhausted(body) {
		return fmt.Errorf("%w: %s", ErrResourceExhausted, truncate(body, 200))
	}
	return fmt.Errorf("%w: unexpected server response: %s", ErrTransient, truncate(body, 200))
}

// looksExhausted matches the memory-pressure messages on-device model
// servers emit when a request does not fit.
func looksExhausted(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "out of memory") ||
		strings.Contains(lower, "resource exhausted") ||
		strings.Contains(lower, "mps") ||
		strings.Contains(lower, "cuda")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
