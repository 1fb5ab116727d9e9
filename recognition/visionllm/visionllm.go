// Package visionllm provides a recognition engine backed by a remote
// OpenAI-compatible vision model. It is slower and costlier than the local
// Tesseract engine and is intended as the coordinator's fallback for frames
// the primary engine reads poorly (stylized UI text, low contrast themes).
package visionllm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/recognition"
)

const transcribePrompt = `Transcribe every distinct piece of text visible in this screenshot.
Respond with a JSON array only, one object per text region:
[{"text":"...","x":0,"y":0,"width":0,"height":0,"confidence":0.0}]
Coordinates are pixels from the top-left corner. Confidence is your own
certainty in [0,1]. Do not include any prose outside the JSON array.`

// Engine implements recognition.Engine against a chat-completions style
// vision endpoint.
type Engine struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	languages  []string
}

// Option mutates an Engine during construction.
type Option func(*Engine)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// WithLanguages records language hints reported through the Engine
// interface. The remote model is multilingual; hints are advisory.
func WithLanguages(langs ...string) Option {
	return func(e *Engine) { e.languages = append([]string(nil), langs...) }
}

// New constructs a vision-model engine for the given endpoint and model.
func New(baseURL, apiKey, model string, opts ...Option) *Engine {
	e := &Engine{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "visionllm" }

func (e *Engine) Languages() []string {
	return append([]string(nil), e.languages...)
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type regionPayload struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Recognize submits the frame to the vision endpoint and parses the
// model's JSON transcription into recognition results.
func (e *Engine) Recognize(ctx context.Context, frame capture.Frame) ([]recognition.Result, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", frame.Format, base64.StdEncoding.EncodeToString(frame.Image))
	reqBody := chatRequest{
		Model: e.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: transcribePrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &recognition.EngineError{
			Engine: e.Name(), FrameID: frame.ID,
			Err: fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: fmt.Errorf("no choices in response")}
	}
	return e.parseRegions(frame, parsed.Choices[0].Message.Content)
}

func (e *Engine) parseRegions(frame capture.Frame, content string) ([]recognition.Result, error) {
	// Models occasionally wrap the array in a markdown fence despite the
	// prompt; strip it before decoding.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var regions []regionPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &regions); err != nil {
		return nil, &recognition.EngineError{Engine: e.Name(), FrameID: frame.ID, Err: fmt.Errorf("parse transcription: %w", err)}
	}
	lang := ""
	if len(e.languages) > 0 {
		lang = e.languages[0]
	}
	results := make([]recognition.Result, 0, len(regions))
	for _, r := range regions {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		conf := r.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		results = append(results, recognition.Result{
			Text:       text,
			Region:     recognition.Region{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height},
			Confidence: conf,
			Language:   lang,
		})
	}
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
