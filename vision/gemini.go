package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Gemini calls the generateContent endpoint with an inline image.
type Gemini struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type generateResponse struct {
	Candidates []struct {
		FinishReason string `json:"finishReason"`
		Content      struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *Gemini) Analyze(ctx context.Context, image []byte, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     0.2,
			MaxOutputTokens: 4096,
			TopP:            0.8,
			TopK:            40,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request error: %v", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s", g.BaseURL, g.Model, g.APIKey)

	// The API answers 503 under load; retry with backoff before giving up.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, retryable, err := g.doRequest(ctx, url, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", lastErr
}

func (g *Gemini) doRequest(ctx context.Context, url string, payload []byte) (text string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("create request error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("request error: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read body error: %v", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return "", true, fmt.Errorf("api overloaded: status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", false, fmt.Errorf("unmarshal response error: %v", err)
	}
	if out.Error != nil {
		return "", false, fmt.Errorf("api error %d: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		if len(out.Candidates) > 0 && out.Candidates[0].FinishReason == "MAX_TOKENS" {
			return "", false, fmt.Errorf("response truncated at token limit")
		}
		return "", false, fmt.Errorf("empty response from model")
	}

	return out.Candidates[0].Content.Parts[0].Text, false, nil
}
