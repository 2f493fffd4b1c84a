package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"policyqa/types"
)

// OllamaLLM calls an Ollama-compatible generate endpoint. A nil *OllamaLLM is
// a valid "no model configured" state: callers check for nil and skip the
// generative path.
type OllamaLLM struct {
	client    *http.Client
	apiURL    string
	modelName string
	system    string
	timeout   time.Duration
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaLLM(apiURL, modelName, system string, timeout time.Duration) *OllamaLLM {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OllamaLLM{
		client:    &http.Client{},
		apiURL:    apiURL,
		modelName: modelName,
		system:    system,
		timeout:   timeout,
	}
}

// Complete sends prompt to the model and returns the full response text.
// Streamed responses are reassembled into one string.
func (l *OllamaLLM) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:  l.modelName,
		System: l.system,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s", types.ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: %s", types.ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d, body: %s", types.ErrGenerationUnavailable, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %s", types.ErrGenerationUnavailable, err)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response, nil
	}

	// Some deployments stream regardless of the stream flag.
	var b strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk generateResponse
		if err := decoder.Decode(&chunk); err != nil {
			break
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty response", types.ErrGenerationUnavailable)
	}
	return b.String(), nil
}

// ExtractJSON cuts the first top-level JSON object out of a model response.
// Models routinely wrap JSON in prose or markdown fences.
func ExtractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start == -1 || end == -1 || end <= start {
		return s, errors.New("no valid json found")
	}
	return s[start : end+1], nil
}

// BuildRepairPrompt asks the model to fix its own invalid JSON output.
func BuildRepairPrompt(badOutput string) string {
	return fmt.Sprintf(`
You previously returned an invalid JSON.

Your task is to FIX the JSON.

RULES:
- Output ONLY valid JSON
- Do NOT add or remove information
- Do NOT add explanations
- Do NOT include markdown
- Do NOT include text outside JSON

INVALID OUTPUT:
<<<
%s
>>>

Return the corrected JSON only.
`, badOutput)
}
