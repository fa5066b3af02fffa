package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/helix-labs/helix/internal/config"
	"github.com/helix-labs/helix/internal/types"
)

const anthropicVersion = "2023-06-01"

// anthropicDefaultMaxTokens applies when the caller sets no limit; the
// Anthropic API requires max_tokens.
const anthropicDefaultMaxTokens = 4096

// AnthropicEngine talks to the Anthropic Messages API. The system message is
// extracted from the message array into the top-level system field.
type AnthropicEngine struct {
	id     string
	model  string
	cfg    config.ProviderConfig
	client *http.Client
	retry  RetryPolicy
}

func NewAnthropicEngine(id, model string, cfg config.ProviderConfig, client *http.Client, retry RetryPolicy) *AnthropicEngine {
	return &AnthropicEngine{id: id, model: model, cfg: cfg, client: client, retry: retry}
}

func (e *AnthropicEngine) ID() string       { return e.id }
func (e *AnthropicEngine) Provider() string { return "anthropic" }

func (e *AnthropicEngine) Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error) {
	var system string
	var messages []anthropicMessage
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			system = m.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body := anthropicRequestBody{
		Model:       e.model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	return completeWithRetry(ctx, e.retry, func() (*types.CompletionResponse, *EngineError) {
		return e.once(ctx, data)
	})
}

func (e *AnthropicEngine) once(ctx context.Context, data []byte) (*types.CompletionResponse, *EngineError) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, e.fail(0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", e.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.fail(0, true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.fail(resp.StatusCode, true, fmt.Errorf("read anthropic response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, e.fail(resp.StatusCode, retryable(resp.StatusCode),
			fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, apiErrorMessage(respBody)))
	}

	var antResp anthropicResponseBody
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		return nil, e.fail(resp.StatusCode, false, fmt.Errorf("unmarshal anthropic response: %w", err))
	}

	var text string
	for _, block := range antResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &types.CompletionResponse{
		Text: text,
		Usage: &types.Usage{
			PromptTokens:     antResp.Usage.InputTokens,
			CompletionTokens: antResp.Usage.OutputTokens,
			TotalTokens:      antResp.Usage.InputTokens + antResp.Usage.OutputTokens,
		},
		FinishReason: mapStopReason(antResp.StopReason),
	}, nil
}

func (e *AnthropicEngine) fail(status int, canRetry bool, err error) *EngineError {
	return &EngineError{
		EngineID:  e.id,
		Provider:  e.Provider(),
		Status:    status,
		Retryable: canRetry,
		Err:       err,
	}
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stop        []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
