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

// OpenAIEngine talks to the OpenAI chat completions API. It also serves any
// OpenAI-compatible provider (local gateways, proxies) via its base URL.
type OpenAIEngine struct {
	id     string
	model  string
	cfg    config.ProviderConfig
	client *http.Client
	retry  RetryPolicy
}

func NewOpenAIEngine(id, model string, cfg config.ProviderConfig, client *http.Client, retry RetryPolicy) *OpenAIEngine {
	return &OpenAIEngine{id: id, model: model, cfg: cfg, client: client, retry: retry}
}

func (e *OpenAIEngine) ID() string       { return e.id }
func (e *OpenAIEngine) Provider() string { return "openai" }

func (e *OpenAIEngine) Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error) {
	body := openAIRequestBody{
		Model:       e.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	return completeWithRetry(ctx, e.retry, func() (*types.CompletionResponse, *EngineError) {
		return e.once(ctx, data)
	})
}

func (e *OpenAIEngine) once(ctx context.Context, data []byte) (*types.CompletionResponse, *EngineError) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, e.fail(0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.fail(0, true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.fail(resp.StatusCode, true, fmt.Errorf("read openai response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, e.fail(resp.StatusCode, retryable(resp.StatusCode),
			fmt.Errorf("openai returned status %d: %s", resp.StatusCode, apiErrorMessage(respBody)))
	}

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, e.fail(resp.StatusCode, false, fmt.Errorf("unmarshal openai response: %w", err))
	}
	if len(oaiResp.Choices) == 0 {
		return nil, e.fail(resp.StatusCode, false, fmt.Errorf("openai response has no choices"))
	}

	choice := oaiResp.Choices[0]
	out := &types.CompletionResponse{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if oaiResp.Usage != nil {
		out.Usage = &types.Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		}
	}
	return out, nil
}

func (e *OpenAIEngine) fail(status int, canRetry bool, err error) *EngineError {
	return &EngineError{
		EngineID:  e.id,
		Provider:  e.Provider(),
		Status:    status,
		Retryable: canRetry,
		Err:       err,
	}
}

// apiErrorMessage pulls the message out of an OpenAI-style error envelope,
// falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return string(body)
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
