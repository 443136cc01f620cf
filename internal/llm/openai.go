package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const openaiChatCompletionsURL = "https://api.openai.com/v1/chat/completions"

// openaiProvider 通过 chat/completions 接口调用 OpenAI。
type openaiProvider struct {
	apiKey     string
	model      string
	proModel   string
	httpClient *http.Client

	// baseURL 为空时使用官方地址，测试中指向本地服务。
	baseURL string
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

func (p *openaiProvider) name() string { return "openai" }

func (p *openaiProvider) modelFor(premium bool) string {
	if premium {
		return p.proModel
	}
	return p.model
}

func (p *openaiProvider) complete(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(openaiRequest{
		Model:    model,
		Messages: []openaiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	url := openaiChatCompletionsURL
	if p.baseURL != "" {
		url = p.baseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var parsed openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai response has no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
