package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"bioforge/internal/config"
)

// Completer 是生成管线消费的补全接口。
// premium 决定使用的模型档位。
type Completer interface {
	Complete(ctx context.Context, prompt string, premium bool) (string, error)
}

// provider 是具体厂商的最小接口，由 Client 统一套上调用策略。
type provider interface {
	complete(ctx context.Context, model, prompt string) (string, error)
	modelFor(premium bool) string
	name() string
}

// Client 为底层厂商调用附加限流、以及瞬时故障的单次重试。
// 上游挂起由各厂商 http.Client 的超时兜底。
type Client struct {
	provider   provider
	limiter    *rate.Limiter
	retryPause time.Duration
}

// statusError 表示上游返回了非 2xx 状态。
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.status, e.body)
}

// NewClient 根据配置构造补全客户端。
func NewClient(cfg config.LLMConfig) (*Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	httpClient := &http.Client{Timeout: timeout}

	var p provider
	switch cfg.Provider {
	case "gemini":
		p = &geminiProvider{
			apiKey:     cfg.GeminiAPIKey,
			model:      cfg.GeminiModel,
			proModel:   cfg.GeminiProModel,
			httpClient: httpClient,
		}
	case "openai":
		p = &openaiProvider{
			apiKey:     cfg.OpenAIAPIKey,
			model:      cfg.OpenAIModel,
			proModel:   cfg.OpenAIProModel,
			httpClient: httpClient,
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		provider:   p,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retryPause: 500 * time.Millisecond,
	}, nil
}

// Provider 返回当前厂商名称，用于计量与日志。
func (c *Client) Provider() string { return c.provider.name() }

// Complete 执行一次补全调用。
// 传输错误与 5xx 重试一次；4xx 视为配置或配额问题，直接返回。
func (c *Client) Complete(ctx context.Context, prompt string, premium bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	model := c.provider.modelFor(premium)

	text, err := c.provider.complete(ctx, model, prompt)
	if err == nil {
		return text, nil
	}
	if !retryable(err) {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(c.retryPause):
	}

	return c.provider.complete(ctx, model, prompt)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	// 非状态错误即传输层故障（超时、连接重置等）。
	return !errors.Is(err, context.Canceled)
}
