package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"docqa/internal/port"
)

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	stats Stats
}

// Stats tracks usage across calls.
type Stats struct {
	TotalCalls       int
	FailedCalls      int
	PromptTokens     int
	CompletionTokens int
}

// Options configure a Client. Zero values keep provider defaults.
type Options struct {
	BaseURL           string
	APIKeyEnv         string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unlimited
}

// ChatMessage represents a message in the chat format
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request format for chat completions. Temperature is
// always sent so that zero means deterministic rather than server default.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatResponse is the response format from chat completions
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Provider configurations
var providers = map[string]struct {
	baseURL   string
	keyEnvVar string
}{
	"deepseek": {"https://api.deepseek.com/v1", "DEEPSEEK_API_KEY"},
	"openai":   {"https://api.openai.com/v1", "OPENAI_API_KEY"},
	"ollama":   {"http://localhost:11434/v1", ""},
}

// NewClient creates a client for provider. Unknown providers need an
// explicit BaseURL.
func NewClient(provider, model string, opts Options) (*Client, error) {
	p, ok := providers[provider]
	if !ok && opts.BaseURL == "" {
		return nil, fmt.Errorf("unknown provider: %s (set generation.base_url for custom endpoints)", provider)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = p.baseURL
	}

	keyEnv := opts.APIKeyEnv
	if keyEnv == "" {
		keyEnv = p.keyEnvVar
	}
	apiKey := ""
	if keyEnv != "" {
		apiKey = os.Getenv(keyEnv)
		if apiKey == "" && provider != "ollama" {
			return nil, fmt.Errorf("API key not found. Set %s environment variable", keyEnv)
		}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(opts.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}, nil
}

var _ port.LLM = (*Client)(nil)

// Generate sends prompt as a single user message.
func (c *Client) Generate(ctx context.Context, prompt string, opts port.GenerateOptions) (string, error) {
	return c.Chat(ctx, []ChatMessage{{Role: "user", Content: prompt}}, opts)
}

// Chat sends a chat completion request
func (c *Client) Chat(ctx context.Context, messages []ChatMessage, opts port.GenerateOptions) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	out, usage, err := c.chat(ctx, messages, opts)

	c.mu.Lock()
	c.stats.TotalCalls++
	if err != nil {
		c.stats.FailedCalls++
	}
	c.stats.PromptTokens += usage.PromptTokens
	c.stats.CompletionTokens += usage.CompletionTokens
	c.mu.Unlock()

	return out, err
}

type usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (c *Client) chat(ctx context.Context, messages []ChatMessage, opts port.GenerateOptions) (string, usage, error) {
	req := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", usage{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", usage{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", usage{}, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", usage{}, fmt.Errorf("API returned status %d", resp.StatusCode)
		}
		return "", usage{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResp.Error != nil {
		return "", usage{}, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", usage{}, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if len(chatResp.Choices) == 0 {
		return "", usage{}, fmt.Errorf("no response from LLM")
	}

	u := usage{
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
	}
	return chatResp.Choices[0].Message.Content, u, nil
}

func (c *Client) ModelName() string {
	return c.model
}

// GetStats returns a snapshot of usage statistics.
func (c *Client) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
