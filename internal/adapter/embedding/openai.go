package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"docqa/internal/domain"
)

// OpenAIEmbedder calls any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey    string
	model     string
	baseURL   string
	dimension int
	batchSize int
	client    *http.Client
}

// Options tune an OpenAIEmbedder. Zero values keep the defaults.
type Options struct {
	BaseURL   string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage embeddingUsage  `json:"usage"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIEmbedder(apiKeyEnv, model string, opts Options) (*OpenAIEmbedder, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, opts)
}

func NewDeepSeekEmbedder(apiKeyEnv, model string, opts Options) (*OpenAIEmbedder, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.deepseek.com/v1"
	}
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, opts)
}

func NewJinaEmbedder(apiKeyEnv, model string, opts Options) (*OpenAIEmbedder, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.jina.ai/v1"
	}
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, opts)
}

// NewOllamaEmbedder needs no API key.
func NewOllamaEmbedder(model string, opts Options) (*OpenAIEmbedder, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434/v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	return newEmbedder("ollama", model, opts), nil
}

func NewOpenAICompatibleEmbedder(apiKeyEnv, model string, opts Options) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	return newEmbedder(apiKey, model, opts), nil
}

func newEmbedder(apiKey, model string, opts Options) *OpenAIEmbedder {
	dimension := opts.Dimension
	if dimension == 0 {
		dimension = knownDimension(model)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIEmbedder{
		apiKey:    apiKey,
		model:     model,
		baseURL:   opts.BaseURL,
		dimension: dimension,
		batchSize: batchSize,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func knownDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "jina-embeddings-v3":
		return 1024
	case "jina-embeddings-v4":
		return 2048
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 1536
	}
}

// Embed implements port.Embedder. Texts are sent in batches; any failure
// wraps domain.ErrEmbeddingService.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingService, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Input: texts,
		Model: e.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, preview(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err)
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
