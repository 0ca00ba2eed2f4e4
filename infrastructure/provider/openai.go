// Package provider implements the embedding client against any
// OpenAI-compatible endpoint (OpenAI, LM Studio, Ollama's compat layer).
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	openai "github.com/sashabaranov/go-openai"

	"github.com/schemavault/schemavault/domain/schema"
	"github.com/schemavault/schemavault/domain/search"
)

// errEmbeddingCountMismatch indicates the API returned fewer embedding
// vectors than requested. Retryable: transient upstream issues can produce
// partial responses behind a 200 status.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// OpenAIConfig holds configuration for the embedding client.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Dimension     int
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// OpenAIEmbedder converts texts to fixed-dimension vectors via an
// OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client        *openai.Client
	model         string
	dimension     int
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewOpenAIEmbedder creates an embedder from configuration.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	initialDelay := cfg.InitialDelay
	if initialDelay == 0 {
		initialDelay = 2 * time.Second
	}
	backoffFactor := cfg.BackoffFactor
	if backoffFactor == 0 {
		backoffFactor = 2.0
	}

	return &OpenAIEmbedder{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         model,
		dimension:     cfg.Dimension,
		maxRetries:    maxRetries,
		initialDelay:  initialDelay,
		backoffFactor: backoffFactor,
	}
}

// Embed generates embeddings for the given texts in a single API call.
// Vectors whose length differs from the configured dimension are rejected
// so a misconfigured model never reaches the index.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	err := e.withRetry(ctx, func() error {
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), len(texts))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request: %v", schema.ErrTransient, err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if e.dimension > 0 && len(data.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: model %q returned %d-dimension vector, configured dimension is %d",
				schema.ErrValidation, e.model, len(data.Embedding), e.dimension)
		}
		vec := make([]float32, len(data.Embedding))
		copy(vec, data.Embedding)
		vectors[i] = vec
	}
	return vectors, nil
}

// withRetry executes fn with exponential backoff on retryable errors.
func (e *OpenAIEmbedder) withRetry(ctx context.Context, fn func() error) error {
	op := func() (struct{}, error) {
		err := fn()
		if err != nil && !isRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = e.initialDelay
	expBackoff.Multiplier = e.backoffFactor

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(e.maxRetries+1)),
	)
	return err
}

// isRetryable determines whether an error should be retried.
func isRetryable(err error) bool {
	if errors.Is(err, errEmbeddingCountMismatch) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

var _ search.Embedder = (*OpenAIEmbedder)(nil)
