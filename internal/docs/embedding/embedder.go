// Package embedding turns text into fixed-length vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	errors "github.com/Laisky/errors/v2"
	pgvector "github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"
)

const defaultBatchSize = 32

// Embedder converts text into vector representations, one per input in order.
type Embedder interface {
	EmbedTexts(ctx context.Context, inputs []string) ([]pgvector.Vector, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	limiter    *rate.Limiter
	httpClient *http.Client
}

// OpenAIOption customizes an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithDimensions requests and enforces a vector width.
func WithDimensions(dimensions int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.dimensions = dimensions
	}
}

// WithRateLimit paces outgoing requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithBatchSize overrides how many inputs go into one request.
func WithBatchSize(size int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// NewOpenAIEmbedder constructs an embedder for the configured model.
func NewOpenAIEmbedder(baseURL, apiKey, model string, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	e := &OpenAIEmbedder{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		batchSize:  defaultBatchSize,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.baseURL == "" {
		return nil, errors.New("missing embeddings base url")
	}
	if e.apiKey == "" {
		return nil, errors.New("missing api key for embeddings")
	}
	if e.model == "" {
		return nil, errors.New("missing embeddings model")
	}
	return e, nil
}

// EmbedTexts batches the inputs and returns their vectors in input order.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, inputs []string) ([]pgvector.Vector, error) {
	if e == nil {
		return nil, errors.New("embedder is nil")
	}
	if len(inputs) == 0 {
		return nil, errors.New("no inputs provided for embedding")
	}

	vectors := make([]pgvector.Vector, 0, len(inputs))
	for start := 0; start < len(inputs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch := inputs[start:end]

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, "wait for embeddings rate limit")
			}
		}
		resp, err := e.createEmbeddings(ctx, batch)
		if err != nil {
			return nil, errors.Wrap(err, "create embeddings")
		}
		if len(resp.Data) != len(batch) {
			return nil, errors.Errorf("embeddings count mismatch: got %d, want %d", len(resp.Data), len(batch))
		}

		sort.SliceStable(resp.Data, func(i, j int) bool {
			return resp.Data[i].Index < resp.Data[j].Index
		})
		for _, data := range resp.Data {
			if e.dimensions > 0 && len(data.Embedding) != e.dimensions {
				return nil, errors.Errorf("embedding dimension mismatch: got %d, want %d", len(data.Embedding), e.dimensions)
			}
			values := make([]float32, len(data.Embedding))
			for i, value := range data.Embedding {
				values[i] = float32(value)
			}
			vectors = append(vectors, pgvector.NewVector(values))
		}
	}

	return vectors, nil
}

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []embeddingsDataItem `json:"data"`
}

type embeddingsDataItem struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// createEmbeddings sends one embeddings batch request and parses vectors from response.
func (e *OpenAIEmbedder) createEmbeddings(ctx context.Context, batch []string) (*embeddingsResponse, error) {
	body, err := json.Marshal(embeddingsRequest{Model: e.model, Input: batch, Dimensions: e.dimensions})
	if err != nil {
		return nil, errors.Wrap(err, "marshal embeddings request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build embeddings request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "call embeddings endpoint")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, errors.Errorf("embeddings endpoint status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded embeddingsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "decode embeddings response")
	}

	return &decoded, nil
}
