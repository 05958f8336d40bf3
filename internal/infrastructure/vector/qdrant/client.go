// Package qdrant is the semantic search adapter: a typed client for the
// external vector backend. Indexing happens in the external ingestion
// pipeline; the retrieval core only queries.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bisq-support/retrieval/internal/core/domain"
	"github.com/bisq-support/retrieval/internal/infrastructure/resilience"
)

// DefaultScoreThreshold discards weak cosine matches before fusion.
const DefaultScoreThreshold = 0.3

type Client struct {
	baseURL        string
	collection     string
	scoreThreshold float64
	httpClient     *http.Client
	executor       *resilience.Executor
}

type Options struct {
	ScoreThreshold     float64
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, collection string, options Options) *Client {
	threshold := options.ScoreThreshold
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		collection:     collection,
		scoreThreshold: threshold,
		httpClient:     &http.Client{Timeout: timeout},
		executor:       options.ResilienceExecutor,
	}
}

// Search runs a filtered similarity query. Results under the score
// threshold are discarded before they reach fusion.
func (c *Client) Search(ctx context.Context, queryVector []float32, k int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	reqBody := map[string]any{
		"vector":          queryVector,
		"limit":           k,
		"with_payload":    true,
		"score_threshold": c.scoreThreshold,
	}
	if filter.Category != "" {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key":   "category",
					"match": map[string]any{"value": string(filter.Category)},
				},
			},
		}
	}

	var out []domain.RetrievedDocument
	call := func(callCtx context.Context) error {
		docs, err := c.doSearch(callCtx, reqBody)
		if err != nil {
			return err
		}
		out = docs
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant.search", call, classifySearchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doSearch(ctx context.Context, reqBody map[string]any) ([]domain.RetrievedDocument, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return nil, &HTTPStatusError{Operation: "search", StatusCode: resp.StatusCode, Status: resp.Status, Body: msg}
		}
		return nil, &HTTPStatusError{Operation: "search", StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.RetrievedDocument, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		// The backend already applies score_threshold; re-check locally so
		// an older backend version cannot leak weak matches into fusion.
		if r.Score < c.scoreThreshold {
			continue
		}
		out = append(out, domain.RetrievedDocument{
			DocumentID: getStringPayload(r.Payload, "doc_id"),
			Title:      getStringPayload(r.Payload, "title"),
			Type:       domain.DocumentType(getStringPayload(r.Payload, "doc_type")),
			Category:   domain.ParseProtocolCategory(getStringPayload(r.Payload, "category")),
			Text:       getStringPayload(r.Payload, "text"),
			Score:      r.Score,
		})
	}
	return out, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
