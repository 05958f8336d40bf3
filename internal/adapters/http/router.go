// Package httpadapter exposes the retrieval pipeline over HTTP. The
// surface is intentionally small: one retrieval endpoint plus health and
// metrics.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bisq-support/retrieval/internal/core/domain"
	"github.com/bisq-support/retrieval/internal/core/ports"
	"github.com/bisq-support/retrieval/internal/observability/metrics"
)

type Router struct {
	retriever ports.SupportRetriever
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(retriever ports.SupportRetriever, httpMetrics *metrics.HTTPServerMetrics) *Router {
	return &Router{
		retriever: retriever,
		metrics:   httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatTurnRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type retrieveRequest struct {
	Query        string            `json:"query"`
	History      []chatTurnRequest `json:"history"`
	ProtocolHint string            `json:"protocol_hint"`
}

type candidateResponse struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	Category   string  `json:"category"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Stage      string  `json:"stage"`
}

type retrieveResponse struct {
	Candidates    []candidateResponse `json:"candidates"`
	ResolvedQuery string              `json:"resolved_query"`
	Rewritten     bool                `json:"rewritten"`
	Category      string              `json:"category"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	history := make([]domain.ChatTurn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, domain.ChatTurn{Role: turn.Role, Text: turn.Text})
	}

	result, err := rt.retriever.Retrieve(r.Context(), req.Query, history, domain.ParseProtocolCategory(req.ProtocolHint))
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	candidates := make([]candidateResponse, 0, len(result.Candidates))
	for _, candidate := range result.Candidates {
		candidates = append(candidates, candidateResponse{
			DocumentID: candidate.DocumentID,
			Title:      candidate.Title,
			Type:       string(candidate.Type),
			Category:   string(candidate.Category),
			Text:       candidate.Text,
			Score:      candidate.FusedScore,
			Stage:      string(candidate.Stage),
		})
	}

	writeJSON(w, http.StatusOK, retrieveResponse{
		Candidates:    candidates,
		ResolvedQuery: result.ResolvedQuery,
		Rewritten:     result.Rewritten,
		Category:      string(result.Category),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
