package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bisq-support/retrieval/internal/core/domain"
	"github.com/bisq-support/retrieval/internal/core/ports"
)

type retrieverFake struct {
	result  ports.RetrievalResult
	err     error
	gotHint domain.ProtocolCategory
	gotHist []domain.ChatTurn
}

func (f *retrieverFake) Retrieve(_ context.Context, query string, history []domain.ChatTurn, hint domain.ProtocolCategory) (*ports.RetrievalResult, error) {
	f.gotHint = hint
	f.gotHist = history
	if f.err != nil {
		return nil, f.err
	}
	return &f.result, nil
}

func doRetrieve(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRetrieveReturnsCandidates(t *testing.T) {
	fake := &retrieverFake{
		result: ports.RetrievalResult{
			Candidates: []domain.ScoredCandidate{
				{
					DocumentID: "w1",
					Title:      "Trade limits",
					Type:       domain.TypeWikiArticle,
					Category:   domain.CategoryBisq2,
					Text:       "Bisq Easy limits...",
					FusedScore: 0.92,
					Stage:      domain.StagePrimary,
				},
			},
			ResolvedQuery: "what are the Bisq Easy trade limits",
			Rewritten:     true,
			Category:      domain.CategoryBisq2,
		},
	}
	handler := NewRouter(fake, nil).Handler()

	rec := doRetrieve(t, handler, `{
		"query": "what are the limits",
		"history": [{"role": "user", "text": "tell me about Bisq Easy"}],
		"protocol_hint": "bisq2"
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp retrieveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].DocumentID != "w1" {
		t.Fatalf("unexpected candidates %+v", resp.Candidates)
	}
	if resp.Candidates[0].Score != 0.92 || resp.Candidates[0].Stage != "primary" {
		t.Errorf("candidate fields not mapped: %+v", resp.Candidates[0])
	}
	if !resp.Rewritten || resp.ResolvedQuery == "" || resp.Category != "bisq2" {
		t.Errorf("result metadata not mapped: %+v", resp)
	}
	if fake.gotHint != domain.CategoryBisq2 {
		t.Errorf("protocol hint = %q, want %q", fake.gotHint, domain.CategoryBisq2)
	}
	if len(fake.gotHist) != 1 || fake.gotHist[0].Role != "user" {
		t.Errorf("history not forwarded: %+v", fake.gotHist)
	}
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	handler := NewRouter(&retrieverFake{}, nil).Handler()
	rec := doRetrieve(t, handler, `{"query": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRetrieveRejectsInvalidJSON(t *testing.T) {
	handler := NewRouter(&retrieverFake{}, nil).Handler()
	rec := doRetrieve(t, handler, `{"query": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRetrieveRejectsWrongMethod(t *testing.T) {
	handler := NewRouter(&retrieverFake{}, nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRetrieveMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is empty")), http.StatusBadRequest},
		{"temporary", domain.WrapError(domain.ErrTemporary, "retrieve", errors.New("backend unavailable")), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRouter(&retrieverFake{err: tc.err}, nil).Handler()
			rec := doRetrieve(t, handler, `{"query": "q"}`)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	handler := NewRouter(&retrieverFake{}, nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestRequestIDHeaderIsSetAndEchoed(t *testing.T) {
	handler := NewRouter(&retrieverFake{}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("request id header should be generated")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "client-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "client-supplied" {
		t.Fatalf("request id = %q, want client-supplied", got)
	}
}
