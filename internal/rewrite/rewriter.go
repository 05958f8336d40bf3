// Package rewrite resolves ambiguous follow-up questions into self-contained
// queries before retrieval. It decides, per query, between a deterministic
// heuristic track and a timeout-bounded model-assisted track, and fails open
// to the original query on every error path.
package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/bisq-support/retrieval/internal/core/domain"
	"github.com/bisq-support/retrieval/internal/core/ports"
)

type Config struct {
	Enabled   bool
	Timeout   time.Duration // model-assisted track bound
	MaxTurns  int           // history window for prompts and cache keys
	CacheSize int
	CacheTTL  time.Duration
	// ModelRatePerSec limits model-assisted rewrites; bursts of repeat
	// queries are served from cache instead.
	ModelRatePerSec float64
	Synonyms        map[string]string
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Timeout:         2 * time.Second,
		MaxTurns:        4,
		CacheSize:       512,
		CacheTTL:        15 * time.Minute,
		ModelRatePerSec: 5,
	}
}

// Resolver implements ports.QueryResolver.
type Resolver struct {
	cfg     Config
	model   ports.CompletionModel
	limiter *rate.Limiter
	cache   *rewriteCache
	logger  *slog.Logger
}

func NewResolver(cfg Config, model ports.CompletionModel, logger *slog.Logger) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 4
	}
	if cfg.Synonyms == nil {
		cfg.Synonyms = defaultSynonyms
	}
	if cfg.ModelRatePerSec <= 0 {
		cfg.ModelRatePerSec = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cfg:     cfg,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(cfg.ModelRatePerSec), 1),
		cache:   newRewriteCache(cfg.CacheSize, cfg.CacheTTL),
		logger:  logger,
	}
}

// Resolve returns the query to retrieve with. It never returns an error and
// never blocks past the configured timeout.
func (r *Resolver) Resolve(ctx context.Context, query string, history []domain.ChatTurn) domain.RewriteOutcome {
	query = strings.TrimSpace(query)
	if !r.cfg.Enabled {
		return domain.RewriteOutcome{Query: query, Reason: "rewriting disabled"}
	}

	attempt, reason := gate(query, history)
	if !attempt {
		return domain.RewriteOutcome{Query: query, Reason: reason}
	}

	key := cacheKey(query, history, r.cfg.MaxTurns)
	if entry, hit := r.cache.get(key); hit {
		return domain.RewriteOutcome{Query: entry.query, Rewritten: entry.rewritten, Reason: "cache"}
	}

	resolved, confident := r.heuristic(query, history)
	if !confident && r.model != nil {
		if modelResolved, ok := r.modelAssisted(ctx, query, history); ok {
			resolved = modelResolved
		}
	}

	rewritten := resolved != query
	r.cache.put(key, resolved, rewritten)

	outcome := domain.RewriteOutcome{Query: resolved, Rewritten: rewritten}
	if !rewritten {
		outcome.Reason = "no confident rewrite"
	}
	return outcome
}

// gate applies the pre-rewrite decision procedure. The returned reason
// explains a pass-through.
func gate(query string, history []domain.ChatTurn) (bool, string) {
	if len(history) == 0 {
		return false, "no history"
	}
	words := len(strings.Fields(query))
	anaphoric := hasAnaphor(query)

	if words > 12 && containsDomainKeyword(query) && !anaphoric {
		return false, "self-contained query"
	}
	if anaphoric {
		return true, ""
	}
	if words < 5 {
		return true, ""
	}
	return false, "no ambiguity detected"
}

var anaphora = map[string]struct{}{
	"it": {}, "that": {}, "this": {}, "those": {}, "they": {},
}

func hasAnaphor(query string) bool {
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if _, ok := anaphora[w]; ok {
			return true
		}
	}
	return false
}

var domainKeywords = []string{
	"bisq", "bsq", "dao", "multisig", "mediation", "arbitration",
	"reputation", "trade", "offer", "wallet", "dispute", "seller", "buyer",
}

func containsDomainKeyword(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// heuristic resolves pronouns against the most recent turns and substitutes
// informal terms with canonical entity names. Deterministic and local; the
// bool reports whether the result is a confident rewrite.
func (r *Resolver) heuristic(query string, history []domain.ChatTurn) (string, bool) {
	resolved := substituteSynonyms(query, r.cfg.Synonyms)

	if hasAnaphor(resolved) {
		if topic := lastMentionedEntity(history); topic != "" {
			resolved = replaceFirstAnaphor(resolved, topic)
		}
	}

	return resolved, resolved != query
}

func substituteSynonyms(query string, synonyms map[string]string) string {
	// Longest phrases first so "old bisq" wins over a bare "bisq" entry.
	phrases := make([]string, 0, len(synonyms))
	for phrase := range synonyms {
		phrases = append(phrases, phrase)
	}
	for i := 0; i < len(phrases); i++ {
		for j := i + 1; j < len(phrases); j++ {
			if len(phrases[j]) > len(phrases[i]) {
				phrases[i], phrases[j] = phrases[j], phrases[i]
			}
		}
	}

	for _, phrase := range phrases {
		for i := 0; i < len(query); {
			consumed, ok := matchPhraseFold(query[i:], phrase)
			if ok {
				query = query[:i] + synonyms[phrase] + query[i+consumed:]
				break
			}
			_, size := utf8.DecodeRuneInString(query[i:])
			i += size
		}
	}
	return query
}

// matchPhraseFold reports whether text starts with phrase under simple
// case folding, and how many bytes of text the match consumed. Matching
// and splicing stay on the same string: folding a rune can change its byte
// length, so offsets into a ToLower copy must never index the original.
func matchPhraseFold(text, phrase string) (int, bool) {
	consumed := 0
	for len(phrase) > 0 {
		if consumed >= len(text) {
			return 0, false
		}
		r, size := utf8.DecodeRuneInString(text[consumed:])
		var folded [utf8.UTFMax]byte
		n := utf8.EncodeRune(folded[:], unicode.ToLower(r))
		if !strings.HasPrefix(phrase, string(folded[:n])) {
			return 0, false
		}
		phrase = phrase[n:]
		consumed += size
	}
	return consumed, true
}

// lastMentionedEntity scans history newest-first for a canonical entity name.
func lastMentionedEntity(history []domain.ChatTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		lower := strings.ToLower(history[i].Text)
		for _, entity := range knownEntities {
			if strings.Contains(lower, strings.ToLower(entity)) {
				return entity
			}
		}
	}
	return ""
}

func replaceFirstAnaphor(query, topic string) string {
	words := strings.Fields(query)
	for i, w := range words {
		core := strings.Trim(w, ".,!?;:\"'")
		if _, ok := anaphora[strings.ToLower(core)]; !ok {
			continue
		}
		idx := strings.Index(w, core)
		words[i] = w[:idx] + topic + w[idx+len(core):]
		return strings.Join(words, " ")
	}
	return query
}

// modelAssisted asks the external completion model for a self-contained
// rewrite, bounded by the configured timeout. Any failure, including a rate
// limit skip, returns ok=false so the caller falls back.
func (r *Resolver) modelAssisted(ctx context.Context, query string, history []domain.ChatTurn) (string, bool) {
	if !r.limiter.Allow() {
		r.logger.Debug("rewrite model call skipped by rate limit")
		return "", false
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	response, err := r.model.Complete(callCtx, buildRewritePrompt(query, recentTurns(history, r.cfg.MaxTurns)))
	if err != nil {
		r.logger.Debug("rewrite model call failed", "error", err)
		return "", false
	}

	resolved := sanitizeModelRewrite(response)
	if resolved == "" {
		return "", false
	}
	return resolved, true
}

func buildRewritePrompt(query string, turns []domain.ChatTurn) string {
	var b strings.Builder
	b.WriteString("Rewrite the final user question so it is self-contained and unambiguous. ")
	b.WriteString("Resolve pronouns using the conversation. Reply with the rewritten question only.\n\n")
	for _, turn := range turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nRewritten:", query)
	return b.String()
}

// sanitizeModelRewrite keeps only a plausible single-line rewrite.
func sanitizeModelRewrite(response string) string {
	line := strings.TrimSpace(response)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	line = strings.Trim(line, "\"")
	if line == "" || len(line) > 300 {
		return ""
	}
	return line
}

func recentTurns(history []domain.ChatTurn, maxTurns int) []domain.ChatTurn {
	if maxTurns <= 0 || len(history) <= maxTurns {
		return history
	}
	return history[len(history)-maxTurns:]
}
