// Package rag implements the stateless, single-workspace retrieval and
// synthesis pipeline of spec.md §4.5: embed the query, search session
// and client vectors, hydrate and temporally weight the hits, format a
// context block, synthesize one answer via the LLM provider (retried
// and breaker-guarded), extract citations, redact PHI patterns, cache
// the result, and emit a single audit event. Grounded structurally on
// original_source/.../ai/agent.py's RAGAgent.query method, which walks
// the same ordered steps; the Go version keeps the step order and the
// "catch everything past cache-probe, never propagate a raw provider
// error" contract but is written from scratch, not translated.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/pazpaz/backend/internal/audit"
	"github.com/pazpaz/backend/internal/circuitbreaker"
	"github.com/pazpaz/backend/internal/db"
	"github.com/pazpaz/backend/internal/embedding"
	"github.com/pazpaz/backend/internal/fastkv"
	"github.com/pazpaz/backend/internal/llm"
	"github.com/pazpaz/backend/internal/logging"
	"github.com/pazpaz/backend/internal/metrics"
	"github.com/pazpaz/backend/internal/models"
	"github.com/pazpaz/backend/internal/vector"
)

// temporalDecayLambda is the half-life constant spec.md §4.5 step 7
// and SPEC_FULL.md §C confirm from the original's retrieval.py: ~35-day
// half-life, applied only to sessions, never to client profiles.
const temporalDecayLambda = 0.02

const cacheVersion = "v1"

// Request is one retrieval-and-synthesis query (spec.md §4.5 preamble).
type Request struct {
	WorkspaceID   uuid.UUID
	QueryText     string
	UserID        *uuid.UUID
	ClientID      *uuid.UUID
	MaxResults    int
	MinSimilarity float64
}

// Citation carries enough of a retrieved context item for the caller
// to link back to its source (spec.md §4.5 step 11).
type Citation struct {
	EntityType   string     `json:"entity_type"`
	EntityID     uuid.UUID  `json:"entity_id"`
	DisplayName  string     `json:"display_name"`
	Date         *time.Time `json:"date,omitempty"`
	Similarity   float64    `json:"similarity"`
	MatchedField string     `json:"matched_field"`
}

// Response is the structured result spec.md §4.5 step 15 returns.
type Response struct {
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Language       string     `json:"language"`
	TotalRetrieved int        `json:"total_retrieved"`
	ElapsedMS      int64      `json:"elapsed_ms"`
}

// Agent wires every collaborator the pipeline's 15 steps touch.
type Agent struct {
	vectors    *vector.Store
	clients    *db.ClientRepo
	sessions   *db.SessionRepo
	embedder   *embedding.Client
	llmClient  *llm.Client
	cache      *fastkv.Client
	breaker    *circuitbreaker.CircuitBreaker
	auditor    *audit.Emitter
	metrics    *metrics.Metrics
	expansions ExpansionTable
	cacheTTL   time.Duration
	maxTokens  int
}

func NewAgent(
	vectors *vector.Store,
	clients *db.ClientRepo,
	sessions *db.SessionRepo,
	embedder *embedding.Client,
	llmClient *llm.Client,
	cache *fastkv.Client,
	breaker *circuitbreaker.CircuitBreaker,
	auditor *audit.Emitter,
	metricsClient *metrics.Metrics,
	expansions ExpansionTable,
	cacheTTLSeconds int,
) *Agent {
	if expansions == nil {
		expansions = defaultExpansionTable()
	}
	return &Agent{
		vectors: vectors, clients: clients, sessions: sessions,
		embedder: embedder, llmClient: llmClient, cache: cache,
		breaker: breaker, auditor: auditor, metrics: metricsClient,
		expansions: expansions,
		cacheTTL:   time.Duration(cacheTTLSeconds) * time.Second,
		maxTokens:  500,
	}
}

// Query runs the full pipeline. Only step 1's parameter validation is
// allowed to return a raw error to the caller; every failure from step
// 2 onward is caught and turned into a localized, citation-empty
// Response, per spec.md §4.5's closing error-semantics paragraph.
func (a *Agent) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	// Step 1: parameter validation.
	if req.MaxResults < 1 || req.MaxResults > 10 {
		return Response{}, apperr.New(apperr.KindUnprocessableEntity, "max_results must be between 1 and 10")
	}
	queryHash := firstHex(sha256.Sum256([]byte(req.QueryText)), 16)
	language := detectLanguage(req.QueryText)

	// Step 2: cache probe. Cache failure never blocks the request.
	cacheKey := a.cacheKey(req.WorkspaceID, queryHash, req.ClientID)
	if cached, ok := a.probeCache(ctx, cacheKey); ok {
		a.metrics.RecordCacheHit("query_result")
		a.emitAudit(ctx, req, queryHash, language, cached.TotalRetrieved, time.Since(start))
		cached.ElapsedMS = time.Since(start).Milliseconds()
		return cached, nil
	}
	a.metrics.RecordCacheMiss("query_result")

	resp, retrieved, err := a.retrieveAndSynthesize(ctx, req, language)
	if err != nil {
		logging.Error("rag_query_failed", logging.Fields{
			"workspace_id": req.WorkspaceID, "query_hash": queryHash, "error": err,
		})
		resp = Response{
			Answer:    localizedErrorMessage(language),
			Citations: nil,
			Language:  language,
		}
	} else {
		// Steps 13: cache store. Failure logs and proceeds.
		if err := a.storeCache(ctx, cacheKey, resp); err != nil {
			logging.Warn("rag_cache_store_failed", logging.Fields{"workspace_id": req.WorkspaceID, "error": err})
		}
	}

	resp.ElapsedMS = time.Since(start).Milliseconds()
	a.emitAudit(ctx, req, queryHash, language, retrieved, time.Since(start))
	return resp, nil
}

// retrieveAndSynthesize runs steps 4 through 12. Any error here is
// caught by Query's caller, never returned to the HTTP layer.
func (a *Agent) retrieveAndSynthesize(ctx context.Context, req Request, language string) (Response, int, error) {
	// Step 4: adaptive threshold & query expansion.
	expandedQuery, minSimilarity := adaptThreshold(req.QueryText, req.MinSimilarity, a.expansions)

	// Step 5: retrieval.
	queryVector, err := a.embedder.Embed(ctx, expandedQuery, embedding.InputSearchQuery)
	if err != nil {
		return Response{}, 0, apperr.Wrap(apperr.KindRetrievalFailed, "query embedding failed", err)
	}

	sessionMatches, clientMatches, err := a.search(ctx, req, queryVector, minSimilarity)
	if err != nil {
		return Response{}, 0, err
	}

	// Step 6: entity hydration + best-field selection per entity.
	bestSessionMatch, sessionIDs := bestPerSession(sessionMatches)
	bestClientMatch, clientIDs := bestPerClient(clientMatches)

	hydratedSessions, err := a.sessions.GetActiveBatch(ctx, req.WorkspaceID, sessionIDs)
	if err != nil {
		return Response{}, 0, apperr.Wrap(apperr.KindRetrievalFailed, "session hydration failed", err)
	}
	// Every session and client citation also needs the owning client's
	// display name; collect that superset of ids in one batch.
	nameClientIDs := clientIDs
	for _, s := range hydratedSessions {
		nameClientIDs = append(nameClientIDs, s.ClientID)
	}
	hydratedClients, err := a.clients.GetBatch(ctx, req.WorkspaceID, dedupeIDs(nameClientIDs))
	if err != nil {
		return Response{}, 0, apperr.Wrap(apperr.KindRetrievalFailed, "client hydration failed", err)
	}

	// Step 7: temporal weighting (sessions only) + ordering.
	sessionCtxs := buildSessionContexts(bestSessionMatch, hydratedSessions, hydratedClients)
	sort.Slice(sessionCtxs, func(i, j int) bool { return sessionCtxs[i].weightedScore > sessionCtxs[j].weightedScore })
	clientCtxs := buildClientContexts(bestClientMatch, hydratedClients)
	sort.Slice(clientCtxs, func(i, j int) bool { return clientCtxs[i].similarity > clientCtxs[j].similarity })

	totalRetrieved := len(sessionCtxs) + len(clientCtxs)

	// Step 8: no-results branch.
	if totalRetrieved == 0 {
		return Response{
			Answer:         localizedNoResultsMessage(language),
			Citations:      nil,
			Language:       language,
			TotalRetrieved: 0,
		}, 0, nil
	}

	// Step 9: context formatting.
	formattedContext := formatContext(language, clientCtxs, sessionCtxs)

	// Step 10: synthesis, retried by internal/llm, breaker-guarded here.
	answer, err := a.synthesize(ctx, language, req.QueryText, formattedContext)
	if err != nil {
		return Response{}, totalRetrieved, err
	}

	// Step 11: citation extraction.
	citations := buildCitations(clientCtxs, sessionCtxs)

	// Step 12: output filtering.
	answer = redactPHI(answer)
	answer = truncateWords(answer, a.maxTokens)

	return Response{
		Answer:         answer,
		Citations:      citations,
		Language:       language,
		TotalRetrieved: totalRetrieved,
	}, totalRetrieved, nil
}

// search implements step 5's branch: client-scoped vs workspace-wide.
func (a *Agent) search(ctx context.Context, req Request, queryVector []float32, minSimilarity float64) ([]vector.SessionMatch, []vector.ClientMatch, error) {
	limit := req.MaxResults
	if req.ClientID != nil {
		sessionMatches, err := a.vectors.SearchSimilarSessionsForClient(ctx, req.WorkspaceID, *req.ClientID, queryVector, limit, minSimilarity)
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.KindRetrievalFailed, "client-scoped session search failed", err)
		}
		clientMatches, err := a.vectors.SearchSimilarClientsForOne(ctx, req.WorkspaceID, *req.ClientID, queryVector, limit, minSimilarity)
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.KindRetrievalFailed, "client-scoped profile search failed", err)
		}
		return sessionMatches, clientMatches, nil
	}

	sessionMatches, err := a.vectors.SearchSimilarSessions(ctx, req.WorkspaceID, queryVector, limit, "", minSimilarity)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindRetrievalFailed, "workspace-wide session search failed", err)
	}
	clientMatches, err := a.vectors.SearchSimilarClients(ctx, req.WorkspaceID, queryVector, limit, "", minSimilarity)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindRetrievalFailed, "workspace-wide profile search failed", err)
	}
	return sessionMatches, clientMatches, nil
}

// synthesize wraps the retried llm.Chat call in the named circuit
// breaker (spec.md §4.5 step 10).
func (a *Agent) synthesize(ctx context.Context, language, query, formattedContext string) (string, error) {
	system := systemPrompt(language)
	user := userPrompt(language, query, formattedContext)

	result, err := a.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return a.llmClient.Chat(ctx, system, user, 0.3, a.maxTokens)
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindRetrievalFailed, "llm synthesis failed", err)
	}
	return result.(llm.Response).Text, nil
}

func (a *Agent) cacheKey(workspaceID uuid.UUID, queryHash string, clientID *uuid.UUID) string {
	key := fmt.Sprintf("ai:query:%s:%s", workspaceID, queryHash)
	if clientID != nil {
		key += ":" + clientID.String()
	}
	return key
}

type cachedPayload struct {
	CacheVersion   string     `json:"cache_version"`
	CachedAt       int64      `json:"cached_at"`
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Language       string     `json:"language"`
	TotalRetrieved int        `json:"total_retrieved"`
}

func (a *Agent) probeCache(ctx context.Context, key string) (Response, bool) {
	raw, err := a.cache.Get(ctx, key)
	if err != nil {
		return Response{}, false
	}
	var payload cachedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Response{}, false
	}
	return Response{
		Answer:         payload.Answer,
		Citations:      payload.Citations,
		Language:       payload.Language,
		TotalRetrieved: payload.TotalRetrieved,
	}, true
}

func (a *Agent) storeCache(ctx context.Context, key string, resp Response) error {
	payload := cachedPayload{
		CacheVersion:   cacheVersion,
		CachedAt:       time.Now().Unix(),
		Answer:         resp.Answer,
		Citations:      resp.Citations,
		Language:       resp.Language,
		TotalRetrieved: resp.TotalRetrieved,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return a.cache.Set(ctx, key, raw, a.cacheTTL)
}

// emitAudit records a READ event carrying no query text and no
// resource_id (spec.md §4.5 step 14).
func (a *Agent) emitAudit(ctx context.Context, req Request, queryHash, language string, totalRetrieved int, elapsed time.Duration) {
	a.auditor.Emit(ctx, models.AuditEvent{
		ActorUserID:  req.UserID,
		WorkspaceID:  req.WorkspaceID,
		Action:       models.AuditRead,
		ResourceType: "ai_agent",
		Metadata: map[string]any{
			"query_hash":         queryHash,
			"query_length":       len(req.QueryText),
			"language":           language,
			"total_retrieved":    totalRetrieved,
			"processing_time_ms": elapsed.Milliseconds(),
		},
	})
}

// firstHex returns the first n hex characters of sum's digest, used as
// the query-correlation hash (spec.md §4.5 step 1).
func firstHex(sum [32]byte, n int) string {
	return hex.EncodeToString(sum[:])[:n]
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func temporalWeight(sessionDate time.Time, now time.Time) float64 {
	days := now.Sub(sessionDate).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-temporalDecayLambda * days)
}
