package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/cinelines/internal/ingest"
	"github.com/hyperengineering/cinelines/internal/metrics"
	"github.com/hyperengineering/cinelines/internal/query"
	"github.com/hyperengineering/cinelines/internal/store"
	"github.com/hyperengineering/cinelines/internal/types"
	"github.com/hyperengineering/cinelines/internal/validation"
)

// maxBodyBytes caps the size of a create-conversation request.
const maxBodyBytes = 4 << 20

// Handler implements the API handlers
type Handler struct {
	store   store.Store
	engine  *query.Engine
	ingest  *ingest.Service
	metrics *metrics.Metrics
	backend string
	version string
}

// NewHandler creates a Handler serving reads and writes from s. m may be nil.
func NewHandler(s store.Store, m *metrics.Metrics, backend, version string) *Handler {
	return &Handler{
		store:   s,
		engine:  query.NewEngine(s),
		ingest:  ingest.NewService(s),
		metrics: m,
		backend: backend,
		version: version,
	}
}

// Health returns the health status with per-collection counts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		slog.Error("health check failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Backend: h.backend,
		Counts:  *stats,
	})
}

// GetCharacter handles GET /characters/{id}
func (h *Handler) GetCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	profile, err := h.engine.CharacterProfile(r.Context(), id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListCharacters handles GET /characters/
func (h *Handler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListParams(w, r)
	if !ok {
		return
	}
	sort, err := query.ParseCharacterSort(p.sort)
	if err != nil {
		MapError(w, r, err)
		return
	}

	rows, err := h.engine.ListCharacters(r.Context(), query.CharacterQuery{
		Name:   p.name,
		Sort:   sort,
		Limit:  p.limit,
		Offset: p.offset,
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetLine handles GET /lines/{id}
func (h *Handler) GetLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.engine.LineDetail(r.Context(), id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListLines handles GET /lines/
func (h *Handler) ListLines(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListParams(w, r)
	if !ok {
		return
	}
	sort, err := query.ParseLineSort(p.sort)
	if err != nil {
		MapError(w, r, err)
		return
	}

	rows, err := h.engine.ListLines(r.Context(), query.LineQuery{
		Text:   p.name,
		Sort:   sort,
		Limit:  p.limit,
		Offset: p.offset,
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetConversation handles GET /lines/conv/{id}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.engine.ConversationDetail(r.Context(), id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CreateConversation handles POST /movies/{movie_id}/conversations/
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	movieID, ok := pathID(w, r, "movie_id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if errs := validation.ValidateCreateConversation(&req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	convID, err := h.ingest.AppendConversation(r.Context(), movieID, req.ToNewConversation())
	if err != nil {
		if rej, ok := ingest.AsRejection(err); ok {
			h.metrics.RecordIngest(rej.Reason)
		} else {
			h.metrics.RecordIngest(metrics.IngestError)
		}
		MapError(w, r, err)
		return
	}

	h.metrics.RecordIngest(metrics.IngestAccepted)
	writeJSON(w, http.StatusCreated, types.CreateConversationResponse{ConversationID: convID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// pathID parses an integer path parameter, writing a 422 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil {
		WriteProblemWithErrors(w, r, "Invalid path parameter", []validation.ValidationError{
			{Field: name, Message: "must be an integer"},
		})
		return 0, false
	}
	return id, true
}

type listParams struct {
	name   string
	sort   string
	limit  int
	offset int
}

// parseListParams reads name, sort, limit and offset. limit is clamped to
// [1, query.MaxLimit] and defaults to query.DefaultLimit; offset is clamped
// to zero or more. Non-integer values are a 422.
func parseListParams(w http.ResponseWriter, r *http.Request) (listParams, bool) {
	q := r.URL.Query()
	p := listParams{
		name:  q.Get("name"),
		sort:  q.Get("sort"),
		limit: query.DefaultLimit,
	}

	var c validation.Collector
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.Add(&validation.ValidationError{Field: "limit", Message: "must be an integer"})
		}
		p.limit = query.ClampLimit(n)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.Add(&validation.ValidationError{Field: "offset", Message: "must be an integer"})
		}
		p.offset = query.ClampOffset(n)
	}

	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Invalid query parameters", c.Errors())
		return p, false
	}
	return p, true
}
