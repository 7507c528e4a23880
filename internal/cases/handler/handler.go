// Package handler exposes the case routes. Reads go through the bounded
// staleness query cache; writes forward to the record service and invalidate
// the affected cache entries before the response is written.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"casegate/internal/audit"
	"casegate/internal/cases/models"
	"casegate/internal/cases/proxy"
	"casegate/internal/cases/transform"
	"casegate/internal/platform/metrics"
	"casegate/internal/platform/middleware"
	"casegate/internal/querycache"
	derrors "casegate/pkg/domain-errors"
	"casegate/pkg/platform/httputil"
)

// Cache key namespaces for case reads. Writes invalidate both.
const (
	listKeyPrefix   = "cases:list:"
	detailKeyPrefix = "cases:detail:"
)

// Handler serves the /api/cases surface.
type Handler struct {
	upstream *proxy.Client
	cache    querycache.Cache
	audit    audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	listTTL   time.Duration
	detailTTL time.Duration
	now       func() time.Time
}

// Option configures the handler.
type Option func(*Handler)

// WithMetrics enables cache and audit instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New wires the case routes. listTTL and detailTTL bound how stale a cached
// read may be; a zero TTL disables caching for that namespace.
func New(upstream *proxy.Client, cache querycache.Cache, auditPub audit.Publisher, logger *slog.Logger, listTTL, detailTTL time.Duration, opts ...Option) *Handler {
	h := &Handler{
		upstream:  upstream,
		cache:     cache,
		audit:     auditPub,
		logger:    logger,
		listTTL:   listTTL,
		detailTTL: detailTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the case routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/cases", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/form", h.submitForm)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Get("/form", h.getForm)
			r.Post("/send-to-pas", h.sendToPAS)
		})
	})
}

// listErrorBody mirrors the list success shape with zeroed payload fields so
// callers can render an empty table without branching on error vs. empty.
type listErrorBody struct {
	Error         string            `json:"error"`
	Content       []json.RawMessage `json:"content"`
	TotalElements int               `json:"totalElements"`
	Page          int               `json:"page"`
	PageSize      int               `json:"pageSize"`
}

func emptyList(msg string) listErrorBody {
	return listErrorBody{Error: msg, Content: []json.RawMessage{}, PageSize: 25}
}

type itemErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	key := listKeyPrefix + r.URL.RawQuery
	if body, ok := h.cached(r, key, "cases"); ok {
		writeRaw(w, http.StatusOK, body)
		return
	}

	resp, err := h.upstream.List(r.Context(), r.URL.RawQuery)
	if err != nil {
		if derrors.HasCode(err, derrors.CodeUpstreamTimeout) {
			httputil.WriteJSON(w, http.StatusGatewayTimeout, emptyList("Request timeout"))
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, emptyList("Failed to fetch cases"))
		return
	}
	if !resp.OK() {
		httputil.WriteJSON(w, resp.StatusCode, emptyList("Backend API error"))
		return
	}

	h.store(r, key, resp.Body, h.listTTL)
	writeRaw(w, http.StatusOK, resp.Body)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	id := chi.URLParam(r, "id")
	body, status, ok := h.fetchRecord(w, r, id)
	if !ok {
		return
	}
	writeRaw(w, status, body)
}

// fetchRecord resolves a record body through the detail cache. When it
// returns ok=false the response has already been written.
func (h *Handler) fetchRecord(w http.ResponseWriter, r *http.Request, id string) ([]byte, int, bool) {
	key := detailKeyPrefix + id
	if body, ok := h.cached(r, key, "cases"); ok {
		return body, http.StatusOK, true
	}

	resp, err := h.upstream.Get(r.Context(), id)
	if err != nil {
		if derrors.HasCode(err, derrors.CodeUpstreamTimeout) {
			httputil.WriteJSON(w, http.StatusGatewayTimeout, itemErrorBody{Error: "Request timeout"})
			return nil, 0, false
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, itemErrorBody{Error: "Failed to fetch case"})
		return nil, 0, false
	}
	if !resp.OK() {
		httputil.WriteJSON(w, resp.StatusCode, itemErrorBody{
			Error:   "Backend API error",
			Details: string(resp.Body),
		})
		return nil, 0, false
	}

	h.store(r, key, resp.Body, h.detailTTL)
	return resp.Body, resp.StatusCode, true
}

// getForm returns the record projected into the edit form model.
func (h *Handler) getForm(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	id := chi.URLParam(r, "id")
	body, _, ok := h.fetchRecord(w, r, id)
	if !ok {
		return
	}

	var record models.Record
	if err := json.Unmarshal(body, &record); err != nil {
		h.logger.ErrorContext(r.Context(), "malformed record from backend",
			"request_id", middleware.GetRequestID(r.Context()), "case_id", id, "error", err)
		httputil.WriteError(w, derrors.Wrap(err, derrors.CodeUpstream, "malformed record from backend"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transform.RecordToForm(record))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	resp, err := h.upstream.Create(r.Context(), body)
	h.finishWrite(w, r, resp, err, audit.ActionCreate, caseIDFrom(body), "Failed to post data")
}

// submitForm accepts the on-screen form model, transforms it into a record
// payload, and creates it upstream.
func (h *Handler) submitForm(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	var form models.CaseForm
	if !httputil.DecodeJSON(w, r, h.logger, &form) {
		return
	}
	record := transform.FormToRecord(form, h.now().UTC())
	payload, err := json.Marshal(record)
	if err != nil {
		httputil.WriteError(w, derrors.Wrap(err, derrors.CodeInternal, "marshal record"))
		return
	}
	resp, err := h.upstream.Create(r.Context(), payload)
	h.finishWrite(w, r, resp, err, audit.ActionCreate, record.CaseID, "Failed to post data")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	resp, err := h.upstream.Update(r.Context(), id, body)
	h.finishWrite(w, r, resp, err, audit.ActionUpdate, id, "Failed to update data")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	id := chi.URLParam(r, "id")
	resp, err := h.upstream.Delete(r.Context(), id)
	h.finishWrite(w, r, resp, err, audit.ActionDelete, id, "Failed to delete data")
}

// sendToPASRequest is the handover payload for the policy administration
// system run.
type sendToPASRequest struct {
	SentToRpaBy     string `json:"sentToRpaBy"`
	Priority        string `json:"priority"`
	ReferencePrefix string `json:"referencePrefix"`
}

func (req sendToPASRequest) validate() []derrors.FieldError {
	var fields []derrors.FieldError
	if !strings.Contains(req.SentToRpaBy, "@") {
		fields = append(fields, derrors.FieldError{Loc: []string{"body", "sentToRpaBy"}, Msg: "must be an email address"})
	}
	switch req.Priority {
	case "High", "Medium", "Low":
	default:
		fields = append(fields, derrors.FieldError{Loc: []string{"body", "priority"}, Msg: "must be one of High, Medium, Low"})
	}
	if req.ReferencePrefix == "" {
		fields = append(fields, derrors.FieldError{Loc: []string{"body", "referencePrefix"}, Msg: "must not be empty"})
	}
	return fields
}

func (h *Handler) sendToPAS(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	id := chi.URLParam(r, "id")
	var req sendToPASRequest
	if !httputil.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if fields := req.validate(); len(fields) > 0 {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid send-to-pas request").WithFields(fields))
		return
	}
	payload, err := json.Marshal(req)
	if err != nil {
		httputil.WriteError(w, derrors.Wrap(err, derrors.CodeInternal, "marshal request"))
		return
	}
	resp, err := h.upstream.SendToPAS(r.Context(), id, payload)
	h.finishWrite(w, r, resp, err, audit.ActionSendToPAS, id, "Failed to send case to PAS")
}

// finishWrite applies the shared mutation epilogue: map transport failures to
// a generic 500, unpack backend validation detail, and on success invalidate
// the case caches and emit an audit event before relaying the reply.
func (h *Handler) finishWrite(w http.ResponseWriter, r *http.Request, resp *proxy.Response, err error, action, caseID, genericMsg string) {
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, itemErrorBody{Error: genericMsg})
		return
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		if fields := proxy.ValidationFields(resp.Body); fields != nil {
			httputil.WriteError(w, derrors.New(derrors.CodeValidation, "case failed validation").WithFields(fields))
			return
		}
		// Unrecognized validation shape falls back to pass-through.
	}
	if !resp.OK() {
		writeRaw(w, resp.StatusCode, resp.Body)
		return
	}

	h.invalidate(r, caseID)
	h.emitAudit(r, action, caseID)
	writeRaw(w, resp.StatusCode, resp.Body)
}

// invalidate drops the affected list and detail entries before the response
// goes out, so no dependent read can observe the pre-write state as fresh.
func (h *Handler) invalidate(r *http.Request, caseID string) {
	ctx := r.Context()
	if err := h.cache.InvalidatePrefix(ctx, listKeyPrefix); err != nil {
		h.logger.ErrorContext(ctx, "invalidate case list cache",
			"request_id", middleware.GetRequestID(ctx), "error", err)
	}
	if caseID == "" {
		return
	}
	if err := h.cache.Invalidate(ctx, detailKeyPrefix+caseID); err != nil {
		h.logger.ErrorContext(ctx, "invalidate case detail cache",
			"request_id", middleware.GetRequestID(ctx), "case_id", caseID, "error", err)
	}
}

func (h *Handler) emitAudit(r *http.Request, action, caseID string) {
	ctx := r.Context()
	ev := audit.Event{
		Action:    action,
		CaseID:    caseID,
		Actor:     r.Header.Get("X-Actor"),
		RequestID: middleware.GetRequestID(ctx),
		Timestamp: h.now().UTC(),
	}
	if err := h.audit.Publish(ctx, ev); err != nil {
		h.logger.ErrorContext(ctx, "publish audit event",
			"request_id", ev.RequestID, "action", action, "case_id", caseID, "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.AuditEventsTotal.Inc()
	}
}

func (h *Handler) cached(r *http.Request, key, namespace string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	body, hit, err := h.cache.Get(r.Context(), key)
	if err != nil {
		h.logger.WarnContext(r.Context(), "cache read failed", "key", key, "error", err)
		return nil, false
	}
	if h.metrics != nil {
		if hit {
			h.metrics.CacheHits.WithLabelValues(namespace).Inc()
		} else {
			h.metrics.CacheMisses.WithLabelValues(namespace).Inc()
		}
	}
	return body, hit
}

func (h *Handler) store(r *http.Request, key string, body []byte, ttl time.Duration) {
	if h.cache == nil || ttl <= 0 {
		return
	}
	if err := h.cache.Set(r.Context(), key, body, ttl); err != nil {
		h.logger.WarnContext(r.Context(), "cache write failed", "key", key, "error", err)
	}
}

// caseIDFrom pulls the caseId out of a raw record payload for audit and
// cache invalidation. A body without one yields "".
func caseIDFrom(body []byte) string {
	var probe struct {
		CaseID string `json:"caseId"`
	}
	_ = json.Unmarshal(body, &probe)
	return probe.CaseID
}

// noStore disables HTTP-layer response caching; the only caching on this
// surface is the explicit query cache with its invalidation hooks.
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
