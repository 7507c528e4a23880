package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casegate/internal/audit"
	"casegate/internal/cases/models"
	"casegate/internal/cases/proxy"
	"casegate/internal/querycache"
)

type fakeAudit struct {
	events []audit.Event
}

func (f *fakeAudit) Publish(_ context.Context, ev audit.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAudit) Close() {}

type fixture struct {
	router   chi.Router
	cache    *querycache.Memory
	audit    *fakeAudit
	upstream *httptest.Server
	hits     *atomic.Int64
}

func newFixture(t *testing.T, upstreamHandler http.HandlerFunc, timeout time.Duration) *fixture {
	t.Helper()
	hits := &atomic.Int64{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		upstreamHandler(w, r)
	}))
	t.Cleanup(upstream.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := querycache.NewMemory()
	auditPub := &fakeAudit{}
	client := proxy.New(upstream.URL, timeout, logger)
	h := New(client, cache, auditPub, logger, 5*time.Minute, 10*time.Minute)

	router := chi.NewRouter()
	h.Register(router)
	return &fixture{router: router, cache: cache, audit: auditPub, upstream: upstream, hits: hits}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestListPassThroughAndCache(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/kyc-records", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"caseId":"CASE-1"}],"totalElements":1,"page":0,"pageSize":25}`))
	}, time.Second)

	w := f.do(http.MethodGet, "/api/cases?status=DRAFT", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"content":[{"caseId":"CASE-1"}],"totalElements":1,"page":0,"pageSize":25}`, w.Body.String())

	// Second identical read is served from the query cache.
	w = f.do(http.MethodGet, "/api/cases?status=DRAFT", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), f.hits.Load())
}

func TestListTimeoutReturnsEmptyShape(t *testing.T) {
	blocked := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}, 50*time.Millisecond)
	t.Cleanup(func() { close(blocked) })

	w := f.do(http.MethodGet, "/api/cases", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var body struct {
		Error         string            `json:"error"`
		Content       []json.RawMessage `json:"content"`
		TotalElements int               `json:"totalElements"`
		Page          int               `json:"page"`
		PageSize      int               `json:"pageSize"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Request timeout", body.Error)
	assert.NotNil(t, body.Content)
	assert.Empty(t, body.Content)
	assert.Zero(t, body.TotalElements)
	assert.Zero(t, body.Page)
	assert.Equal(t, 25, body.PageSize)
}

func TestListUpstreamErrorRelaysStatusWithEmptyShape(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, time.Second)

	w := f.do(http.MethodGet, "/api/cases", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"content":[]`)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestGetTimeout(t *testing.T) {
	blocked := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}, 50*time.Millisecond)
	t.Cleanup(func() { close(blocked) })

	w := f.do(http.MethodGet, "/api/cases/CASE-1", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.JSONEq(t, `{"error":"Request timeout"}`, w.Body.String())
}

func TestGetUpstreamErrorCarriesDetails(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"record not found"}`))
	}, time.Second)

	w := f.do(http.MethodGet, "/api/cases/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.Contains(t, body.Details, "record not found")
}

func TestCreateUnpacksValidationDetail(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","clientRef"],"msg":"field required"}]}`))
	}, time.Second)

	w := f.do(http.MethodPost, "/api/cases", `{"caseId":"CASE-9"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error  string `json:"error"`
		Fields []struct {
			Loc []string `json:"loc"`
			Msg string   `json:"msg"`
		} `json:"field_errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body.Error)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, []string{"body", "clientRef"}, body.Fields[0].Loc)
	assert.Equal(t, "field required", body.Fields[0].Msg)
}

func TestCreateTransportFailureIsGeneric500(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {}, time.Second)
	f.upstream.Close()

	w := f.do(http.MethodPost, "/api/cases", `{"caseId":"CASE-9"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to post data"}`, w.Body.String())
	assert.Empty(t, f.audit.events)
}

func TestUpdateInvalidatesCachesAndAudits(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/kyc-records/CASE-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"caseId":"CASE-1","version":2}`))
	}, time.Second)

	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, "cases:list:status=DRAFT", []byte(`{}`), time.Minute))
	require.NoError(t, f.cache.Set(ctx, "cases:detail:CASE-1", []byte(`{}`), time.Minute))
	require.NoError(t, f.cache.Set(ctx, "fca:firm:123", []byte(`{}`), time.Minute))

	w := f.do(http.MethodPut, "/api/cases/CASE-1", `{"caseId":"CASE-1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	_, hit, _ := f.cache.Get(ctx, "cases:list:status=DRAFT")
	assert.False(t, hit, "list cache must be invalidated by a write")
	_, hit, _ = f.cache.Get(ctx, "cases:detail:CASE-1")
	assert.False(t, hit, "detail cache must be invalidated by a write")
	_, hit, _ = f.cache.Get(ctx, "fca:firm:123")
	assert.True(t, hit, "unrelated namespaces must survive")

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionUpdate, f.audit.events[0].Action)
	assert.Equal(t, "CASE-1", f.audit.events[0].CaseID)
}

func TestDeleteAudits(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"deleted":true}`))
	}, time.Second)

	w := f.do(http.MethodDelete, "/api/cases/CASE-7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionDelete, f.audit.events[0].Action)
	assert.Equal(t, "CASE-7", f.audit.events[0].CaseID)
}

func TestSendToPASValidatesRequest(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for an invalid request")
	}, time.Second)

	w := f.do(http.MethodPost, "/api/cases/CASE-1/send-to-pas",
		`{"sentToRpaBy":"not-an-email","priority":"Urgent","referencePrefix":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Fields []struct {
			Loc []string `json:"loc"`
		} `json:"field_errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Fields, 3)
}

func TestSendToPASForwardsAndAudits(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/kyc-records/CASE-1/send-to-pas", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "High", req["priority"])
		_, _ = w.Write([]byte(`{"status":"SENT"}`))
	}, time.Second)

	w := f.do(http.MethodPost, "/api/cases/CASE-1/send-to-pas",
		`{"sentToRpaBy":"ops@example.com","priority":"High","referencePrefix":"CASE"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionSendToPAS, f.audit.events[0].Action)
}

func TestSubmitFormTransformsBeforeForwarding(t *testing.T) {
	var received models.Record
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"caseId":"CASE-5"}`))
	}, time.Second)

	form := `{
		"caseId":"CASE-5","clientRef":"CR-5","status":"DRAFT","businessUnit":"Marine",
		"beForm":{"legalName":"Acme Ltd","country":"GB","roleType":"BROKER","statementEmail":"a@b.c"}
	}`
	w := f.do(http.MethodPost, "/api/cases/form", form)
	assert.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, "CASE-5", received.CaseID)
	assert.Equal(t, "Acme Ltd", received.Entity.LegalName)
	assert.Equal(t, "NEW", received.Relationship.Type)
	assert.Equal(t, models.EnrichmentStatusPending, received.Enrichment.DNB.Status)
	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionCreate, f.audit.events[0].Action)
	assert.Equal(t, "CASE-5", f.audit.events[0].CaseID)
}

func TestGetFormProjectsRecord(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/kyc-records/CASE-2", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"caseId":"CASE-2","clientRef":"CR-2","status":"ENRICHED",
			"entity":{"legalName":"Beta Ltd","jurisdiction":"GB","contactEmail":"x@y.z"},
			"relationship":{"type":"NEW","systemRequired":"Vantage"},
			"role":{"primary":"CLIENT"},
			"enrichment":{
				"companiesHouse":{"status":"COMPLETE","companyNumber":"123","companyStatus":null,"registeredAddress":null,"checkedAt":"2025-06-01T12:00:00Z"},
				"fca":{"status":"PENDING","firmReferenceNumber":null,"regulated":null,"checkedAt":"2025-06-01T12:00:00Z"},
				"dnb":{"status":"PENDING","dunsNumber":null,"confidenceScore":null,"checkedAt":"2025-06-01T12:00:00Z"},
				"lexisNexis":{"status":"PENDING","matchesFound":null,"checkedAt":"2025-06-01T12:00:00Z"}
			}
		}`))
	}, time.Second)

	w := f.do(http.MethodGet, "/api/cases/CASE-2/form", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var form models.CaseForm
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &form))
	assert.Equal(t, "CASE-2", form.CaseID)
	assert.Equal(t, "Beta Ltd", form.EntityName)
	assert.Equal(t, models.PlaceholderRiskTier, form.RiskTier)
	assert.Equal(t, models.PlaceholderAssignedUser, form.AssignedUser)
	assert.Equal(t, "complete", form.AutomationResults.CompaniesHouse.Status)
	assert.Equal(t, "123", form.BEForm.RegistrationNumber)
}
