// Package aggregate joins the per-endpoint registry replies into the two
// fixed view shapes consumers render: a firm view from ten register
// endpoints, and a company view projected from the combined company
// document. Views are pure read projections, recomputed on every cache miss.
package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"casegate/internal/platform/metrics"
	"casegate/internal/querycache"
	"casegate/internal/registry/companieshouse"
	"casegate/internal/registry/fca"
)

// FirmView is the merged register firm projection. Collections are never
// null: an endpoint that returned nothing contributes an empty array, so
// consumers cannot distinguish "no rows" from "empty reply". Only a failed
// sub-call rejects the whole view.
type FirmView struct {
	Source       string             `json:"source"`
	Details      json.RawMessage    `json:"details"`
	Individuals  []json.RawMessage  `json:"individuals"`
	Permissions  fca.PermissionList `json:"permissions"`
	Address      json.RawMessage    `json:"address"`
	Requirements []json.RawMessage  `json:"requirements"`
	Regulators   []json.RawMessage  `json:"regulators"`
	Passports    []json.RawMessage  `json:"passports"`
	Disciplinary []json.RawMessage  `json:"disciplinary"`
	Waivers      []json.RawMessage  `json:"waivers"`
	Names        []json.RawMessage  `json:"names"`
}

// CompanyView is the companies-registry projection.
type CompanyView struct {
	Source        string            `json:"source"`
	Details       json.RawMessage   `json:"details"`
	Individuals   []json.RawMessage `json:"individuals"`
	PSC           []json.RawMessage `json:"psc"`
	FilingHistory []json.RawMessage `json:"filing_history"`
	Address       json.RawMessage   `json:"address"`
}

// Service resolves registry views through the bounded-staleness cache.
type Service struct {
	fca     *fca.Client
	ch      *companieshouse.Client
	cache   querycache.Cache
	logger  *slog.Logger
	metrics *metrics.Metrics

	searchTTL time.Duration
	detailTTL time.Duration
}

// Option configures the service.
type Option func(*Service)

// WithMetrics enables lookup and cache instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New builds the aggregation service. Search results stay fresh for
// searchTTL, entity views for detailTTL.
func New(fcaClient *fca.Client, chClient *companieshouse.Client, cache querycache.Cache, logger *slog.Logger, searchTTL, detailTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		fca:       fcaClient,
		ch:        chClient,
		cache:     cache,
		logger:    logger,
		searchTTL: searchTTL,
		detailTTL: detailTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchFirms runs a register search, served from cache within the staleness
// window.
func (s *Service) SearchFirms(ctx context.Context, query, typ string, perPage int) (json.RawMessage, error) {
	key := "fca:search:" + typ + ":" + strconv.Itoa(perPage) + ":" + query
	return s.rawLookup(ctx, "fca", key, s.searchTTL, func() (json.RawMessage, error) {
		return s.fca.Search(ctx, query, typ, perPage)
	})
}

// SearchCompanies runs a companies-registry search.
func (s *Service) SearchCompanies(ctx context.Context, query string, itemsPerPage int) (json.RawMessage, error) {
	key := "ch:search:" + strconv.Itoa(itemsPerPage) + ":" + query
	return s.rawLookup(ctx, "ch", key, s.searchTTL, func() (json.RawMessage, error) {
		return s.ch.Search(ctx, query, itemsPerPage)
	})
}

// Individual fetches one register individual by reference number.
func (s *Service) Individual(ctx context.Context, irn string) (json.RawMessage, error) {
	return s.rawLookup(ctx, "fca", "fca:individual:"+irn, s.detailTTL, func() (json.RawMessage, error) {
		return s.fca.Individual(ctx, irn)
	})
}

// FirmView fans out to all ten register endpoints for a firm and joins the
// replies. The view completes only when every sub-call has; a single failure
// rejects the whole view, with no partial result.
func (s *Service) FirmView(ctx context.Context, frn string) (*FirmView, error) {
	key := "fca:firm:" + frn
	if view, ok := cachedView[FirmView](ctx, s, "fca", key); ok {
		return view, nil
	}

	start := time.Now()
	var (
		details, individuals, permissions, address, requirements fca.Envelope
		regulators, passports, disciplinary, waivers, names      fca.Envelope
	)

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(dst *fca.Envelope, call func(context.Context, string) (fca.Envelope, error)) {
		g.Go(func() error {
			env, err := call(gctx, frn)
			if err != nil {
				return err
			}
			*dst = env
			return nil
		})
	}
	fetch(&details, s.fca.FirmDetails)
	fetch(&individuals, s.fca.Individuals)
	fetch(&permissions, s.fca.Permissions)
	fetch(&address, s.fca.Address)
	fetch(&requirements, s.fca.Requirements)
	fetch(&regulators, s.fca.Regulators)
	fetch(&passports, s.fca.Passports)
	fetch(&disciplinary, s.fca.Disciplinary)
	fetch(&waivers, s.fca.Waivers)
	fetch(&names, s.fca.TradingNames)

	if err := g.Wait(); err != nil {
		s.count("fca", "error")
		return nil, err
	}
	s.count("fca", "ok")
	s.metrics.ObserveRegistry("fca", time.Since(start))

	var perms fca.PermissionList
	if err := json.Unmarshal(orDefault(permissions.Data, "null"), &perms); err != nil {
		s.logger.WarnContext(ctx, "unrecognized permissions shape", "frn", frn, "error", err)
		perms = fca.PermissionList{}
	}

	view := &FirmView{
		Source:       "fca",
		Details:      firstOr(details.Data, "{}"),
		Individuals:  listOrEmpty(individuals.Data),
		Permissions:  perms,
		Address:      firstOr(address.Data, "null"),
		Requirements: listOrEmpty(requirements.Data),
		Regulators:   listOrEmpty(regulators.Data),
		Passports:    listOrEmpty(passports.Data),
		Disciplinary: listOrEmpty(disciplinary.Data),
		Waivers:      listOrEmpty(waivers.Data),
		Names:        listOrEmpty(names.Data),
	}
	s.storeView(ctx, key, view)
	return view, nil
}

// CompanyView projects the combined company document into the fixed view
// shape.
func (s *Service) CompanyView(ctx context.Context, companyNumber string) (*CompanyView, error) {
	key := "ch:company:" + companyNumber
	if view, ok := cachedView[CompanyView](ctx, s, "ch", key); ok {
		return view, nil
	}

	start := time.Now()
	reply, err := s.ch.Company(ctx, companyNumber)
	if err != nil {
		s.count("ch", "error")
		return nil, err
	}
	s.count("ch", "ok")
	s.metrics.ObserveRegistry("ch", time.Since(start))

	profile := orDefault(reply.Profile, "{}")
	view := &CompanyView{
		Source:        "ch",
		Details:       profile,
		Individuals:   itemsOrEmpty(reply.Officers),
		PSC:           itemsOrEmpty(reply.PSC),
		FilingHistory: itemsOrEmpty(reply.FilingHistory),
		Address:       registeredOfficeAddress(profile),
	}
	s.storeView(ctx, key, view)
	return view, nil
}

// rawLookup is the read-through path for verbatim upstream replies.
func (s *Service) rawLookup(ctx context.Context, source, key string, ttl time.Duration, fetch func() (json.RawMessage, error)) (json.RawMessage, error) {
	if body, ok := s.cacheGet(ctx, source, key); ok {
		return body, nil
	}
	start := time.Now()
	body, err := fetch()
	if err != nil {
		s.count(source, "error")
		return nil, err
	}
	s.count(source, "ok")
	s.metrics.ObserveRegistry(source, time.Since(start))
	s.cacheSet(ctx, key, body, ttl)
	return body, nil
}

func cachedView[T any](ctx context.Context, s *Service, source, key string) (*T, bool) {
	body, ok := s.cacheGet(ctx, source, key)
	if !ok {
		return nil, false
	}
	var view T
	if err := json.Unmarshal(body, &view); err != nil {
		s.logger.WarnContext(ctx, "corrupt cached view", "key", key, "error", err)
		return nil, false
	}
	return &view, true
}

func (s *Service) storeView(ctx context.Context, key string, view any) {
	body, err := json.Marshal(view)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal view for cache", "key", key, "error", err)
		return
	}
	s.cacheSet(ctx, key, body, s.detailTTL)
}

func (s *Service) cacheGet(ctx context.Context, namespace, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	body, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		return nil, false
	}
	if s.metrics != nil {
		if hit {
			s.metrics.CacheHits.WithLabelValues(namespace).Inc()
		} else {
			s.metrics.CacheMisses.WithLabelValues(namespace).Inc()
		}
	}
	return body, hit
}

func (s *Service) cacheSet(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if s.cache == nil || ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, body, ttl); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

func (s *Service) count(source, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RegistryLookups.WithLabelValues(source, outcome).Inc()
}

// firstOr extracts the first element of an enveloped row array, falling back
// to the given literal when the array is absent or empty.
func firstOr(data json.RawMessage, fallback string) json.RawMessage {
	rows := listOrEmpty(data)
	if len(rows) == 0 {
		return json.RawMessage(fallback)
	}
	return rows[0]
}

// listOrEmpty coalesces an absent or malformed payload into an empty array.
func listOrEmpty(data json.RawMessage) []json.RawMessage {
	var rows []json.RawMessage
	if err := json.Unmarshal(orDefault(data, "null"), &rows); err != nil || rows == nil {
		return []json.RawMessage{}
	}
	return rows
}

func itemsOrEmpty(list *companieshouse.ItemList) []json.RawMessage {
	if list == nil || list.Items == nil {
		return []json.RawMessage{}
	}
	return list.Items
}

func registeredOfficeAddress(profile json.RawMessage) json.RawMessage {
	var probe struct {
		RegisteredOfficeAddress json.RawMessage `json:"registered_office_address"`
	}
	if err := json.Unmarshal(profile, &probe); err != nil {
		return json.RawMessage("{}")
	}
	return orDefault(probe.RegisteredOfficeAddress, "{}")
}

func orDefault(data json.RawMessage, fallback string) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(fallback)
	}
	return trimmed
}
