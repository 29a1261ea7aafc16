package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"certenrich/internal/enrichment/batcher"
	"certenrich/internal/enrichment/enricher"
	enrichmetrics "certenrich/internal/enrichment/metrics"
	"certenrich/internal/enrichment/models"
	"certenrich/internal/lookup"
	"certenrich/internal/lookup/lookuptest"
	"certenrich/internal/platform/config"
	"certenrich/internal/platform/metrics"
	"certenrich/pkg/testutil"
)

// =============================================================================
// HTTP Adapter Test Suite
// =============================================================================
// Uses the real lookup client, enricher and batcher against a fake lookup
// server. Handler tests cover request parsing and response mapping.

type HandlerSuite struct {
	suite.Suite
	lookupSrv *lookuptest.Server
	router    http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.lookupSrv = lookuptest.NewServer(s.T(), map[string]string{
		"aa": lookuptest.CertificateJSON("1"),
		"bb": lookuptest.ErrorJSON("not found"),
		"zz": `{"parsed": {"subject_dn": "CN=broken"}}`,
	})
	s.router = s.newRouter("")
}

func (s *HandlerSuite) newRouter(token string) http.Handler {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	reg := prometheus.NewRegistry()

	cfg := config.Default()
	cfg.API.URL = s.lookupSrv.URL
	client, err := lookup.New(cfg.API)
	s.Require().NoError(err)
	e, err := enricher.New(client, enricher.WithMetrics(enrichmetrics.NewWithRegisterer(reg)))
	s.Require().NoError(err)
	b, err := batcher.New(e, cfg.Enrichment)
	s.Require().NoError(err)

	h, err := New(b, cfg.Enrichment.FingerprintField, logger, WithMaxBodyBytes(1024))
	s.Require().NoError(err)
	return NewRouter(h, RouterConfig{
		Logger:    logger,
		Metrics:   metrics.NewWithRegisterer(reg),
		Gatherer:  reg,
		AuthToken: token,
	})
}

func (s *HandlerSuite) post(body string, header ...string) *httptest.ResponseRecorder {
	req := testutil.NewNDJSONRequest(s.T(), http.MethodPost, "/v1/enrich", body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return testutil.DoRequest(s.router, req)
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *HandlerSuite) TestNew() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	_, err := New(nil, "fingerprint", logger)
	s.ErrorContains(err, "runner is required")

	b, err := batcher.New(batcherStub{}, config.Default().Enrichment)
	s.Require().NoError(err)
	_, err = New(b, "", logger)
	s.ErrorContains(err, "fingerprint field is required")
	_, err = New(b, "fingerprint", nil)
	s.ErrorContains(err, "logger is required")
}

// =============================================================================
// POST /v1/enrich
// =============================================================================

func (s *HandlerSuite) TestEnrich() {
	rec := s.post(testutil.NDJSON(s.T(),
		map[string]any{"fingerprint": "aa", "src": "10.0.0.1"},
		map[string]any{"fingerprint": "bb"},
		map[string]any{"fingerprint": "cc"},
	))

	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(contentTypeNDJSON, rec.Header().Get("Content-Type"))
	s.NotEmpty(rec.Header().Get("X-Request-ID"))

	lines := testutil.DecodeNDJSON(s.T(), rec.Body)
	s.Require().Len(lines, 3)
	s.Equal("aa", lines[0]["fingerprint"])
	s.Equal("10.0.0.1", lines[0]["src"])
	s.Equal(models.True, lines[0][models.FieldIsKnown])
	s.Equal(lookuptest.Validity, lines[0][models.FieldValidity])
	s.Equal([]any{"example.com", "www.example.com"}, lines[0][models.FieldSubjectAltNames])
	s.Equal(models.False, lines[0][models.FieldMicrosoftTrusted])
	s.Equal(map[string]any{"fingerprint": "bb", models.FieldIsKnown: models.False}, lines[1])
	s.Equal(map[string]any{"fingerprint": "cc", models.FieldIsKnown: models.False}, lines[2])
}

func (s *HandlerSuite) TestEmptyBody() {
	rec := s.post("")
	s.Equal(http.StatusOK, rec.Code)
	s.Empty(rec.Body.String())
	s.Empty(s.lookupSrv.Requests())
}

func (s *HandlerSuite) TestLookupOutageStillAnswers() {
	s.lookupSrv.FailWith(http.StatusServiceUnavailable)

	rec := s.post(`{"fingerprint":"aa"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	lines := testutil.DecodeNDJSON(s.T(), rec.Body)
	s.Require().Len(lines, 1)
	s.Equal(models.False, lines[0][models.FieldIsKnown])
}

func (s *HandlerSuite) TestBadRequests() {
	tests := map[string]string{
		"malformed json":      `{"fingerprint":`,
		"missing fingerprint": `{"host":"example.com"}`,
		"body too large":      `{"fingerprint":"` + strings.Repeat("a", 2048) + `"}`,
	}
	for name, body := range tests {
		s.Run(name, func() {
			rec := s.post(body)
			s.Equal(http.StatusBadRequest, rec.Code)

			var resp map[string]string
			s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
			s.Equal("bad_request", resp["error"])
			s.NotEmpty(resp["error_description"])
		})
	}
}

func (s *HandlerSuite) TestSchemaViolationIsBadGateway() {
	rec := s.post(`{"fingerprint":"aa"}` + "\n" + `{"fingerprint":"zz"}`)
	s.Equal(http.StatusBadGateway, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("bad_gateway", resp["error"])
	s.NotContains(resp, "error_description")
}

func (s *HandlerSuite) TestAuthToken() {
	s.router = s.newRouter("s3cret")

	s.Equal(http.StatusUnauthorized, s.post(`{"fingerprint":"aa"}`).Code)
	s.Equal(http.StatusOK, s.post(`{"fingerprint":"aa"}`, "Authorization", "Bearer s3cret").Code)
}

// =============================================================================
// Operational Routes
// =============================================================================

func (s *HandlerSuite) TestHealthz() {
	s.router = s.newRouter("s3cret")
	rec := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (s *HandlerSuite) TestMetrics() {
	s.post(`{"fingerprint":"aa"}`)

	rec := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `certenrich_http_requests_total{code="200",route="/v1/enrich"} 1`)
	s.Contains(rec.Body.String(), `certenrich_records_total{known="true"} 1`)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusInternalServerError, "db failed")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db failed") {
		t.Fatalf("expected description to be omitted for internal errors")
	}
}

type batcherStub struct{}

func (batcherStub) Enrich(_ context.Context, b *models.Batch) ([]*models.Record, error) {
	return b.Records, nil
}
