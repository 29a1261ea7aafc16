// Package lookuptest provides fixtures and a fake bulk-lookup server for tests
// of packages that sit on top of the lookup client.
package lookuptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"certenrich/internal/lookup"
)

// Field values of the certificate returned by CertificateJSON.
const (
	SubjectDN     = "CN=example.com"
	IssuerDN      = "C=US, O=Let's Encrypt, CN=R3"
	Validity      = "2020-01-01 00:00:00 to 2021-01-01 00:00:00 (366 days, 0:00:00)"
	KeyInfo       = "2048-bit RSA, e=65537"
	SignatureAlgo = "SHA256-RSA"
)

// SubjectAltNames are the names returned by CertificateJSON.
var SubjectAltNames = []string{"example.com", "www.example.com"}

// CertificateJSON returns a complete known-certificate entry. Microsoft is
// the only trust store that rejects it.
func CertificateJSON(serial string) string {
	return fmt.Sprintf(`{
	"parsed": {
		"subject_dn": %q,
		"issuer_dn": %q,
		"serial_number": %q,
		"validity": {"start": "2020-01-01T00:00:00Z", "end": "2021-01-01T00:00:00Z", "length": 31622400},
		"names": ["example.com", "www.example.com"],
		"subject_key_info": {
			"key_algorithm": {"name": "RSA"},
			"rsa_public_key": {"length": 2048, "exponent": 65537}
		},
		"signature_algorithm": {"name": %q}
	},
	"validation": {
		"apple": {"valid": true},
		"google_ct_primary": {"valid": true},
		"microsoft": {"valid": false},
		"nss": {"valid": true}
	}
}`, SubjectDN, IssuerDN, serial, SignatureAlgo)
}

// ErrorJSON returns an error-marker entry.
func ErrorJSON(message string) string {
	return fmt.Sprintf(`{"error": %q}`, message)
}

// KnownEntry returns CertificateJSON as a raw response entry.
func KnownEntry(t testing.TB, serial string) json.RawMessage {
	t.Helper()
	return MustEntry(t, CertificateJSON(serial))
}

// ErrorEntry returns ErrorJSON as a raw response entry.
func ErrorEntry(t testing.TB, message string) json.RawMessage {
	t.Helper()
	return MustEntry(t, ErrorJSON(message))
}

// MustEntry returns raw as a response entry, failing the test when it is not
// valid JSON. The shape is not checked.
func MustEntry(t testing.TB, raw string) json.RawMessage {
	t.Helper()
	if !json.Valid([]byte(raw)) {
		t.Fatalf("entry is not valid JSON: %s", raw)
	}
	return json.RawMessage(raw)
}

// Server is a fake bulk-lookup endpoint answering from a fixed table of raw
// JSON entries. Fingerprints missing from the table are omitted from the
// response, as the real service does for unknown certificates.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	entries  map[string]string
	status   int
	requests [][]string
}

// NewServer starts a fake server; it is closed when the test ends.
func NewServer(t testing.TB, entries map[string]string) *Server {
	t.Helper()
	s := &Server{entries: entries, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// FailWith makes every subsequent call answer with the given status.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Requests returns the fingerprint lists received so far, in arrival order.
func (s *Server) Requests() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var req lookup.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req.Fingerprints)
	status := s.status
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	out := make(map[string]json.RawMessage, len(req.Fingerprints))
	for _, fp := range req.Fingerprints {
		if raw, ok := s.entries[fp]; ok {
			out[fp] = json.RawMessage(raw)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
