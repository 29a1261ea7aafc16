package lookup

import (
	"encoding/json"
	"fmt"
)

// Request is the bulk lookup request body.
type Request struct {
	Fingerprints []string `json:"fingerprints"`
}

// Response maps each requested fingerprint to its raw entry. Fingerprints
// the service does not mention are absent from the map. Entries are decoded
// one at a time by Entry so a malformed entry only affects its own record.
type Response map[string]json.RawMessage

// Entry decodes the entry for fingerprint. It reports false when the service
// did not mention the fingerprint. An entry that does not match the expected
// shape returns an error wrapping ErrSchemaViolation.
func (r Response) Entry(fingerprint string) (Entry, bool, error) {
	raw, ok := r[fingerprint]
	if !ok {
		return Entry{}, false, nil
	}
	e, err := DecodeEntry(raw)
	return e, true, err
}

// DecodeEntry decodes one raw entry. An error marker is returned without
// looking at the rest of the object.
func DecodeEntry(raw json.RawMessage) (Entry, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return Entry{}, fmt.Errorf("%w: entry is not an object: %v", ErrSchemaViolation, err)
	}
	if marker, ok := members["error"]; ok {
		return Entry{Error: marker}, nil
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return e, nil
}

// Entry is either an error marker or a certificate detail. Nested fields are
// pointers so that absence can be told apart from zero values.
type Entry struct {
	Error      json.RawMessage          `json:"error,omitempty"`
	Parsed     *Parsed                  `json:"parsed,omitempty"`
	Validation map[string]*TrustVerdict `json:"validation,omitempty"`
}

// IsError reports whether the service returned an error marker for the
// fingerprint (an "error" key, regardless of its value).
func (e Entry) IsError() bool {
	return len(e.Error) > 0
}

// Parsed holds the parsed X.509 fields.
type Parsed struct {
	SubjectDN          *string        `json:"subject_dn"`
	IssuerDN           *string        `json:"issuer_dn"`
	SerialNumber       *string        `json:"serial_number"`
	Validity           *Validity      `json:"validity"`
	Names              []string       `json:"names"`
	SubjectKeyInfo     SubjectKeyInfo `json:"subject_key_info"`
	SignatureAlgorithm *Algorithm     `json:"signature_algorithm"`
}

// Validity is the certificate validity window. Length is in seconds.
type Validity struct {
	Start  *string  `json:"start"`
	End    *string  `json:"end"`
	Length *float64 `json:"length"`
}

// Algorithm names a key or signature algorithm.
type Algorithm struct {
	Name *string `json:"name"`
}

// SubjectKeyInfo keeps the raw subject key info object. The public key lives
// under a key named after the algorithm ("rsa_public_key", "ecdsa_public_key"),
// so it cannot be modelled with fixed struct fields.
type SubjectKeyInfo map[string]json.RawMessage

// Decode unmarshals the member named key into v. It reports false when the
// member is absent or null.
func (s SubjectKeyInfo) Decode(key string, v any) (bool, error) {
	raw, ok := s[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("%w: subject_key_info.%s: %v", ErrSchemaViolation, key, err)
	}
	return true, nil
}

// RSAPublicKey is the "rsa_public_key" member of SubjectKeyInfo.
type RSAPublicKey struct {
	Length   *int   `json:"length"`
	Exponent *int64 `json:"exponent"`
}

// CurvePublicKey is the member for curve-typed keys such as "ecdsa_public_key".
type CurvePublicKey struct {
	Curve *string `json:"curve"`
}

// TrustVerdict is one trust store's validation result.
type TrustVerdict struct {
	Valid *bool `json:"valid"`
}

// Trust store keys under "validation".
const (
	TrustStoreApple     = "apple"
	TrustStoreGoogleCT  = "google_ct_primary"
	TrustStoreMicrosoft = "microsoft"
	TrustStoreNSS       = "nss"
)
