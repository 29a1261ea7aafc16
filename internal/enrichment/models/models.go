// Package models defines the record and batch types that flow through the
// enrichment stage.
package models

import (
	"iter"

	"certenrich/pkg/fingerprint"
)

// Output fields added to every record (is_known) or to known records only.
const (
	FieldIsKnown          = "is_known"
	FieldSubjectDN        = "subject_dn"
	FieldIssuerDN         = "issuer_dn"
	FieldSerialNumber     = "serial_number"
	FieldValidity         = "validity"
	FieldSubjectAltNames  = "subject_alt_names"
	FieldKeyInfo          = "key_info"
	FieldSigAlgorithm     = "sig_algorithm"
	FieldAppleTrusted     = "apple_trusted"
	FieldGoogleTrusted    = "google_trusted"
	FieldMicrosoftTrusted = "microsoft_trusted"
	FieldMozillaTrusted   = "mozilla_trusted"
)

// KnownFields lists the fields populated only for known certificates.
var KnownFields = []string{
	FieldSubjectDN,
	FieldIssuerDN,
	FieldSerialNumber,
	FieldValidity,
	FieldSubjectAltNames,
	FieldKeyInfo,
	FieldSigAlgorithm,
	FieldAppleTrusted,
	FieldGoogleTrusted,
	FieldMicrosoftTrusted,
	FieldMozillaTrusted,
}

// Boolean values are rendered as strings for host compatibility.
const (
	True  = "True"
	False = "False"
)

// FormatBool renders b as True or False.
func FormatBool(b bool) string {
	if b {
		return True
	}
	return False
}

// Record is one certificate event. Fingerprint is the lookup key; Fields holds
// every field the host supplied plus the fields enrichment adds. Enrichment
// only ever adds or overwrites its own output fields.
type Record struct {
	Fingerprint string
	Fields      map[string]any
}

// NewRecord creates a record, allocating Fields when nil.
func NewRecord(fp string, fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{Fingerprint: fp, Fields: fields}
}

// Set stores a field value.
func (r *Record) Set(key string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[key] = value
}

// Get returns a field value.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// IsKnown reports whether enrichment found the certificate.
func (r *Record) IsKnown() bool {
	v, _ := r.Fields[FieldIsKnown].(string)
	return v == True
}

// Batch is a group of records looked up in one remote call.
//
// Invariants:
//   - len(Fingerprints) == len(Records)
//   - Fingerprints[i] is the normalised fingerprint of Records[i]
type Batch struct {
	Seq          int // scheduling order within an invocation
	Records      []*Record
	Fingerprints []string
}

// NewBatch builds a batch, deriving the normalised fingerprints from records.
func NewBatch(seq int, records []*Record) *Batch {
	fps := make([]string, len(records))
	for i, r := range records {
		fps[i] = fingerprint.Normalize(r.Fingerprint)
	}
	return &Batch{Seq: seq, Records: records, Fingerprints: fps}
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}

// Seq yields records from a slice as an input sequence with no errors.
func Seq(records []*Record) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}
