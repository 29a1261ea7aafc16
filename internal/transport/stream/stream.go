// Package stream adapts newline-delimited JSON to the enrichment pipeline.
// Each input value is one record; output records are written one per line
// in input order.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"certenrich/internal/enrichment/models"
)

var (
	// ErrMissingFingerprint reports a record whose fingerprint field is
	// absent, empty or not a string.
	ErrMissingFingerprint = errors.New("record has no fingerprint")

	// ErrMalformedRecord reports input that is not a stream of JSON objects.
	ErrMalformedRecord = errors.New("malformed record")
)

// Runner runs one enrichment invocation.
type Runner interface {
	Run(ctx context.Context, records iter.Seq2[*models.Record, error]) ([]*models.Record, error)
}

// Decoder reads records from JSON input, taking the fingerprint from a
// configured field.
type Decoder struct {
	field string
	path  []string
}

// NewDecoder returns a decoder reading the fingerprint from field. A dotted
// field such as "entity.sha256" matches a literal key of that name first and
// otherwise walks nested objects.
func NewDecoder(field string) *Decoder {
	return &Decoder{field: field, path: strings.Split(field, ".")}
}

// Records yields records lazily from r. The sequence stops at the first
// error, which is yielded with a nil record.
func (d *Decoder) Records(r io.Reader) iter.Seq2[*models.Record, error] {
	return func(yield func(*models.Record, error) bool) {
		dec := json.NewDecoder(r)
		dec.UseNumber()
		for n := 1; ; n++ {
			var fields map[string]any
			err := dec.Decode(&fields)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%w: record %d: %w", ErrMalformedRecord, n, err))
				return
			}
			if fields == nil {
				yield(nil, fmt.Errorf("%w: record %d: null", ErrMalformedRecord, n))
				return
			}
			rec, err := d.Record(fields)
			if err != nil {
				yield(nil, fmt.Errorf("record %d: %w", n, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Decode reads a single record from one JSON object.
func (d *Decoder) Decode(data []byte) (*models.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: null", ErrMalformedRecord)
	}
	return d.Record(fields)
}

// Record wraps decoded fields in a record.
func (d *Decoder) Record(fields map[string]any) (*models.Record, error) {
	fp, ok := d.fingerprint(fields)
	if !ok {
		return nil, fmt.Errorf("%w: field %q", ErrMissingFingerprint, d.field)
	}
	return models.NewRecord(fp, fields), nil
}

func (d *Decoder) fingerprint(fields map[string]any) (string, bool) {
	if v, ok := fields[d.field]; ok {
		s, ok := v.(string)
		return s, ok && strings.TrimSpace(s) != ""
	}

	var cur any = fields
	for _, key := range d.path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = obj[key]; !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok && strings.TrimSpace(s) != ""
}

// Encode writes records as one JSON object per line.
func Encode(w io.Writer, records []*models.Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec.Fields); err != nil {
			return fmt.Errorf("encode record %d: %w", i+1, err)
		}
	}
	return bw.Flush()
}

// Pipe runs one invocation over every record in r and writes the result to
// w. Nothing is written when the invocation fails.
func Pipe(ctx context.Context, runner Runner, dec *Decoder, r io.Reader, w io.Writer) error {
	records, err := runner.Run(ctx, dec.Records(r))
	if err != nil {
		return err
	}
	return Encode(w, records)
}
