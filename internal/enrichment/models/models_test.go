package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBatchDerivesFingerprints(t *testing.T) {
	records := []*Record{
		NewRecord(" AA ", nil),
		NewRecord("bb", map[string]any{"host": "example.com"}),
		NewRecord("AA", nil),
	}

	b := NewBatch(3, records)

	assert.Equal(t, 3, b.Seq)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"aa", "bb", "aa"}, b.Fingerprints)
	// the host's copy of the fingerprint is never rewritten
	assert.Equal(t, " AA ", records[0].Fingerprint)
}

func TestRecordFields(t *testing.T) {
	r := &Record{Fingerprint: "aa"}
	assert.False(t, r.IsKnown())

	r.Set(FieldIsKnown, FormatBool(true))
	v, ok := r.Get(FieldIsKnown)
	assert.True(t, ok)
	assert.Equal(t, True, v)
	assert.True(t, r.IsKnown())

	r.Set(FieldIsKnown, FormatBool(false))
	assert.False(t, r.IsKnown())
}

func TestSeqStopsEarly(t *testing.T) {
	records := []*Record{NewRecord("a", nil), NewRecord("b", nil), NewRecord("c", nil)}

	var seen []string
	for r, err := range Seq(records) {
		assert.NoError(t, err)
		seen = append(seen, r.Fingerprint)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}
