package enricher

import (
	"slices"

	"certenrich/internal/enrichment/models"
	"certenrich/internal/lookup"
)

// trustFields maps output fields onto trust store keys under "validation".
var trustFields = []struct {
	field string
	store string
}{
	{models.FieldAppleTrusted, lookup.TrustStoreApple},
	{models.FieldGoogleTrusted, lookup.TrustStoreGoogleCT},
	{models.FieldMicrosoftTrusted, lookup.TrustStoreMicrosoft},
	{models.FieldMozillaTrusted, lookup.TrustStoreNSS},
}

// knownFields builds the output fields of a known certificate. Nothing is
// written to a record until every field has been derived, so a schema
// violation leaves the record untouched.
func knownFields(entry lookup.Entry) (map[string]any, error) {
	p := entry.Parsed
	if p == nil {
		return nil, missing("parsed")
	}
	if p.SubjectDN == nil {
		return nil, missing("parsed.subject_dn")
	}
	if p.IssuerDN == nil {
		return nil, missing("parsed.issuer_dn")
	}
	if p.SerialNumber == nil {
		return nil, missing("parsed.serial_number")
	}
	if p.SignatureAlgorithm == nil || p.SignatureAlgorithm.Name == nil {
		return nil, missing("parsed.signature_algorithm.name")
	}

	validity, err := FormatValidity(p.Validity)
	if err != nil {
		return nil, err
	}
	keyInfo, err := FormatKeyInfo(p.SubjectKeyInfo)
	if err != nil {
		return nil, err
	}

	names := slices.Clone(p.Names)
	if names == nil {
		names = []string{}
	}

	fields := map[string]any{
		models.FieldIsKnown:         models.True,
		models.FieldSubjectDN:       *p.SubjectDN,
		models.FieldIssuerDN:        *p.IssuerDN,
		models.FieldSerialNumber:    *p.SerialNumber,
		models.FieldValidity:        validity,
		models.FieldSubjectAltNames: names,
		models.FieldKeyInfo:         keyInfo,
		models.FieldSigAlgorithm:    *p.SignatureAlgorithm.Name,
	}
	for _, tf := range trustFields {
		verdict := entry.Validation[tf.store]
		if verdict == nil || verdict.Valid == nil {
			return nil, missing("validation." + tf.store + ".valid")
		}
		fields[tf.field] = models.FormatBool(*verdict.Valid)
	}
	return fields, nil
}

func markUnknown(rec *models.Record) {
	rec.Set(models.FieldIsKnown, models.False)
}

func apply(rec *models.Record, fields map[string]any) {
	for k, v := range fields {
		rec.Set(k, v)
	}
}
