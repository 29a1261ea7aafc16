package enricher

import (
	"fmt"
	"math"
	"strings"
	"time"

	"certenrich/internal/lookup"
)

const timestampLayout = "2006-01-02 15:04:05"

const rsaKeyType = "rsa_public_key"

// FormatValidity renders a validity window as
// "<start> to <end> (<elapsed>)".
func FormatValidity(v *lookup.Validity) (string, error) {
	if v == nil {
		return "", missing("parsed.validity")
	}
	if v.Start == nil {
		return "", missing("parsed.validity.start")
	}
	if v.End == nil {
		return "", missing("parsed.validity.end")
	}
	if v.Length == nil {
		return "", missing("parsed.validity.length")
	}
	return fmt.Sprintf("%s to %s (%s)",
		FormatTimestamp(*v.Start),
		FormatTimestamp(*v.End),
		FormatElapsed(*v.Length),
	), nil
}

// FormatTimestamp drops the sub-second part and zone suffix of an ISO 8601
// timestamp and separates date and time with a space. The wall clock is kept
// as sent; no zone conversion happens.
func FormatTimestamp(ts string) string {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.Format(timestampLayout)
	}
	// Not RFC 3339; strip textually.
	ts = strings.TrimSuffix(ts, "Z")
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		ts = ts[:i]
	}
	return strings.Replace(ts, "T", " ", 1)
}

// FormatElapsed renders a span of seconds as "[N day[s], ]H:MM:SS".
// Fractions of a second are dropped. Negative spans borrow a whole day, so
// -1 renders as "-1 day, 23:59:59".
func FormatElapsed(seconds float64) string {
	total := int64(math.Floor(seconds))
	days := total / 86400
	rem := total % 86400
	if rem < 0 {
		days--
		rem += 86400
	}

	clock := fmt.Sprintf("%d:%02d:%02d", rem/3600, rem%3600/60, rem%60)
	if days == 0 {
		return clock
	}
	unit := "days"
	if days == 1 || days == -1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s, %s", days, unit, clock)
}

// FormatKeyInfo describes the subject public key. The key type is the
// lowercased algorithm name plus "_public_key". RSA keys render as
// "<bits>-bit RSA, e=<exponent>", every other type as "<Name> (<curve>)".
func FormatKeyInfo(ski lookup.SubjectKeyInfo) (string, error) {
	var alg lookup.Algorithm
	ok, err := ski.Decode("key_algorithm", &alg)
	if err != nil {
		return "", err
	}
	if !ok || alg.Name == nil {
		return "", missing("parsed.subject_key_info.key_algorithm.name")
	}
	name := *alg.Name
	keyType := strings.ToLower(name) + "_public_key"

	if keyType == rsaKeyType {
		var key lookup.RSAPublicKey
		ok, err := ski.Decode(keyType, &key)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", missing("parsed.subject_key_info." + keyType)
		}
		if key.Length == nil {
			return "", missing("parsed.subject_key_info." + keyType + ".length")
		}
		if key.Exponent == nil {
			return "", missing("parsed.subject_key_info." + keyType + ".exponent")
		}
		return fmt.Sprintf("%d-bit %s, e=%d", *key.Length, name, *key.Exponent), nil
	}

	var key lookup.CurvePublicKey
	ok, err = ski.Decode(keyType, &key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", missing("parsed.subject_key_info." + keyType)
	}
	if key.Curve == nil {
		return "", missing("parsed.subject_key_info." + keyType + ".curve")
	}
	return fmt.Sprintf("%s (%s)", name, *key.Curve), nil
}

func missing(path string) error {
	return fmt.Errorf("%w: %s is missing", lookup.ErrSchemaViolation, path)
}
