// Package address builds canonical query strings and stable cache keys
// from the postal address fields of a roster record.
package address

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Required address columns, in the order they are joined into queries.
const (
	FieldStreet     = "Adresse"
	FieldPostalCode = "Code Postal"
	FieldCity       = "Ville"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Normalized is the canonical identity of an address. The same field values
// always produce the same Key, regardless of casing, accents, or spacing.
type Normalized struct {
	// Key is the cache and duplicate-detection key. Empty when the record
	// carries no usable address component at all.
	Key string

	// Query is the human-readable form sent to geocoding providers,
	// e.g. "10 Rue de la Paix, 75002, Paris".
	Query string

	// Missing lists the required fields that were blank.
	Missing []string
}

// Empty reports whether the record had no usable address component.
func (n Normalized) Empty() bool {
	return n.Key == ""
}

// Normalize derives the canonical form of an address from its components.
// Blank components are tolerated; they are recorded in Missing and simply
// left out of the key and query.
func Normalize(street, postalCode, city string) Normalized {
	var n Normalized
	var keyParts, queryParts []string

	for _, c := range []struct{ name, value string }{
		{FieldStreet, street},
		{FieldPostalCode, postalCode},
		{FieldCity, city},
	} {
		v := strings.TrimSpace(c.value)
		if v == "" {
			n.Missing = append(n.Missing, c.name)
			continue
		}
		queryParts = append(queryParts, v)
		keyParts = append(keyParts, Fold(v))
	}

	n.Query = strings.Join(queryParts, ", ")
	if len(keyParts) > 0 {
		n.Key = strings.Join(keyParts, "|")
	}
	return n
}

// Fold lowercases s, strips diacritics, and collapses runs of whitespace to
// a single space. Deterministic for any input.
func Fold(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.ToLower(strings.TrimSpace(s)),
	)
	return whitespaceRE.ReplaceAllString(s, " ")
}
