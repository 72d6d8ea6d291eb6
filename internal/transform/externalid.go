package transform

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ExternalID builds the globally stable transaction identity from the owning
// account and the statement's FITID. FITID alone is only unique within one
// statement; the account prefix makes it a valid upsert key. The derivation
// is pure: the same pair always yields the same id, byte for byte.
func ExternalID(accountID, fitID string) string {
	return accountID + "-" + fitID
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// SlugifyAccount converts a human account or institution label into a stable
// lowercase slug usable as an account identifier.
// Examples: "American Express" → "american-express", "Café Crédit" → "cafe-credit"
func SlugifyAccount(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("account name cannot be empty")
	}

	// Strip diacritics so accented labels produce ASCII slugs.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize account name %q: %w", name, err)
	}

	slug := strings.ToLower(normalized)
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return "", fmt.Errorf("account name %q contains no usable characters", name)
	}
	return slug, nil
}

// AccountIDFromPath derives an account id from scanner metadata, the
// {institution}/{account} directory labels. Used by the CLI when the caller
// did not pass an explicit account id.
func AccountIDFromPath(institution, accountNumber string) (string, error) {
	if institution == "" || accountNumber == "" {
		return "", fmt.Errorf("institution and account number are both required to derive an account id")
	}
	slug, err := SlugifyAccount(institution)
	if err != nil {
		return "", err
	}
	numSlug, err := SlugifyAccount(accountNumber)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", slug, numSlug), nil
}
