package domain

import (
	"regexp"
	"strings"
)

// Validation is deliberately stricter than RFC 5321: the service only ever
// mints aliases it can also safely embed in URLs, SQL keys and SMTP
// envelopes, so the accepted grammar is the lowercase safe subset.
var (
	// alias local part: a-z 0-9 and inner dots, 1..64, no leading/trailing dot
	reAliasName = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9.]{0,62}[a-z0-9])?$`)

	// DNS domain: lowercase labels with inner hyphens, at least one dot,
	// alphabetic TLD of 2..63
	reDomain = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)

	// destination local part: also allows underscore and hyphen
	reEmailLocal = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]{0,62}[a-z0-9])?$`)
)

const (
	maxEmailLen  = 254
	maxDomainLen = 253
)

// Normalize trims and lower-cases free-form user input.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidAliasName reports whether name is acceptable as an alias local part.
// The input must already be normalized.
func ValidAliasName(name string) bool {
	return reAliasName.MatchString(name)
}

// ValidDomainName reports whether name is an acceptable DNS domain.
// The input must already be normalized.
func ValidDomainName(name string) bool {
	if len(name) > maxDomainLen {
		return false
	}
	return reDomain.MatchString(name)
}

// ParsedEmail is the result of a strict email parse.
type ParsedEmail struct {
	Email  string // normalized full address
	Local  string
	Domain string
}

// ParseEmail normalizes and strictly validates a destination email address.
// It returns nil when the address does not fit the accepted grammar.
func ParseEmail(raw string) *ParsedEmail {
	v := Normalize(raw)
	if v == "" || len(v) > maxEmailLen {
		return nil
	}

	at := strings.IndexByte(v, '@')
	if at <= 0 {
		return nil
	}
	if strings.IndexByte(v[at+1:], '@') != -1 {
		return nil
	}

	local, dom := v[:at], v[at+1:]
	if !reEmailLocal.MatchString(local) {
		return nil
	}
	if !ValidDomainName(dom) {
		return nil
	}

	return &ParsedEmail{Email: v, Local: local, Domain: dom}
}

// DomainSuffixes returns d and every parent domain down to the registrable
// suffix, so a ban on "banned.com" also covers "sub.banned.com".
func DomainSuffixes(d string) []string {
	parts := strings.Split(d, ".")
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for i := 0; i < len(parts)-1; i++ {
		out = append(out, strings.Join(parts[i:], "."))
	}
	return out
}
