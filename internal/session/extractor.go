// Package session locates the caller's application session and backend
// credential in the inbound request.
package session

import (
	"net/http"
	"strings"
)

// CredentialLookup finds the value stored under a cookie name in one
// particular place of the request.
type CredentialLookup interface {
	Source() string
	Lookup(r *http.Request, name string) (string, bool)
}

// CookieStoreLookup reads cookies through net/http's parsed cookie store.
type CookieStoreLookup struct{}

// Source implements CredentialLookup.
func (CookieStoreLookup) Source() string { return "cookie_store" }

// Lookup implements CredentialLookup.
func (CookieStoreLookup) Lookup(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// RawHeaderLookup parses the Cookie header by hand. net/http silently drops
// cookies whose values contain bytes outside the RFC 6265 cookie-octet set,
// which some session libraries emit; this lookup still finds them.
type RawHeaderLookup struct{}

// Source implements CredentialLookup.
func (RawHeaderLookup) Source() string { return "raw_header" }

// Lookup implements CredentialLookup.
func (RawHeaderLookup) Lookup(r *http.Request, name string) (string, bool) {
	for _, line := range r.Header.Values("Cookie") {
		for _, pair := range strings.Split(line, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || k != name || v == "" {
				continue
			}
			return v, true
		}
	}
	return "", false
}

// DefaultLookups is the structured store first, then the raw header fallback.
var DefaultLookups = []CredentialLookup{CookieStoreLookup{}, RawHeaderLookup{}}

// Extractor tries a prioritized list of cookie names against each lookup in
// turn. Every name is tried against a lookup before moving to the next one.
type Extractor struct {
	names   []string
	lookups []CredentialLookup
}

// NewExtractor creates an Extractor over names using lookups, or
// DefaultLookups when none are given.
func NewExtractor(names []string, lookups ...CredentialLookup) *Extractor {
	if len(lookups) == 0 {
		lookups = DefaultLookups
	}
	return &Extractor{
		names:   append([]string(nil), names...),
		lookups: lookups,
	}
}

// Extract returns the first non-empty value found and the source it came from.
func (e *Extractor) Extract(r *http.Request) (value, source string, ok bool) {
	for _, l := range e.lookups {
		if v, found := firstMatch(e.names, func(name string) (string, bool) { return l.Lookup(r, name) }); found {
			return v, l.Source(), true
		}
	}
	return "", "", false
}

// Present reports whether any of the names carries a value.
func (e *Extractor) Present(r *http.Request) bool {
	_, _, ok := e.Extract(r)
	return ok
}

// Names returns the names tried, in priority order.
func (e *Extractor) Names() []string {
	return append([]string(nil), e.names...)
}

func firstMatch(names []string, lookup func(string) (string, bool)) (string, bool) {
	for _, name := range names {
		if v, ok := lookup(name); ok {
			return v, true
		}
	}
	return "", false
}
