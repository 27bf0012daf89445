// Package urlparse splits raw URLs into the components the registry stores.
package urlparse

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL signals that the submitted string is not a usable URL.
var ErrInvalidURL = errors.New("invalid url")

// Param is a single query key/value pair. Duplicate keys are legal and are
// kept as separate entries in submission order.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Components holds the parsed pieces of a resource URL.
type Components struct {
	Protocol   string
	Domain     string
	DomainZone string
	Path       string
	Query      []Param
}

// Parse splits raw into protocol, domain, domain zone, path and query
// parameters. It fails with ErrInvalidURL when the input is empty or has
// neither a scheme nor a host.
func Parse(raw string) (Components, error) {
	if strings.TrimSpace(raw) == "" {
		return Components{}, fmt.Errorf("parse url: empty input: %w", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Components{}, fmt.Errorf("parse url %q: %w", raw, ErrInvalidURL)
	}
	if u.Scheme == "" && u.Host == "" {
		return Components{}, fmt.Errorf("parse url %q: no scheme or host: %w", raw, ErrInvalidURL)
	}

	return Components{
		Protocol:   u.Scheme,
		Domain:     u.Host,
		DomainZone: domainZone(u.Host),
		Path:       u.Path,
		Query:      parseQuery(u.RawQuery),
	}, nil
}

// domainZone returns the label after the last dot of the domain. A domain
// without dots is its own zone.
func domainZone(domain string) string {
	if idx := strings.LastIndex(domain, "."); idx >= 0 {
		return domain[idx+1:]
	}
	return domain
}

// parseQuery decodes a raw query string while preserving parameter order and
// duplicate keys, which url.Values would collapse into a map.
func parseQuery(rawQuery string) []Param {
	if rawQuery == "" {
		return nil
	}
	var params []Param
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		params = append(params, Param{Key: key, Value: value})
	}
	return params
}
