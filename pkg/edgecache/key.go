package edgecache

import (
	"net/url"
	"sort"
	"strings"
)

// pair is one query parameter occurrence.
type pair struct {
	name  string
	value string
}

// Canonicalize builds the cache key for a request path and its query
// parameters. Parameters are sorted lexicographically by name, then by value,
// so any permutation of the same parameter set maps to the same key. The path
// is taken as-is: case and trailing slashes are significant, and routes are
// expected to be registered consistently.
//
// Example:
//
//	Canonicalize("/reviews", url.Values{"sort": {"newest"}, "lang": {"en"}})
//	// "/reviews?lang=en&sort=newest"
func Canonicalize(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}

	pairs := make([]pair, 0, len(query))
	for name, values := range query {
		for _, value := range values {
			pairs = append(pairs, pair{name: name, value: value})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].name != pairs[j].name {
			return pairs[i].name < pairs[j].name
		}
		return pairs[i].value < pairs[j].value
	})

	var b strings.Builder
	b.WriteString(path)
	for i, p := range pairs {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// CanonicalizeURL derives the cache key for a full or relative URL string.
// The scheme and host are dropped so that purge URLs built against the public
// origin map onto the same keys the request path produces. Canonicalization is
// idempotent: applying it to its own output yields the same key.
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return Canonicalize(u.Path, u.Query()), nil
}
