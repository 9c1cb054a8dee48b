package purge

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Site describes the public surface the planner enumerates against.
type Site struct {
	// Origin is the public base URL, e.g. "https://reviews.example.com".
	Origin string

	// Languages are all supported language codes.
	Languages []string

	// DefaultLanguage is the language served by untagged legacy URLs: the
	// default language is reachable both with and without an explicit lang
	// parameter, and both forms must be purged together.
	DefaultLanguage string

	// Sorts are the supported listing sort orders.
	Sorts []string

	// FeedSizes are the supported limit variants of the latest/popular feeds.
	FeedSizes []int
}

// DefaultSite returns the site shape used by the edge server.
func DefaultSite(origin string) Site {
	return Site{
		Origin:          origin,
		Languages:       []string{"de", "en", "es", "fr", "tr"},
		DefaultLanguage: "en",
		Sorts:           []string{"newest", "popular", "rating"},
		FeedSizes:       []int{5, 10, 20},
	}
}

// Planner enumerates the cache URLs derived from a changed entity. The walk is
// a fixed cross-product over languages, translation slugs, sort orders, and
// related entities.
//
// Only the first page of paginated listings is enumerated; deeper pages stay
// stale until their TTL expires. That is a deliberate cost/freshness tradeoff,
// not an omission: deep pages are rarely read and purging them would multiply
// the fan-out by the page count.
type Planner struct {
	site Site
}

// NewPlanner creates a planner for the given site.
func NewPlanner(site Site) *Planner {
	return &Planner{site: site}
}

// Plan returns the deduplicated set of absolute URLs whose cached responses
// could contain the target entity. Order is not significant; the slice is
// sorted only so output is stable. A target missing optional relations yields
// a smaller set, never an error.
func (p *Planner) Plan(t Target) []string {
	set := make(urlSet)

	p.addDetail(set, "/reviews/%s", t.slugs())
	p.addListings(set, "/reviews", t.CategoryID, "/catalog/reviews/%d")
	p.addCategoryChildren(set, t.CategoryID)
	if t.Product != nil {
		p.addDetail(set, "/products/%s", t.Product.slugs())
		p.addListings(set, "/products", t.CategoryID, "/catalog/products/%d")
	}
	p.addAuthor(set, t.Author)
	p.addCommentThread(set, t)
	p.addAggregates(set)

	return set.sorted()
}

// addDetail emits a detail URL for every slug in every language, plus the
// untagged legacy form of each slug for the default language.
func (p *Planner) addDetail(set urlSet, pathFormat string, slugs []string) {
	for _, slug := range slugs {
		path := fmt.Sprintf(pathFormat, url.PathEscape(slug))
		set.add(p.build(path, nil))
		for _, lang := range p.site.Languages {
			set.add(p.build(path, params{"lang": lang}))
		}
	}
}

// addListings emits the unrestricted listing and, when the entity is
// categorized, the category-restricted listing: every language, every sort at
// the first page, plus the bare per-language form that requests with implicit
// defaults produce.
func (p *Planner) addListings(set urlSet, listPath string, categoryID int64, categoryFormat string) {
	paths := []string{listPath}
	if categoryID > 0 {
		paths = append(paths, fmt.Sprintf(categoryFormat, categoryID))
	}
	for _, path := range paths {
		for _, lang := range p.site.Languages {
			set.add(p.build(path, params{"lang": lang}))
			for _, sortOrder := range p.site.Sorts {
				set.add(p.build(path, params{"lang": lang, "sort": sortOrder, "page": "1"}))
			}
		}
	}
}

// addCategoryChildren emits the parent category's subcategory listing.
func (p *Planner) addCategoryChildren(set urlSet, categoryID int64) {
	if categoryID <= 0 {
		return
	}
	path := fmt.Sprintf("/categories/%d/children", categoryID)
	for _, lang := range p.site.Languages {
		set.add(p.build(path, params{"lang": lang}))
	}
}

// addAuthor emits the author's profile, review list, and comment list.
func (p *Planner) addAuthor(set urlSet, author string) {
	if author == "" {
		return
	}
	escaped := url.PathEscape(author)
	for _, path := range []string{
		"/users/" + escaped,
		"/users/" + escaped + "/reviews",
		"/users/" + escaped + "/comments",
	} {
		set.add(p.build(path, nil))
		for _, lang := range p.site.Languages {
			set.add(p.build(path, params{"lang": lang}))
		}
	}
}

// addCommentThread emits the first page of the entity's comment thread. The
// thread is reachable under every translation slug and language tag, and each
// form is a distinct cache key, so the full cross-product is enumerated.
func (p *Planner) addCommentThread(set urlSet, t Target) {
	if !t.CommentThread {
		return
	}
	for _, slug := range t.slugs() {
		path := fmt.Sprintf("/reviews/%s/comments", url.PathEscape(slug))
		set.add(p.build(path, nil))
		set.add(p.build(path, params{"page": "1"}))
		for _, lang := range p.site.Languages {
			set.add(p.build(path, params{"lang": lang}))
			set.add(p.build(path, params{"lang": lang, "page": "1"}))
		}
	}
}

// addAggregates emits the homepage composite and the latest/popular feeds: a
// new or updated entity can surface in any of them regardless of its own
// identity, so they are purged for every language and every size variant.
func (p *Planner) addAggregates(set urlSet) {
	for _, lang := range p.site.Languages {
		set.add(p.build("/home", params{"lang": lang}))
		for _, feed := range []string{"/latest", "/popular"} {
			set.add(p.build(feed, params{"lang": lang}))
			for _, size := range p.site.FeedSizes {
				set.add(p.build(feed, params{"lang": lang, "limit": fmt.Sprintf("%d", size)}))
			}
		}
	}
}

type params map[string]string

// build assembles an absolute URL with its query parameters in sorted order,
// matching the canonical form the cache keys use.
func (p *Planner) build(path string, query params) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(p.site.Origin, "/"))
	b.WriteString(path)
	if len(query) > 0 {
		names := make([]string, 0, len(query))
		for name := range query {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i == 0 {
				b.WriteByte('?')
			} else {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(query[name]))
		}
	}
	return b.String()
}

// urlSet deduplicates enumerated URLs.
type urlSet map[string]struct{}

func (s urlSet) add(u string) { s[u] = struct{}{} }

func (s urlSet) sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
