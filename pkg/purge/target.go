// Package purge computes and executes cache invalidation fan-out. The edge
// cache has no tag index, so when an entity changes every derived view that
// could contain it is re-derived from the entity's relations and enumerated
// explicitly, then purged best-effort in the background.
package purge

// Translation is one localized slug of an entity.
type Translation struct {
	Language string
	Slug     string
}

// ProductRef identifies the product a review is attached to, with enough slug
// data to enumerate the product's own cached views.
type ProductRef struct {
	ID           int64
	Slug         string
	Translations []Translation
}

// Target describes one changed entity and everything needed to enumerate its
// dependent cache keys. Optional relations are simply left zero: a target with
// no category, product, or author produces a smaller URL set, never an error.
type Target struct {
	// ID is the entity's stable identifier.
	ID int64

	// Slug is the entity's primary (default-language) slug.
	Slug string

	// Translations are the entity's localized (language, slug) pairs.
	Translations []Translation

	// CategoryID is the entity's category, 0 when uncategorized.
	CategoryID int64

	// Product is the related product, nil when the entity has none.
	Product *ProductRef

	// Author is the acting author's username, empty when unknown.
	Author string

	// CommentThread is true when the entity carries a comment thread whose
	// first page is cached.
	CommentThread bool
}

// slugs returns the entity's primary slug plus all translation slugs,
// deduplicated, preserving first-seen order.
func (t Target) slugs() []string {
	return dedupSlugs(t.Slug, t.Translations)
}

func (p *ProductRef) slugs() []string {
	return dedupSlugs(p.Slug, p.Translations)
}

func dedupSlugs(primary string, translations []Translation) []string {
	seen := make(map[string]struct{}, len(translations)+1)
	var out []string
	add := func(slug string) {
		if slug == "" {
			return
		}
		if _, ok := seen[slug]; ok {
			return
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	add(primary)
	for _, tr := range translations {
		add(tr.Slug)
	}
	return out
}
