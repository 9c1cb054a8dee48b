// Package testutil provides in-memory fakes and fixtures for edge tests.
package testutil

import (
	"context"
	"sync"

	"github.com/hasancaglar07/usercomments-edge/internal/data"
	"github.com/hasancaglar07/usercomments-edge/pkg/purge"
)

// FakeData is an in-memory stand-in for the data layer. It satisfies the
// server's Data interface; fixtures are keyed the same way the real queries
// are.
type FakeData struct {
	mu sync.Mutex

	Reviews  map[string]data.Review  // by slug
	Targets  map[int64]purge.Target  // by review id
	Products map[string]data.Product // by slug
	Profiles map[string]data.Profile // by username
	Comments map[int64][]data.Comment

	Votes       map[int64]int
	nextComment int64
	ListedCalls int
	FailWithErr error
}

// NewFakeData returns a fake populated with the standard review fixture: the
// "great-phone" review in category 5, linked to the translated "acme-x1"
// product, written by alice.
func NewFakeData() *FakeData {
	f := &FakeData{
		Reviews:  make(map[string]data.Review),
		Targets:  make(map[int64]purge.Target),
		Products: make(map[string]data.Product),
		Profiles: make(map[string]data.Profile),
		Comments: make(map[int64][]data.Comment),
		Votes:    make(map[int64]int),
	}

	f.Reviews["great-phone"] = data.Review{
		ID: 1, Slug: "great-phone", Title: "Great phone", Body: "It is great.",
		Rating: 5, Language: "en", CategoryID: 5, Author: "alice",
	}
	f.Targets[1] = purge.Target{
		ID:         1,
		Slug:       "great-phone",
		CategoryID: 5,
		Product: &purge.ProductRef{
			ID:   7,
			Slug: "acme-x1",
			Translations: []purge.Translation{
				{Language: "es", Slug: "acme-x1-es"},
			},
		},
		Author:        "alice",
		CommentThread: true,
	}
	f.Products["acme-x1"] = data.Product{ID: 7, Slug: "acme-x1", Name: "Acme X1", CategoryID: 5}
	f.Profiles["alice"] = data.Profile{Username: "alice", DisplayName: "Alice", ReviewCount: 1}

	return f
}

func (f *FakeData) ReviewTarget(ctx context.Context, reviewID int64) (purge.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWithErr != nil {
		return purge.Target{}, f.FailWithErr
	}
	target, ok := f.Targets[reviewID]
	if !ok {
		return purge.Target{}, data.ErrNotFound
	}
	return target, nil
}

func (f *FakeData) ReviewBySlug(ctx context.Context, slug, language string) (data.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWithErr != nil {
		return data.Review{}, f.FailWithErr
	}
	review, ok := f.Reviews[slug]
	if !ok {
		return data.Review{}, data.ErrNotFound
	}
	return review, nil
}

func (f *FakeData) ListReviews(ctx context.Context, q data.ListQuery) ([]data.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWithErr != nil {
		return nil, f.FailWithErr
	}
	f.ListedCalls++
	var out []data.Review
	for _, r := range f.Reviews {
		if q.CategoryID != 0 && r.CategoryID != q.CategoryID {
			continue
		}
		if q.Author != "" && r.Author != q.Author {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *FakeData) ListComments(ctx context.Context, reviewID int64, page, pageSize int) ([]data.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]data.Comment(nil), f.Comments[reviewID]...), nil
}

func (f *FakeData) CommentsByAuthor(ctx context.Context, author string, page, pageSize int) ([]data.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []data.Comment
	for _, thread := range f.Comments {
		for _, c := range thread {
			if c.Author == author {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *FakeData) AddVote(ctx context.Context, reviewID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWithErr != nil {
		return f.FailWithErr
	}
	if _, ok := f.Targets[reviewID]; !ok {
		return data.ErrNotFound
	}
	f.Votes[reviewID]++
	return nil
}

func (f *FakeData) AddComment(ctx context.Context, reviewID int64, author, body string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWithErr != nil {
		return 0, f.FailWithErr
	}
	f.nextComment++
	f.Comments[reviewID] = append(f.Comments[reviewID], data.Comment{
		ID: f.nextComment, ReviewID: reviewID, Author: author, Body: body,
	})
	return f.nextComment, nil
}

func (f *FakeData) ProductBySlug(ctx context.Context, slug, language string) (data.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	product, ok := f.Products[slug]
	if !ok {
		return data.Product{}, data.ErrNotFound
	}
	return product, nil
}

func (f *FakeData) ListProducts(ctx context.Context, q data.ListQuery) ([]data.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []data.Product
	for _, p := range f.Products {
		if q.CategoryID != 0 && p.CategoryID != q.CategoryID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *FakeData) CategoryChildren(ctx context.Context, categoryID int64) ([]data.Category, error) {
	return nil, nil
}

func (f *FakeData) ProfileByUsername(ctx context.Context, username string) (data.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.Profiles[username]
	if !ok {
		return data.Profile{}, data.ErrNotFound
	}
	return profile, nil
}

// VoteCount returns the recorded votes for a review.
func (f *FakeData) VoteCount(reviewID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Votes[reviewID]
}
