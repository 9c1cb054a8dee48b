// Package data is the boundary to the relational data layer. It loads entity
// records together with the relation identifiers the purge planner needs, and
// runs the queries behind the read and write handlers.
package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hasancaglar07/usercomments-edge/pkg/purge"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Review is one review record as served by the read endpoints.
type Review struct {
	ID         int64     `json:"id"`
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Rating     int       `json:"rating"`
	Language   string    `json:"language"`
	CategoryID int64     `json:"category_id,omitempty"`
	Author     string    `json:"author,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Comment is one comment on a review.
type Comment struct {
	ID        int64     `json:"id"`
	ReviewID  int64     `json:"review_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ListQuery narrows a review listing.
type ListQuery struct {
	Language   string
	Sort       string
	Page       int
	PageSize   int
	CategoryID int64
	Author     string
}

// Store runs queries against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ReviewTarget loads one review's relations into an invalidation target.
// Missing optional relations (category, product, author) are left zero so the
// planner simply skips those branches.
func (s *Store) ReviewTarget(ctx context.Context, reviewID int64) (purge.Target, error) {
	target := purge.Target{ID: reviewID, CommentThread: true}

	var productID int64
	err := s.pool.QueryRow(ctx, `
		SELECT r.slug,
		       COALESCE(r.category_id, 0),
		       COALESCE(r.product_id, 0),
		       COALESCE(u.username, '')
		FROM reviews r
		LEFT JOIN users u ON u.id = r.author_id
		WHERE r.id = $1`,
		reviewID,
	).Scan(&target.Slug, &target.CategoryID, &productID, &target.Author)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return purge.Target{}, ErrNotFound
		}
		return purge.Target{}, fmt.Errorf("load review %d: %w", reviewID, err)
	}

	target.Translations, err = s.translations(ctx,
		`SELECT language, slug FROM review_translations WHERE review_id = $1`, reviewID)
	if err != nil {
		return purge.Target{}, err
	}

	if productID > 0 {
		product := &purge.ProductRef{ID: productID}
		err := s.pool.QueryRow(ctx,
			`SELECT slug FROM products WHERE id = $1`, productID,
		).Scan(&product.Slug)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return purge.Target{}, fmt.Errorf("load product %d: %w", productID, err)
		}
		if err == nil {
			product.Translations, err = s.translations(ctx,
				`SELECT language, slug FROM product_translations WHERE product_id = $1`, productID)
			if err != nil {
				return purge.Target{}, err
			}
			target.Product = product
		}
	}

	return target, nil
}

func (s *Store) translations(ctx context.Context, query string, id int64) ([]purge.Translation, error) {
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	defer rows.Close()

	var out []purge.Translation
	for rows.Next() {
		var tr purge.Translation
		if err := rows.Scan(&tr.Language, &tr.Slug); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ReviewBySlug loads one review in the given language, falling back to the
// row's own language when no translation exists.
func (s *Store) ReviewBySlug(ctx context.Context, slug, language string) (Review, error) {
	var r Review
	err := s.pool.QueryRow(ctx, `
		SELECT r.id, r.slug, r.title, r.body, r.rating, r.language,
		       COALESCE(r.category_id, 0), COALESCE(u.username, ''), r.created_at
		FROM reviews r
		LEFT JOIN users u ON u.id = r.author_id
		WHERE r.slug = $1 OR r.id IN (
			SELECT review_id FROM review_translations WHERE slug = $1 AND language = $2
		)`,
		slug, language,
	).Scan(&r.ID, &r.Slug, &r.Title, &r.Body, &r.Rating, &r.Language,
		&r.CategoryID, &r.Author, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Review{}, ErrNotFound
		}
		return Review{}, fmt.Errorf("load review %q: %w", slug, err)
	}
	return r, nil
}

// ListReviews returns one listing page.
func (s *Store) ListReviews(ctx context.Context, q ListQuery) ([]Review, error) {
	order := "r.created_at DESC"
	switch q.Sort {
	case "popular":
		order = "r.vote_count DESC, r.created_at DESC"
	case "rating":
		order = "r.rating DESC, r.created_at DESC"
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.slug, r.title, r.body, r.rating, r.language,
		       COALESCE(r.category_id, 0), COALESCE(u.username, ''), r.created_at
		FROM reviews r
		LEFT JOIN users u ON u.id = r.author_id
		WHERE ($1 = '' OR r.language = $1)
		  AND ($2 = 0 OR r.category_id = $2)
		  AND ($3 = '' OR u.username = $3)
		ORDER BY `+order+`
		LIMIT $4 OFFSET $5`,
		q.Language, q.CategoryID, q.Author, q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.Slug, &r.Title, &r.Body, &r.Rating, &r.Language,
			&r.CategoryID, &r.Author, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListComments returns one page of a review's comment thread.
func (s *Store) ListComments(ctx context.Context, reviewID int64, page, pageSize int) ([]Comment, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, review_id, author, body, created_at
		FROM comments
		WHERE review_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		reviewID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ReviewID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddVote records one vote on a review.
func (s *Store) AddVote(ctx context.Context, reviewID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reviews SET vote_count = vote_count + 1 WHERE id = $1`, reviewID)
	if err != nil {
		return fmt.Errorf("add vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddComment appends a comment to a review's thread.
func (s *Store) AddComment(ctx context.Context, reviewID int64, author, body string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO comments (review_id, author, body, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id`,
		reviewID, author, body,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add comment: %w", err)
	}
	return id, nil
}
