package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Product is one product record.
type Product struct {
	ID         int64     `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	CategoryID int64     `json:"category_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Category is one node of the category tree.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Profile is a user's public profile.
type Profile struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
	ReviewCount int       `json:"review_count"`
}

// ProductBySlug loads one product in the given language, matching either the
// primary slug or a translation slug.
func (s *Store) ProductBySlug(ctx context.Context, slug, language string) (Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, slug, name, COALESCE(category_id, 0), created_at
		FROM products
		WHERE slug = $1 OR id IN (
			SELECT product_id FROM product_translations WHERE slug = $1 AND language = $2
		)`,
		slug, language,
	).Scan(&p.ID, &p.Slug, &p.Name, &p.CategoryID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("load product %q: %w", slug, err)
	}
	return p, nil
}

// ListProducts returns one listing page, optionally restricted to a category.
func (s *Store) ListProducts(ctx context.Context, q ListQuery) ([]Product, error) {
	order := "created_at DESC"
	if q.Sort == "popular" || q.Sort == "rating" {
		order = "review_count DESC, created_at DESC"
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, slug, name, COALESCE(category_id, 0), created_at
		FROM products
		WHERE ($1 = 0 OR category_id = $1)
		ORDER BY `+order+`
		LIMIT $2 OFFSET $3`,
		q.CategoryID, q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.CategoryID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CategoryChildren returns the direct subcategories of a category.
func (s *Store) CategoryChildren(ctx context.Context, categoryID int64) ([]Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM categories WHERE parent_id = $1 ORDER BY name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ProfileByUsername loads a user's public profile.
func (s *Store) ProfileByUsername(ctx context.Context, username string) (Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx, `
		SELECT u.username, COALESCE(u.display_name, u.username), u.created_at,
		       (SELECT count(*) FROM reviews r WHERE r.author_id = u.id)
		FROM users u
		WHERE u.username = $1`,
		username,
	).Scan(&p.Username, &p.DisplayName, &p.JoinedAt, &p.ReviewCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("load profile %q: %w", username, err)
	}
	return p, nil
}

// CommentsByAuthor returns one page of a user's comments.
func (s *Store) CommentsByAuthor(ctx context.Context, author string, page, pageSize int) ([]Comment, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, review_id, author, body, created_at
		FROM comments
		WHERE author = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		author, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list comments by author: %w", err)
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
