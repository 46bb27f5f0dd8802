package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the primary store for products and reviews. Lookups of a
// missing row return an error wrapping cache.ErrNotFound.
type Repository interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, q ListQuery) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	GetReview(ctx context.Context, id uuid.UUID) (Review, error)
	ListReviews(ctx context.Context, q ListQuery) ([]Review, error)
	CreateReview(ctx context.Context, r Review) (Review, error)
	UpdateReview(ctx context.Context, r Review) (Review, error)
	DeleteReview(ctx context.Context, id uuid.UUID) error

	// RecalculateRatings recomputes a product's review aggregates.
	RecalculateRatings(ctx context.Context, productID uuid.UUID) error
}

// PostgresRepository implements Repository on a pgx connection pool
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository over pool
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const productColumns = `id, name, brand, category, description, images, price, price_discount,
	ratings_average, ratings_quantity, created_at, updated_at`

const reviewColumns = `id, review, rating, user_id, product_id, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Brand, &p.Category, &p.Description, &p.Images,
		&p.Price, &p.PriceDiscount, &p.RatingsAverage, &p.RatingsQuantity,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func scanReview(row pgx.Row) (Review, error) {
	var r Review
	err := row.Scan(&r.ID, &r.Review, &r.Rating, &r.UserID, &r.ProductID, &r.CreatedAt)
	return r, err
}

// GetProduct returns the product with id
func (r *PostgresRepository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%s: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// ListProducts returns one page of products matching q
func (r *PostgresRepository) ListProducts(ctx context.Context, q ListQuery) ([]Product, error) {
	q = q.Normalize()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Category != "" {
		where = append(where, "category = "+arg(q.Category))
	}
	if q.Brand != "" {
		where = append(where, "brand = "+arg(q.Brand))
	}
	if q.MinPrice != nil {
		where = append(where, "price >= "+arg(*q.MinPrice))
	}
	if q.MaxPrice != nil {
		where = append(where, "price <= "+arg(*q.MaxPrice))
	}

	sql := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY ` + q.orderBy(productSortColumns)
	sql += ` LIMIT ` + arg(q.Limit) + ` OFFSET ` + arg(q.Offset())

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) {
		return scanProduct(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// CreateProduct inserts p. Rating aggregates start at their defaults.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	created, err := scanProduct(r.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, brand, category, description, images, price, price_discount, ratings_average)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+productColumns,
		p.ID, p.Name, p.Brand, p.Category, p.Description, p.Images, p.Price, p.PriceDiscount, DefaultRatingsAverage,
	))
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

// UpdateProduct replaces the writable fields of p
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	if p.Images == nil {
		p.Images = []string{}
	}
	updated, err := scanProduct(r.pool.QueryRow(ctx, `
		UPDATE products
		SET name = $2, brand = $3, category = $4, description = $5, images = $6,
			price = $7, price_discount = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Brand, p.Category, p.Description, p.Images, p.Price, p.PriceDiscount,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%s: %w", p.ID, ErrProductNotFound)
	}
	if err != nil {
		return Product{}, fmt.Errorf("update product %s: %w", p.ID, err)
	}
	return updated, nil
}

// DeleteProduct removes the product and, by cascade, its reviews
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrProductNotFound)
	}
	return nil
}

// GetReview returns the review with id
func (r *PostgresRepository) GetReview(ctx context.Context, id uuid.UUID) (Review, error) {
	review, err := scanReview(r.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Review{}, fmt.Errorf("%s: %w", id, ErrReviewNotFound)
	}
	if err != nil {
		return Review{}, fmt.Errorf("get review %s: %w", id, err)
	}
	return review, nil
}

// ListReviews returns one page of reviews, scoped to q.ProductID when set
func (r *PostgresRepository) ListReviews(ctx context.Context, q ListQuery) ([]Review, error) {
	q = q.Normalize()

	sql := `SELECT ` + reviewColumns + ` FROM reviews`
	args := []any{}
	if q.ProductID != nil {
		args = append(args, *q.ProductID)
		sql += ` WHERE product_id = $1`
	}
	args = append(args, q.Limit, q.Offset())
	sql += fmt.Sprintf(` ORDER BY %s LIMIT $%d OFFSET $%d`, q.orderBy(reviewSortColumns), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Review, error) {
		return scanReview(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// CreateReview inserts rv. A second review of the same product by the same
// user fails with ErrDuplicateReview.
func (r *PostgresRepository) CreateReview(ctx context.Context, rv Review) (Review, error) {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	created, err := scanReview(r.pool.QueryRow(ctx, `
		INSERT INTO reviews (id, review, rating, user_id, product_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+reviewColumns,
		rv.ID, rv.Review, rv.Rating, rv.UserID, rv.ProductID,
	))
	if err != nil {
		return Review{}, translateReviewError(rv, err)
	}
	return created, nil
}

// UpdateReview replaces the text, rating and product of rv
func (r *PostgresRepository) UpdateReview(ctx context.Context, rv Review) (Review, error) {
	updated, err := scanReview(r.pool.QueryRow(ctx, `
		UPDATE reviews SET review = $2, rating = $3, product_id = $4
		WHERE id = $1
		RETURNING `+reviewColumns,
		rv.ID, rv.Review, rv.Rating, rv.ProductID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Review{}, fmt.Errorf("%s: %w", rv.ID, ErrReviewNotFound)
	}
	if err != nil {
		return Review{}, translateReviewError(rv, err)
	}
	return updated, nil
}

// DeleteReview removes the review with id
func (r *PostgresRepository) DeleteReview(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrReviewNotFound)
	}
	return nil
}

// RecalculateRatings sets ratings_average (one decimal, DefaultRatingsAverage
// without reviews) and ratings_quantity from the product's reviews.
func (r *PostgresRepository) RecalculateRatings(ctx context.Context, productID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products p
		SET ratings_quantity = s.quantity,
			ratings_average = COALESCE(ROUND(s.average::numeric, 1)::double precision, $2),
			updated_at = now()
		FROM (
			SELECT COUNT(*)::int AS quantity, AVG(rating) AS average
			FROM reviews WHERE product_id = $1
		) s
		WHERE p.id = $1`,
		productID, DefaultRatingsAverage,
	)
	if err != nil {
		return fmt.Errorf("recalculate ratings for %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", productID, ErrProductNotFound)
	}
	return nil
}

func translateReviewError(rv Review, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateReview
		case "23503":
			return fmt.Errorf("%s: %w", rv.ProductID, ErrProductNotFound)
		}
	}
	return fmt.Errorf("write review %s: %w", rv.ID, err)
}
