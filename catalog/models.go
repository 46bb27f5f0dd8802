// Package catalog is the primary store behind the cache: products and their
// reviews in PostgreSQL, read through the cache and invalidated on every
// committed write.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kengibson1111/go-catalog-cache/cache"
)

const (
	// DefaultRatingsAverage is reported for a product with no reviews.
	DefaultRatingsAverage = 4.5

	maxProductNameLength = 100
	defaultPageLimit     = 20
	maxPageLimit         = 100
)

var (
	ErrProductNotFound = fmt.Errorf("product: %w", cache.ErrNotFound)
	ErrReviewNotFound  = fmt.Errorf("review: %w", cache.ErrNotFound)
	ErrDuplicateReview = errors.New("user has already reviewed this product")
	ErrInvalidInput    = errors.New("invalid input")
)

// Product is a catalog item. RatingsAverage and RatingsQuantity are
// aggregates of its reviews and are only written by RecalculateRatings.
type Product struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Brand           string    `json:"brand"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	Images          []string  `json:"images"`
	Price           float64   `json:"price"`
	PriceDiscount   *float64  `json:"priceDiscount,omitempty"`
	RatingsAverage  float64   `json:"ratingsAverage"`
	RatingsQuantity int       `json:"ratingsQuantity"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Validate checks the writable fields of a product.
func (p *Product) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)

	switch {
	case p.Name == "":
		return fmt.Errorf("%w: product must have a name", ErrInvalidInput)
	case len(p.Name) > maxProductNameLength:
		return fmt.Errorf("%w: product name must have at most %d characters", ErrInvalidInput, maxProductNameLength)
	case p.Brand == "":
		return fmt.Errorf("%w: product must have a brand", ErrInvalidInput)
	case p.Category == "":
		return fmt.Errorf("%w: product must have a category", ErrInvalidInput)
	case p.Description == "":
		return fmt.Errorf("%w: product must have a description", ErrInvalidInput)
	case p.Price <= 0:
		return fmt.Errorf("%w: product must have a positive price", ErrInvalidInput)
	case p.PriceDiscount != nil && *p.PriceDiscount >= p.Price:
		return fmt.Errorf("%w: discount price (%v) should be below regular price", ErrInvalidInput, *p.PriceDiscount)
	}

	if p.Images == nil {
		p.Images = []string{}
	}
	return nil
}

// Review is a user's rating of a product. A user reviews a product at most once.
type Review struct {
	ID        uuid.UUID `json:"id"`
	Review    string    `json:"review"`
	Rating    int       `json:"rating"`
	UserID    uuid.UUID `json:"user"`
	ProductID uuid.UUID `json:"product"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the writable fields of a review.
func (r *Review) Validate() error {
	r.Review = strings.TrimSpace(r.Review)

	switch {
	case r.Review == "":
		return fmt.Errorf("%w: review can not be empty", ErrInvalidInput)
	case r.Rating < 1 || r.Rating > 5:
		return fmt.Errorf("%w: review must have rating from 1 to 5", ErrInvalidInput)
	case r.UserID == uuid.Nil:
		return fmt.Errorf("%w: review must belong to a user", ErrInvalidInput)
	case r.ProductID == uuid.Nil:
		return fmt.Errorf("%w: review must belong to a product", ErrInvalidInput)
	}
	return nil
}

// RoundRating rounds an average rating to one decimal place.
func RoundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// Accepted sort fields per listing, mapped to columns. A leading '-' sorts descending.
var (
	productSortColumns = map[string]string{
		"name":            "name",
		"price":           "price",
		"ratingsAverage":  "ratings_average",
		"ratingsQuantity": "ratings_quantity",
		"createdAt":       "created_at",
	}
	reviewSortColumns = map[string]string{
		"rating":    "rating",
		"createdAt": "created_at",
	}
)

// ListQuery filters, sorts and pages a listing. Its CacheQuery form is what
// the listing cache key is derived from.
type ListQuery struct {
	Category  string     `json:"category,omitempty"`
	Brand     string     `json:"brand,omitempty"`
	MinPrice  *float64   `json:"minPrice,omitempty"`
	MaxPrice  *float64   `json:"maxPrice,omitempty"`
	ProductID *uuid.UUID `json:"product,omitempty"`
	Sort      []string   `json:"sort,omitempty"`
	Page      int        `json:"page,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// Normalize applies paging defaults and drops unknown sort fields.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}

	var sorts []string
	for _, s := range q.Sort {
		s = strings.TrimSpace(s)
		field := strings.TrimPrefix(s, "-")
		_, product := productSortColumns[field]
		_, review := reviewSortColumns[field]
		if product || review {
			sorts = append(sorts, s)
		}
	}
	q.Sort = sorts
	return q
}

// Offset returns the row offset of the page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// CacheQuery returns the normalized query as a mapping for key derivation.
// Equivalent queries produce equal mappings.
func (q ListQuery) CacheQuery() map[string]any {
	q = q.Normalize()
	query := map[string]any{
		"page":  q.Page,
		"limit": q.Limit,
	}
	if q.Category != "" {
		query["category"] = q.Category
	}
	if q.Brand != "" {
		query["brand"] = q.Brand
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		price := map[string]any{}
		if q.MinPrice != nil {
			price["gte"] = *q.MinPrice
		}
		if q.MaxPrice != nil {
			price["lte"] = *q.MaxPrice
		}
		query["price"] = price
	}
	if q.ProductID != nil {
		query["product"] = q.ProductID.String()
	}
	if len(q.Sort) > 0 {
		query["sort"] = strings.Join(q.Sort, ",")
	}
	return query
}

// orderBy renders the sort fields known to columns as an ORDER BY list,
// defaulting to newest first. The id tiebreak keeps paging stable.
func (q ListQuery) orderBy(columns map[string]string) string {
	var parts []string
	for _, s := range q.Sort {
		column, ok := columns[strings.TrimPrefix(s, "-")]
		if !ok {
			continue
		}
		dir := "ASC"
		if strings.HasPrefix(s, "-") {
			dir = "DESC"
		}
		parts = append(parts, column+" "+dir)
	}
	if len(parts) == 0 {
		parts = append(parts, "created_at DESC")
	}
	return strings.Join(append(parts, "id"), ", ")
}
