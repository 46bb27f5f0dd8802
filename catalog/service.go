package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kengibson1111/go-catalog-cache/cache"
)

// Service is the catalog's read and write surface. Reads go through the
// cache; every committed write invalidates the views it made stale before
// returning.
type Service struct {
	repo        Repository
	loader      *cache.Loader
	invalidator *cache.Invalidator
	logger      *zap.Logger
}

// NewService creates a catalog service
func NewService(repo Repository, loader *cache.Loader, invalidator *cache.Invalidator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		loader:      loader,
		invalidator: invalidator,
		logger:      logger,
	}
}

func (s *Service) namespace(kind string) string {
	return s.invalidator.Policy().Namespace(kind)
}

// GetProduct reads one product
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*cache.Result[Product], error) {
	return cache.LoadOne(ctx, s.loader, s.namespace(cache.KindProduct), id.String(),
		func(ctx context.Context, _ string) (Product, error) {
			return s.repo.GetProduct(ctx, id)
		})
}

// ListProducts reads one page of products
func (s *Service) ListProducts(ctx context.Context, q ListQuery) (*cache.Result[[]Product], error) {
	q = q.Normalize()
	q.ProductID = nil
	return cache.LoadMany(ctx, s.loader, s.namespace(cache.KindProduct), q.CacheQuery(),
		func(ctx context.Context, _ map[string]any) ([]Product, error) {
			return s.repo.ListProducts(ctx, q)
		})
}

// GetReview reads one review
func (s *Service) GetReview(ctx context.Context, id uuid.UUID) (*cache.Result[Review], error) {
	return cache.LoadOne(ctx, s.loader, s.namespace(cache.KindReview), id.String(),
		func(ctx context.Context, _ string) (Review, error) {
			return s.repo.GetReview(ctx, id)
		})
}

// ListReviews reads one page of reviews, optionally of a single product
func (s *Service) ListReviews(ctx context.Context, q ListQuery) (*cache.Result[[]Review], error) {
	q = q.Normalize()
	return cache.LoadMany(ctx, s.loader, s.namespace(cache.KindReview), q.CacheQuery(),
		func(ctx context.Context, _ map[string]any) ([]Review, error) {
			return s.repo.ListReviews(ctx, q)
		})
}

// CreateProduct stores a new product
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := p.Validate(); err != nil {
		return Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}

	s.invalidate(ctx, cache.Mutation{
		EntityKind: cache.KindProduct,
		EntityID:   created.ID.String(),
		Operation:  cache.OperationCreate,
	})
	return created, nil
}

// UpdateProduct replaces a product's writable fields
func (s *Service) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	if err := p.Validate(); err != nil {
		return Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}

	s.invalidate(ctx, cache.Mutation{
		EntityKind: cache.KindProduct,
		EntityID:   updated.ID.String(),
		Operation:  cache.OperationUpdate,
	})
	return updated, nil
}

// DeleteProduct removes a product. Its reviews go with it, so review views
// are invalidated as well.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, cache.Mutation{
		EntityKind: cache.KindProduct,
		EntityID:   id.String(),
		Operation:  cache.OperationDelete,
	})
	s.invalidate(ctx, cache.Mutation{
		EntityKind:      cache.KindReview,
		RelatedParentID: id.String(),
		Operation:       cache.OperationDelete,
	})
	return nil
}

// CreateReview stores a review and refreshes its product's ratings
func (s *Service) CreateReview(ctx context.Context, r Review) (Review, error) {
	if err := r.Validate(); err != nil {
		return Review{}, err
	}

	created, err := s.repo.CreateReview(ctx, r)
	if err != nil {
		return Review{}, err
	}

	err = s.recalculate(ctx, created.ProductID)
	s.invalidate(ctx, cache.Mutation{
		EntityKind:      cache.KindReview,
		EntityID:        created.ID.String(),
		RelatedParentID: created.ProductID.String(),
		Operation:       cache.OperationCreate,
	})
	return created, err
}

// UpdateReview replaces a review's text, rating or product. When the review
// moves to another product both products' ratings are refreshed.
func (s *Service) UpdateReview(ctx context.Context, r Review) (Review, error) {
	existing, err := s.repo.GetReview(ctx, r.ID)
	if err != nil {
		return Review{}, err
	}

	r.UserID = existing.UserID
	if r.ProductID == uuid.Nil {
		r.ProductID = existing.ProductID
	}
	if err := r.Validate(); err != nil {
		return Review{}, err
	}

	updated, err := s.repo.UpdateReview(ctx, r)
	if err != nil {
		return Review{}, err
	}

	mutation := cache.Mutation{
		EntityKind:      cache.KindReview,
		EntityID:        updated.ID.String(),
		RelatedParentID: updated.ProductID.String(),
		Operation:       cache.OperationUpdate,
	}

	errs := []error{s.recalculate(ctx, updated.ProductID)}
	if existing.ProductID != updated.ProductID {
		mutation.PreviousParentID = existing.ProductID.String()
		errs = append(errs, s.recalculate(ctx, existing.ProductID))
	}

	s.invalidate(ctx, mutation)
	return updated, errors.Join(errs...)
}

// DeleteReview removes a review and refreshes its product's ratings
func (s *Service) DeleteReview(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteReview(ctx, id); err != nil {
		return err
	}

	err = s.recalculate(ctx, existing.ProductID)
	s.invalidate(ctx, cache.Mutation{
		EntityKind:      cache.KindReview,
		EntityID:        id.String(),
		RelatedParentID: existing.ProductID.String(),
		Operation:       cache.OperationDelete,
	})
	return err
}

// recalculate refreshes a product's rating aggregates. The review write has
// already committed, so a failure is returned but does not skip invalidation.
func (s *Service) recalculate(ctx context.Context, productID uuid.UUID) error {
	if err := s.repo.RecalculateRatings(ctx, productID); err != nil {
		s.logger.Error("failed to recalculate ratings",
			zap.String("product_id", productID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("recalculate ratings: %w", err)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, m cache.Mutation) {
	report := s.invalidator.Invalidate(ctx, m)
	if !report.Complete() {
		s.logger.Warn("cache invalidation incomplete, stale views expire by TTL",
			zap.String("entity_kind", m.EntityKind),
			zap.String("entity_id", m.EntityID),
			zap.Stringers("failed", report.Failed),
		)
	}
}
