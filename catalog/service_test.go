package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kengibson1111/go-catalog-cache/cache"
	"github.com/kengibson1111/go-catalog-cache/internal"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Product), args.Error(1)
}

func (m *mockRepository) ListProducts(ctx context.Context, q ListQuery) ([]Product, error) {
	args := m.Called(ctx, q)
	products, _ := args.Get(0).([]Product)
	return products, args.Error(1)
}

func (m *mockRepository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(Product), args.Error(1)
}

func (m *mockRepository) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(Product), args.Error(1)
}

func (m *mockRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepository) GetReview(ctx context.Context, id uuid.UUID) (Review, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Review), args.Error(1)
}

func (m *mockRepository) ListReviews(ctx context.Context, q ListQuery) ([]Review, error) {
	args := m.Called(ctx, q)
	reviews, _ := args.Get(0).([]Review)
	return reviews, args.Error(1)
}

func (m *mockRepository) CreateReview(ctx context.Context, r Review) (Review, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(Review), args.Error(1)
}

func (m *mockRepository) UpdateReview(ctx context.Context, r Review) (Review, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(Review), args.Error(1)
}

func (m *mockRepository) DeleteReview(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepository) RecalculateRatings(ctx context.Context, productID uuid.UUID) error {
	return m.Called(ctx, productID).Error(0)
}

func newTestService(t *testing.T) (*Service, *mockRepository, *cache.MockStore) {
	t.Helper()
	policy, err := cache.NewPolicy(cache.CatalogRules())
	require.NoError(t, err)

	repo := &mockRepository{}
	store := cache.NewMockStore()
	service := NewService(repo, cache.NewLoader(store), cache.NewInvalidator(policy, store), nil)
	return service, repo, store
}

func expectPurge(store *cache.MockStore, ctx context.Context, pattern string) {
	store.On("Purge", ctx, pattern, mock.Anything).Return(&cache.PurgeResult{Pattern: pattern}).Once()
}

func validProduct() Product {
	return Product{
		Name:        "Trail Runner",
		Brand:       "Acme",
		Category:    "shoes",
		Description: "Lightweight trail shoe",
		Images:      []string{},
		Price:       120,
	}
}

func TestService_GetProduct_ReadThrough(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)
	id := uuid.New()
	key := "products:" + id.String()

	repo.On("GetProduct", ctx, id).Return(Product{ID: id, Name: "Trail Runner"}, nil).Once()
	store.On("Get", ctx, key, mock.Anything).Return(false).Once()
	store.On("Set", ctx, key, mock.Anything, time.Hour).Return(true).Once()

	result, err := service.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Trail Runner", result.Data.Name)
	assert.Equal(t, 1, result.Results)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestService_GetProduct_NotFound(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)
	id := uuid.New()

	repo.On("GetProduct", ctx, id).Return(Product{}, ErrProductNotFound)
	store.On("Get", ctx, "products:"+id.String(), mock.Anything).Return(false)

	_, err := service.GetProduct(ctx, id)
	require.Error(t, err)
	assert.True(t, cache.IsNotFoundError(err))
	assert.ErrorIs(t, err, cache.ErrNotFound)
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ListProducts_KeyedByQuery(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)

	q := ListQuery{Category: "shoes", Page: 2}
	normalized := q.Normalize()
	repo.On("ListProducts", ctx, normalized).Return(nil, nil).Once()
	key := internal.NewKeyGenerator().BuildKey("products", "", normalized.CacheQuery())
	store.On("Get", ctx, key, mock.Anything).Return(false).Once()
	store.On("Set", ctx, key, mock.Anything, 10*time.Minute).Return(true).Once()

	result, err := service.ListProducts(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.NotNil(t, result.Data)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestService_UpdateProduct_Invalidates(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)
	p := validProduct()
	p.ID = uuid.New()

	repo.On("UpdateProduct", ctx, p).Return(p, nil)
	store.On("Delete", ctx, "products:"+p.ID.String()).Return(true).Once()
	store.On("Delete", ctx, "products").Return(true).Once()
	expectPurge(store, ctx, "products:*")

	_, err := service.UpdateProduct(ctx, p)
	require.NoError(t, err)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestService_UpdateProduct_InvalidInputWritesNothing(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)
	p := validProduct()
	p.Price = 0

	_, err := service.UpdateProduct(ctx, p)
	require.ErrorIs(t, err, ErrInvalidInput)

	repo.AssertNotCalled(t, "UpdateProduct", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Purge", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_DeleteProduct_InvalidatesReviews(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)
	id := uuid.New()

	repo.On("DeleteProduct", ctx, id).Return(nil)
	store.On("Delete", ctx, "products:"+id.String()).Return(true).Twice()
	store.On("Delete", ctx, "products").Return(true).Twice()
	store.On("Delete", ctx, "reviews").Return(true).Once()
	store.On("Purge", ctx, "products:*", mock.Anything).Return(&cache.PurgeResult{}).Twice()
	expectPurge(store, ctx, "reviews:*")

	require.NoError(t, service.DeleteProduct(ctx, id))
	store.AssertExpectations(t)
}

func TestService_CreateReview_PropagatesToProduct(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)

	productID := uuid.New()
	review := Review{Review: "Great grip", Rating: 5, UserID: uuid.New(), ProductID: productID}
	created := review
	created.ID = uuid.New()

	var order []string
	record := func(args mock.Arguments) { order = append(order, args.String(1)) }

	repo.On("CreateReview", ctx, review).Return(created, nil)
	repo.On("RecalculateRatings", ctx, productID).Return(nil).Once()
	store.On("Delete", ctx, "reviews:"+created.ID.String()).Return(true).Run(record).Once()
	store.On("Delete", ctx, "reviews").Return(true).Run(record).Once()
	store.On("Delete", ctx, "products:"+productID.String()).Return(true).Run(record).Once()
	store.On("Delete", ctx, "products").Return(true).Run(record).Once()
	store.On("Purge", ctx, "reviews:*", mock.Anything).Return(&cache.PurgeResult{}).Run(record).Once()
	store.On("Purge", ctx, "products:*", mock.Anything).Return(&cache.PurgeResult{}).Run(record).Once()

	got, err := service.CreateReview(ctx, review)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	assert.Equal(t, []string{
		"reviews:" + created.ID.String(),
		"reviews",
		"products:" + productID.String(),
		"products",
		"reviews:*",
		"products:*",
	}, order)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestService_CreateReview_Duplicate(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)
	review := Review{Review: "Again", Rating: 3, UserID: uuid.New(), ProductID: uuid.New()}

	repo.On("CreateReview", ctx, review).Return(Review{}, ErrDuplicateReview)

	_, err := service.CreateReview(ctx, review)
	require.ErrorIs(t, err, ErrDuplicateReview)
	repo.AssertNotCalled(t, "RecalculateRatings", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestService_UpdateReview_MovedBetweenProducts(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)

	oldProduct, newProduct := uuid.New(), uuid.New()
	existing := Review{ID: uuid.New(), Review: "Good", Rating: 4, UserID: uuid.New(), ProductID: oldProduct}
	change := Review{ID: existing.ID, Review: "Better", Rating: 5, ProductID: newProduct}
	updated := change
	updated.UserID = existing.UserID

	repo.On("GetReview", ctx, existing.ID).Return(existing, nil)
	repo.On("UpdateReview", ctx, updated).Return(updated, nil)
	repo.On("RecalculateRatings", ctx, newProduct).Return(nil).Once()
	repo.On("RecalculateRatings", ctx, oldProduct).Return(nil).Once()
	store.On("Delete", ctx, "reviews:"+existing.ID.String()).Return(true).Once()
	store.On("Delete", ctx, "products:"+newProduct.String()).Return(true).Once()
	store.On("Delete", ctx, "products:"+oldProduct.String()).Return(true).Once()
	store.On("Delete", ctx, "reviews").Return(true).Once()
	store.On("Delete", ctx, "products").Return(true).Once()
	expectPurge(store, ctx, "reviews:*")
	expectPurge(store, ctx, "products:*")

	_, err := service.UpdateReview(ctx, change)
	require.NoError(t, err)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestService_DeleteReview_RecalculateFailureStillInvalidates(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)

	productID := uuid.New()
	existing := Review{ID: uuid.New(), Review: "Meh", Rating: 2, UserID: uuid.New(), ProductID: productID}

	repo.On("GetReview", ctx, existing.ID).Return(existing, nil)
	repo.On("DeleteReview", ctx, existing.ID).Return(nil)
	repo.On("RecalculateRatings", ctx, productID).Return(errors.New("connection reset"))
	store.On("Delete", ctx, "reviews:"+existing.ID.String()).Return(true).Once()
	store.On("Delete", ctx, "products:"+productID.String()).Return(true).Once()
	store.On("Delete", ctx, "reviews").Return(true).Once()
	store.On("Delete", ctx, "products").Return(true).Once()
	expectPurge(store, ctx, "reviews:*")
	expectPurge(store, ctx, "products:*")

	err := service.DeleteReview(ctx, existing.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recalculate ratings")

	store.AssertExpectations(t)
}

func TestService_IncompleteInvalidationDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	service, repo, store := newTestService(t)
	p := validProduct()
	p.ID = uuid.New()

	repo.On("UpdateProduct", ctx, p).Return(p, nil)
	store.On("Delete", ctx, "products:"+p.ID.String()).Return(false)
	store.On("Delete", ctx, "products").Return(false)
	store.On("Purge", ctx, "products:*", mock.Anything).Return(&cache.PurgeResult{Err: errors.New("i/o timeout")})

	_, err := service.UpdateProduct(ctx, p)
	assert.NoError(t, err)
}
