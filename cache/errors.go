package cache

import (
	"errors"

	"github.com/kengibson1111/go-catalog-cache/internal"
)

// ErrNotFound is returned (optionally wrapped) by store fetch functions when
// the requested entity does not exist. The read-through path turns it into a
// NOT_FOUND CacheError and never caches it.
var ErrNotFound = errors.New("resource not found")

// CacheError represents a cache-specific error with context
type CacheError = internal.CacheError

// CacheErrorType classifies a CacheError
type CacheErrorType = internal.ErrorType

const (
	CacheErrorTypeCacheUnavailable       = internal.ErrorTypeCacheUnavailable
	CacheErrorTypeNotFound               = internal.ErrorTypeNotFound
	CacheErrorTypeInvalidationIncomplete = internal.ErrorTypeInvalidationIncomplete
	CacheErrorTypeSerialization          = internal.ErrorTypeSerialization
	CacheErrorTypeTimeout                = internal.ErrorTypeTimeout
	CacheErrorTypeValidation             = internal.ErrorTypeValidation
	CacheErrorTypeStoreFailure           = internal.ErrorTypeStoreFailure
)

// IsNotFoundError reports whether the store had no such entity.
func IsNotFoundError(err error) bool {
	return internal.IsNotFoundError(err)
}

// IsStoreFailureError reports whether the primary store fetch failed.
func IsStoreFailureError(err error) bool {
	return internal.IsStoreFailureError(err)
}

// IsCacheUnavailableError reports whether Redis could not be reached.
func IsCacheUnavailableError(err error) bool {
	return internal.IsCacheUnavailableError(err)
}

// IsInvalidationIncompleteError reports whether a purge stopped part way.
func IsInvalidationIncompleteError(err error) bool {
	return internal.IsInvalidationIncompleteError(err)
}

// IsValidationError reports whether an input was rejected.
func IsValidationError(err error) bool {
	return internal.IsValidationError(err)
}
