package internal

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of cache error
type ErrorType int

const (
	// ErrorTypeCacheUnavailable indicates a transport or protocol failure talking to Redis
	ErrorTypeCacheUnavailable ErrorType = iota + 1
	// ErrorTypeNotFound indicates the primary store has no such entity
	ErrorTypeNotFound
	// ErrorTypeInvalidationIncomplete indicates a pattern purge stopped part way through
	ErrorTypeInvalidationIncomplete
	// ErrorTypeSerialization indicates JSON marshaling/unmarshaling error
	ErrorTypeSerialization
	// ErrorTypeTimeout indicates a timeout during cache operation
	ErrorTypeTimeout
	// ErrorTypeValidation indicates input validation failure
	ErrorTypeValidation
	// ErrorTypeStoreFailure indicates the primary store fetch failed
	ErrorTypeStoreFailure
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeCacheUnavailable:
		return "CACHE_UNAVAILABLE"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeInvalidationIncomplete:
		return "INVALIDATION_INCOMPLETE"
	case ErrorTypeSerialization:
		return "SERIALIZATION"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeStoreFailure:
		return "STORE_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// CacheError represents a cache-specific error with context
type CacheError struct {
	Type    ErrorType
	Key     string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CacheError) Error() string {
	msg := fmt.Sprintf("cache error [%s]: %s", e.Type.String(), e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("cache error [%s] for key '%s': %s", e.Type.String(), e.Key, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is reports a match when target is a *CacheError of the same type
func (e *CacheError) Is(target error) bool {
	if t, ok := target.(*CacheError); ok {
		return e.Type == t.Type
	}
	return false
}

// NewCacheError creates a new CacheError
func NewCacheError(errType ErrorType, key, message string, cause error) *CacheError {
	return &CacheError{
		Type:    errType,
		Key:     key,
		Message: message,
		Cause:   cause,
	}
}

// NewCacheUnavailableError creates an error for an unreachable or misbehaving cache
func NewCacheUnavailableError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeCacheUnavailable, key, message, cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(key string) *CacheError {
	return NewCacheError(ErrorTypeNotFound, key, "resource not found", nil)
}

// NewInvalidationIncompleteError creates an error for a partial pattern purge
func NewInvalidationIncompleteError(pattern string, deleted int64, cause error) *CacheError {
	return NewCacheError(ErrorTypeInvalidationIncomplete, pattern,
		fmt.Sprintf("purge stopped after %d keys", deleted), cause)
}

// NewSerializationError creates a serialization error
func NewSerializationError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeSerialization, key, message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeTimeout, key, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeValidation, "", message, cause)
}

// NewStoreFailureError creates an error for a failed primary store fetch
func NewStoreFailureError(key string, cause error) *CacheError {
	return NewCacheError(ErrorTypeStoreFailure, key, "store fetch failed", cause)
}

func isType(err error, t ErrorType) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Type == t
	}
	return false
}

// IsCacheUnavailableError checks if the error is a cache transport error
func IsCacheUnavailableError(err error) bool {
	return isType(err, ErrorTypeCacheUnavailable)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsInvalidationIncompleteError checks if the error reports a partial purge
func IsInvalidationIncompleteError(err error) bool {
	return isType(err, ErrorTypeInvalidationIncomplete)
}

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsStoreFailureError checks if the error is a store fetch failure
func IsStoreFailureError(err error) bool {
	return isType(err, ErrorTypeStoreFailure)
}
