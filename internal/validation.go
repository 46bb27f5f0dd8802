package internal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// InputValidator checks namespaces, identifiers and purge patterns before
// they are turned into Redis commands.
type InputValidator struct {
	maxNamespaceLength  int
	maxIdentifierLength int
	maxTTL              time.Duration
	namespacePattern    *regexp.Regexp
}

// NewInputValidator creates a new input validator with default settings
func NewInputValidator() *InputValidator {
	return &InputValidator{
		maxNamespaceLength:  64,
		maxIdentifierLength: 256,
		maxTTL:              365 * 24 * time.Hour,
		namespacePattern:    regexp.MustCompile(`^[a-z][a-z0-9_.-]*$`),
	}
}

// ValidateNamespace validates a resource namespace such as "products"
func (v *InputValidator) ValidateNamespace(namespace string) error {
	if namespace == "" {
		return NewValidationError("namespace cannot be empty", nil)
	}

	if len(namespace) > v.maxNamespaceLength {
		return NewValidationError(fmt.Sprintf("namespace exceeds maximum length of %d characters", v.maxNamespaceLength), nil)
	}

	if !v.namespacePattern.MatchString(namespace) {
		return NewValidationError(fmt.Sprintf("namespace '%s' must be lowercase alphanumeric and may contain '_', '.', '-'", namespace), nil)
	}

	return nil
}

// ValidateIdentifier validates an entity identifier. Empty identifiers are
// allowed by the key format and rejected here only when required is set.
func (v *InputValidator) ValidateIdentifier(identifier string, required bool) error {
	if identifier == "" {
		if required {
			return NewValidationError("identifier cannot be empty", nil)
		}
		return nil
	}

	if len(identifier) > v.maxIdentifierLength {
		return NewValidationError(fmt.Sprintf("identifier exceeds maximum length of %d characters", v.maxIdentifierLength), nil)
	}

	if !utf8.ValidString(identifier) {
		return NewValidationError("identifier contains invalid UTF-8 characters", nil)
	}

	if strings.ContainsAny(identifier, "*?[]") {
		return NewValidationError(fmt.Sprintf("identifier '%s' contains glob metacharacters", identifier), nil)
	}

	for i, r := range identifier {
		if r < 32 || r == 127 {
			return NewValidationError(fmt.Sprintf("identifier contains control character at position %d", i), nil)
		}
	}

	return nil
}

// ValidatePattern validates a purge pattern. Only a single trailing wildcard
// after a non-empty prefix is accepted, so a purge can never match the whole
// keyspace.
func (v *InputValidator) ValidatePattern(pattern string) error {
	if pattern == "" {
		return NewValidationError("purge pattern cannot be empty", nil)
	}

	if !strings.HasSuffix(pattern, Wildcard) {
		return NewValidationError(fmt.Sprintf("purge pattern '%s' must end with '%s'", pattern, Wildcard), nil)
	}

	prefix := strings.TrimSuffix(pattern, Wildcard)
	if prefix == "" || prefix == KeySeparator {
		return NewValidationError(fmt.Sprintf("purge pattern '%s' is too broad", pattern), nil)
	}

	if strings.ContainsAny(prefix, "*?[]\\") {
		return NewValidationError(fmt.Sprintf("purge pattern '%s' may only contain a trailing wildcard", pattern), nil)
	}

	return nil
}

// ValidateContext validates context for timeout and cancellation
func (v *InputValidator) ValidateContext(ctx context.Context) error {
	if ctx == nil {
		return NewValidationError("context cannot be nil", nil)
	}

	select {
	case <-ctx.Done():
		return NewValidationError("context is already cancelled", ctx.Err())
	default:
		return nil
	}
}

// ValidateTTL validates time-to-live duration
func (v *InputValidator) ValidateTTL(ttl time.Duration, allowZero bool) error {
	if ttl < 0 {
		return NewValidationError("TTL cannot be negative", nil)
	}

	if !allowZero && ttl == 0 {
		return NewValidationError("TTL cannot be zero", nil)
	}

	if ttl > v.maxTTL {
		return NewValidationError(fmt.Sprintf("TTL exceeds maximum allowed duration of %v", v.maxTTL), nil)
	}

	return nil
}
