package internal

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestInputValidator_ValidateNamespace(t *testing.T) {
	validator := NewInputValidator()

	tests := []struct {
		name        string
		namespace   string
		expectError bool
	}{
		{"simple namespace", "products", false},
		{"with underscore", "order_items", false},
		{"with dot", "catalog.products", false},
		{"empty", "", true},
		{"uppercase", "Products", true},
		{"contains separator", "products:p1", true},
		{"contains wildcard", "products*", true},
		{"leading digit", "1products", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateNamespace(tt.namespace)
			if tt.expectError {
				if err == nil {
					t.Errorf("ValidateNamespace(%q) expected error", tt.namespace)
				} else if !IsValidationError(err) {
					t.Errorf("expected validation error, got %T", err)
				}
			} else if err != nil {
				t.Errorf("ValidateNamespace(%q) unexpected error: %v", tt.namespace, err)
			}
		})
	}
}

func TestInputValidator_ValidateIdentifier(t *testing.T) {
	validator := NewInputValidator()

	tests := []struct {
		name        string
		identifier  string
		required    bool
		expectError bool
	}{
		{"object id", "64b7f0c2e4b0a1a2b3c4d5e6", true, false},
		{"uuid", "3f2b8a5e-1c4d-4e6f-9a7b-2c3d4e5f6a7b", true, false},
		{"empty optional", "", false, false},
		{"empty required", "", true, true},
		{"wildcard", "p*", false, true},
		{"control character", "p\n1", false, true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), false, true},
		{"too long", strings.Repeat("x", 257), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateIdentifier(tt.identifier, tt.required)
			if tt.expectError && err == nil {
				t.Errorf("ValidateIdentifier(%q) expected error", tt.identifier)
			}
			if !tt.expectError && err != nil {
				t.Errorf("ValidateIdentifier(%q) unexpected error: %v", tt.identifier, err)
			}
		})
	}
}

func TestInputValidator_ValidatePattern(t *testing.T) {
	validator := NewInputValidator()

	tests := []struct {
		name        string
		pattern     string
		expectError bool
	}{
		{"namespace prefix", "products:*", false},
		{"nested prefix", "products:p1:*", false},
		{"bare prefix", "products*", false},
		{"empty", "", true},
		{"whole keyspace", "*", true},
		{"separator only", ":*", true},
		{"no wildcard", "products:p1", true},
		{"inner wildcard", "pro*ducts:*", true},
		{"question mark", "products:?*", true},
		{"character class", "products:[a-z]*", true},
		{"escaped", "products\\:*", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidatePattern(tt.pattern)
			if tt.expectError && err == nil {
				t.Errorf("ValidatePattern(%q) expected error", tt.pattern)
			}
			if !tt.expectError && err != nil {
				t.Errorf("ValidatePattern(%q) unexpected error: %v", tt.pattern, err)
			}
		})
	}
}

func TestInputValidator_ValidateContext(t *testing.T) {
	validator := NewInputValidator()

	if err := validator.ValidateContext(context.Background()); err != nil {
		t.Errorf("unexpected error for live context: %v", err)
	}

	//nolint:staticcheck // nil context is the case under test
	if err := validator.ValidateContext(nil); err == nil {
		t.Error("expected error for nil context")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := validator.ValidateContext(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestInputValidator_ValidateTTL(t *testing.T) {
	validator := NewInputValidator()

	tests := []struct {
		name        string
		ttl         time.Duration
		allowZero   bool
		expectError bool
	}{
		{"one hour", time.Hour, false, false},
		{"zero allowed", 0, true, false},
		{"zero rejected", 0, false, true},
		{"negative", -time.Second, true, true},
		{"over a year", 400 * 24 * time.Hour, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateTTL(tt.ttl, tt.allowZero)
			if tt.expectError && err == nil {
				t.Errorf("ValidateTTL(%v) expected error", tt.ttl)
			}
			if !tt.expectError && err != nil {
				t.Errorf("ValidateTTL(%v) unexpected error: %v", tt.ttl, err)
			}
		})
	}
}
