package internal

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

const (
	// KeySeparator joins the namespace, identifier and query hash segments.
	KeySeparator = ":"
	// Wildcard is the only glob metacharacter a pattern may carry, and only as its last byte.
	Wildcard = "*"
	// MaxKeyLength bounds keys sent to Redis. BuildKey digests queries that would exceed it.
	MaxKeyLength = 1024
	// DigestPrefix marks a query segment that is a SHA-256 digest instead of base64 JSON.
	// '-' is outside the standard base64 alphabet, so the two forms never collide.
	DigestPrefix = "sha256-"
)

// KeyGenerator defines the interface for generating and validating cache keys
type KeyGenerator interface {
	BuildKey(namespace, identifier string, query map[string]any) string
	PatternKey(namespace string) string
	ValidateKey(key string) error
}

// DefaultKeyGenerator implements the KeyGenerator interface
type DefaultKeyGenerator struct{}

// NewKeyGenerator creates a new DefaultKeyGenerator instance
func NewKeyGenerator() KeyGenerator {
	return &DefaultKeyGenerator{}
}

// BuildKey generates a cache key for a resource view
// Format: <namespace>[:<identifier>][:<query_hash>]
// query_hash is the base64 of the canonical query JSON, or DigestPrefix plus
// its hex SHA-256 when the key would otherwise exceed MaxKeyLength.
func (kg *DefaultKeyGenerator) BuildKey(namespace, identifier string, query map[string]any) string {
	var b strings.Builder
	b.WriteString(namespace)

	if identifier != "" {
		b.WriteString(KeySeparator)
		b.WriteString(identifier)
	}

	if len(query) > 0 {
		raw := canonicalQuery(query)
		token := base64.StdEncoding.EncodeToString(raw)
		if b.Len()+len(KeySeparator)+len(token) > MaxKeyLength {
			sum := sha256.Sum256(raw)
			token = DigestPrefix + hex.EncodeToString(sum[:])
		}
		b.WriteString(KeySeparator)
		b.WriteString(token)
	}

	return b.String()
}

// PatternKey generates the prefix pattern matching every key in a namespace
// Format: <namespace>:*
func (kg *DefaultKeyGenerator) PatternKey(namespace string) string {
	return namespace + KeySeparator + Wildcard
}

// ValidateKey validates that an exact cache key is safe to send to Redis
func (kg *DefaultKeyGenerator) ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("key exceeds maximum length of %d characters", MaxKeyLength)
	}

	for i, r := range key {
		if r < 32 || r == 127 {
			return fmt.Errorf("key contains control character at position %d", i)
		}
	}

	// Exact keys must never be mistaken for SCAN patterns.
	if strings.ContainsAny(key, "*?[]") {
		return fmt.Errorf("key contains glob metacharacters: %s", key)
	}

	if strings.HasPrefix(key, KeySeparator) {
		return fmt.Errorf("key has an empty namespace: %s", key)
	}

	return nil
}

// canonicalQuery renders the query as JSON with every object's keys sorted.
// Values JSON cannot encode (channels, funcs) render as a "<type>" placeholder,
// so the result never depends on memory addresses.
func canonicalQuery(query map[string]any) []byte {
	normalized, err := normalize(query)
	if err != nil {
		normalized, err = normalize(encodable(query))
	}
	if err != nil {
		return []byte(fmt.Sprintf("<%T>", query))
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, normalized); err != nil {
		return []byte(fmt.Sprintf("<%T>", query))
	}
	return buf.Bytes()
}

// encodable replaces every value JSON cannot encode with its type name,
// descending into string-keyed maps, slices and arrays.
func encodable(v any) any {
	if _, err := marshalNoEscape(v); err == nil {
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = encodable(iter.Value().Interface())
			}
			return out
		}
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = encodable(rv.Index(i).Interface())
		}
		return out
	}
	return fmt.Sprintf("<%T>", v)
}

// normalize folds typed Go values (structs, typed maps and slices) into the
// generic map[string]any / []any / json.Number shapes.
func normalize(v any) (any, error) {
	raw, err := marshalNoEscape(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return writeScalar(buf, t)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	raw, err := marshalNoEscape(v)
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}

// marshalNoEscape is json.Marshal without HTML escaping and without the trailing newline.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
