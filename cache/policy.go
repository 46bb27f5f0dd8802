package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-catalog-cache/internal"
)

// Operation is the kind of write that produced a Mutation.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Entity kinds registered by CatalogRules.
const (
	KindProduct = "product"
	KindReview  = "review"
	KindUser    = "user"
	KindOrder   = "order"
)

// Mutation describes a committed write. RelatedParentID is the id of the
// parent whose cached views embed an aggregate of this entity (a review's
// product). PreviousParentID is set when the write moved the entity to a
// different parent.
type Mutation struct {
	EntityKind       string    `json:"entity_kind"`
	EntityID         string    `json:"entity_id,omitempty"`
	RelatedParentID  string    `json:"related_parent_id,omitempty"`
	PreviousParentID string    `json:"previous_parent_id,omitempty"`
	Operation        Operation `json:"operation,omitempty"`
}

// Rule maps an entity kind to its cache namespace and, for dependent
// entities, to the kind of the parent that aggregates it.
type Rule struct {
	Kind       string `yaml:"kind"`
	Namespace  string `yaml:"namespace"`
	ParentKind string `yaml:"parent_kind"`
}

// Target is one key or pattern to remove.
type Target struct {
	Key     string `json:"key"`
	Pattern bool   `json:"pattern"`
}

func (t Target) String() string {
	if t.Pattern {
		return "pattern " + t.Key
	}
	return "key " + t.Key
}

// CatalogRules returns the rules for the catalog entities.
func CatalogRules() []Rule {
	return []Rule{
		{Kind: KindProduct, Namespace: "products"},
		{Kind: KindReview, Namespace: "reviews", ParentKind: KindProduct},
		{Kind: KindUser, Namespace: "users"},
		{Kind: KindOrder, Namespace: "orders"},
	}
}

// Policy derives invalidation targets from mutations. It is immutable once
// built and safe for concurrent use.
type Policy struct {
	rules               map[string]Rule
	keyGen              internal.KeyGenerator
	logger              *zap.Logger
	purgeParentListings bool
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithPolicyKeyGenerator sets the key codec used to build targets.
func WithPolicyKeyGenerator(keyGen internal.KeyGenerator) PolicyOption {
	return func(p *Policy) {
		if keyGen != nil {
			p.keyGen = keyGen
		}
	}
}

// WithPolicyLogger sets the logger for unknown entity kinds.
func WithPolicyLogger(logger *zap.Logger) PolicyOption {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithParentListingPurge controls whether a dependent mutation also purges
// the parent's namespace pattern. Enabled by default, since parent listings
// embed the aggregate.
func WithParentListingPurge(enabled bool) PolicyOption {
	return func(p *Policy) {
		p.purgeParentListings = enabled
	}
}

// NewPolicy builds a policy from rules. Every namespace must be valid and
// every ParentKind must itself be registered.
func NewPolicy(rules []Rule, opts ...PolicyOption) (*Policy, error) {
	p := &Policy{
		rules:               make(map[string]Rule, len(rules)),
		keyGen:              internal.NewKeyGenerator(),
		logger:              zap.NewNop(),
		purgeParentListings: true,
	}
	for _, opt := range opts {
		opt(p)
	}

	validator := internal.NewInputValidator()
	for _, rule := range rules {
		if rule.Kind == "" {
			return nil, internal.NewValidationError("rule kind cannot be empty", nil)
		}
		if _, exists := p.rules[rule.Kind]; exists {
			return nil, internal.NewValidationError(fmt.Sprintf("duplicate rule for kind '%s'", rule.Kind), nil)
		}
		if err := validator.ValidateNamespace(rule.Namespace); err != nil {
			return nil, fmt.Errorf("rule '%s': %w", rule.Kind, err)
		}
		p.rules[rule.Kind] = rule
	}

	for _, rule := range p.rules {
		if rule.ParentKind == "" {
			continue
		}
		if rule.ParentKind == rule.Kind {
			return nil, internal.NewValidationError(fmt.Sprintf("kind '%s' cannot be its own parent", rule.Kind), nil)
		}
		if _, ok := p.rules[rule.ParentKind]; !ok {
			return nil, internal.NewValidationError(
				fmt.Sprintf("kind '%s' references unknown parent kind '%s'", rule.Kind, rule.ParentKind), nil)
		}
	}

	return p, nil
}

// Known reports whether kind has a registered rule.
func (p *Policy) Known(kind string) bool {
	_, ok := p.rules[kind]
	return ok
}

// Namespace returns the cache namespace for kind. Unregistered kinds use the
// kind itself.
func (p *Policy) Namespace(kind string) string {
	if rule, ok := p.rules[kind]; ok {
		return rule.Namespace
	}
	return kind
}

// Targets returns the keys and patterns a mutation makes stale: exact keys
// first, then patterns, without duplicates.
func (p *Policy) Targets(m Mutation) []Target {
	rule, ok := p.rules[m.EntityKind]
	if !ok {
		p.logger.Warn("no invalidation rule for entity kind, using kind as namespace",
			zap.String("entity_kind", m.EntityKind))
		rule = Rule{Kind: m.EntityKind, Namespace: m.EntityKind}
	}

	var exact, patterns []Target
	seen := make(map[Target]struct{})
	add := func(list *[]Target, t Target) {
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		*list = append(*list, t)
	}

	if m.EntityID != "" {
		add(&exact, Target{Key: p.keyGen.BuildKey(rule.Namespace, m.EntityID, nil)})
	}
	// An unfiltered listing lives at the bare namespace, which namespace:* does not match.
	add(&exact, Target{Key: p.keyGen.BuildKey(rule.Namespace, "", nil)})
	add(&patterns, Target{Key: p.keyGen.PatternKey(rule.Namespace), Pattern: true})

	if rule.ParentKind != "" {
		parentNamespace := p.Namespace(rule.ParentKind)
		resolved := false
		for _, parentID := range []string{m.RelatedParentID, m.PreviousParentID} {
			if parentID == "" {
				continue
			}
			resolved = true
			add(&exact, Target{Key: p.keyGen.BuildKey(parentNamespace, parentID, nil)})
		}
		if resolved && p.purgeParentListings {
			add(&exact, Target{Key: p.keyGen.BuildKey(parentNamespace, "", nil)})
			add(&patterns, Target{Key: p.keyGen.PatternKey(parentNamespace), Pattern: true})
		}
	}

	return append(exact, patterns...)
}

// InvalidationReport summarizes one Invalidate call.
type InvalidationReport struct {
	Mutation         Mutation      `json:"mutation"`
	Targets          []Target      `json:"targets"`
	ExactKeysDeleted int           `json:"exact_keys_deleted"`
	KeysPurged       int64         `json:"keys_purged"`
	Failed           []Target      `json:"failed,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Complete reports whether every target was applied.
func (r *InvalidationReport) Complete() bool {
	return len(r.Failed) == 0
}

// Invalidator applies policy targets through a Store. The write path calls
// it after commit; it never fails the write.
type Invalidator struct {
	policy    *Policy
	store     Store
	validator *internal.InputValidator
	purge     PurgeOptions
	logger    *zap.Logger
	metrics   *Metrics
}

// InvalidatorOption configures an Invalidator.
type InvalidatorOption func(*Invalidator)

// WithInvalidatorLogger sets the logger.
func WithInvalidatorLogger(logger *zap.Logger) InvalidatorOption {
	return func(i *Invalidator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithInvalidatorMetrics sets the Prometheus collectors.
func WithInvalidatorMetrics(metrics *Metrics) InvalidatorOption {
	return func(i *Invalidator) {
		i.metrics = metrics
	}
}

// WithPurgeOptions overrides the purge batch settings.
func WithPurgeOptions(opts PurgeOptions) InvalidatorOption {
	return func(i *Invalidator) {
		i.purge = opts
	}
}

// NewInvalidator creates an Invalidator.
func NewInvalidator(policy *Policy, store Store, opts ...InvalidatorOption) *Invalidator {
	i := &Invalidator{
		policy:    policy,
		store:     store,
		validator: internal.NewInputValidator(),
		purge:     DefaultPurgeOptions(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Policy returns the policy the invalidator applies.
func (i *Invalidator) Policy() *Policy {
	return i.policy
}

// Invalidate removes every target of m. Failed targets are logged and listed
// in the report, not retried; TTL expiry bounds the staleness they leave.
// A cancelled ctx fails every target without touching the store.
func (i *Invalidator) Invalidate(ctx context.Context, m Mutation) *InvalidationReport {
	start := time.Now()
	report := &InvalidationReport{
		Mutation: m,
		Targets:  i.policy.Targets(m),
	}

	if err := i.validator.ValidateContext(ctx); err != nil {
		report.Failed = append(report.Failed, report.Targets...)
		report.Duration = time.Since(start)
		i.metrics.invalidation(m.EntityKind, false)
		i.logger.Warn("invalidation skipped",
			zap.String("type", CacheErrorTypeInvalidationIncomplete.String()),
			zap.String("entity_kind", m.EntityKind),
			zap.String("entity_id", m.EntityID),
			zap.Int("targets", len(report.Targets)),
			zap.Error(err),
		)
		return report
	}

	for _, target := range report.Targets {
		if !target.Pattern {
			if i.store.Delete(ctx, target.Key) {
				report.ExactKeysDeleted++
			} else {
				report.Failed = append(report.Failed, target)
			}
			continue
		}

		opts := i.purge
		result := i.store.Purge(ctx, target.Key, &opts)
		report.KeysPurged += result.KeysDeleted
		if !result.Complete() {
			report.Failed = append(report.Failed, target)
			i.logger.Warn("pattern purge incomplete",
				zap.String("type", CacheErrorTypeInvalidationIncomplete.String()),
				zap.String("pattern", target.Key),
				zap.Int64("keys_deleted", result.KeysDeleted),
				zap.Error(result.Err),
			)
		}
	}

	report.Duration = time.Since(start)
	i.metrics.invalidation(m.EntityKind, report.Complete())

	i.logger.Debug("invalidated cache views",
		zap.String("entity_kind", m.EntityKind),
		zap.String("entity_id", m.EntityID),
		zap.String("operation", string(m.Operation)),
		zap.Int("targets", len(report.Targets)),
		zap.Int("exact_keys_deleted", report.ExactKeysDeleted),
		zap.Int64("keys_purged", report.KeysPurged),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration),
	)

	return report
}
