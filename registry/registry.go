package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/schemaregistry/compat"
	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/health"
	"github.com/c360/schemaregistry/metric"
	"github.com/c360/schemaregistry/notify"
	"github.com/c360/schemaregistry/pkg/cache"
	"github.com/c360/schemaregistry/pkg/retry"
	"github.com/c360/schemaregistry/policy"
	"github.com/c360/schemaregistry/schema"
	"github.com/c360/schemaregistry/schemastore"
)

// DefaultMaxCommitAttempts bounds how often Create restarts after losing a
// race on the latest pointer.
const DefaultMaxCommitAttempts = 5

// Operation names used in metrics and logs.
const (
	OpCreate        = "create"
	OpGet           = "get"
	OpListIDs       = "list_ids"
	OpListVersions  = "list_versions"
	OpDelete        = "delete"
	OpCheckVersions = "check_versions"
	OpDiffVersions  = "diff_versions"
	OpValidateData  = "validate_data"
)

// Usage counters kept in the cache.
const (
	NamespaceStats     = "stats"
	CounterCreates     = "schema_creates"
	CounterDeletes     = "schema_deletes"
	CounterCompatCheck = "compat_checks"
)

// Result is the outcome of a successful Create. Report is nil for the first
// version of an id, where no check runs.
type Result struct {
	Record *schema.Record
	Report *compat.Report
}

// Option configures a Registry.
type Option func(*Registry)

// WithCache sets the cache used for usage counters and health.
func WithCache(c *cache.Cache) Option {
	return func(r *Registry) { r.cache = c }
}

// WithHub sets the notification hub. Without one no events are published.
func WithHub(h *notify.Hub) Option {
	return func(r *Registry) { r.hub = h }
}

// WithChecker replaces the default compatibility checker.
func WithChecker(c *compat.Checker) Option {
	return func(r *Registry) {
		if c != nil {
			r.checker = c
		}
	}
}

// WithDataValidator replaces the default data validator.
func WithDataValidator(v schema.DataValidator) Option {
	return func(r *Registry) {
		if v != nil {
			r.validator = v
		}
	}
}

// WithMetrics records operation metrics in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Registry) {
		if registry != nil {
			r.metrics = registry.CoreMetrics()
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxCommitAttempts bounds Create's restarts on a moved latest pointer.
func WithMaxCommitAttempts(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithFallback marks the registry as running on a substitute backend. Health
// reports degraded with reason.
func WithFallback(reason string) Option {
	return func(r *Registry) { r.fallback = reason }
}

// Registry coordinates the store, compatibility engine, policy and hub.
type Registry struct {
	store       *schemastore.Store
	cache       *cache.Cache
	hub         *notify.Hub
	checker     *compat.Checker
	validator   schema.DataValidator
	metrics     *metric.Metrics
	monitor     *health.Monitor
	locks       *idLocks
	maxAttempts int
	fallback    string
	logger      *slog.Logger
}

// New creates a Registry over store.
func New(store *schemastore.Store, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		checker:     compat.NewChecker(),
		validator:   schema.NewDataValidator(),
		monitor:     health.NewMonitor(),
		locks:       newIDLocks(),
		maxAttempts: DefaultMaxCommitAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Store returns the underlying schema store.
func (r *Registry) Store() *schemastore.Store {
	return r.store
}

// Create validates doc, checks it against the current latest version and
// commits it. Failures are ValidationFailed (structure or policy), Conflict
// (version exists or the latest pointer kept moving), StoreUnavailable or
// Timeout.
func (r *Registry) Create(ctx context.Context, doc *schema.Document) (res *Result, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordOperation(OpCreate, outcome(err), time.Since(start)) }()

	if doc != nil {
		doc.Normalize()
	}
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}

	unlock, err := r.locks.lock(ctx, doc.ID)
	if err != nil {
		return nil, errors.WrapStore(err, "registry", "Create", "acquire schema lock")
	}
	defer unlock()

	var (
		latest schemastore.Latest
		report *compat.Report
		rec    *schema.Record
	)

	cfg := retry.Config{
		MaxAttempts:  r.maxAttempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    true,
		Retryable: func(err error) bool {
			return stderrors.Is(err, schemastore.ErrLatestChanged)
		},
		OnRetry: func(attempt int, err error) {
			r.metrics.RecordCommitRetry()
			r.logger.Debug("latest pointer moved, restarting write", "schema", doc.Ref(), "attempt", attempt)
		},
	}

	err = retry.Do(ctx, cfg, func() error {
		var err error
		latest, err = r.store.Latest(ctx, doc.ID)
		if err != nil {
			return err
		}

		report = nil
		if latest.Exists() {
			if err := r.checkUnused(ctx, doc, latest); err != nil {
				return err
			}
			rep := r.checker.Check(&latest.Record.Schema, doc)
			r.metrics.RecordCompatCheck(rep.HasBreakingChanges())
			report = &rep

			if err := policy.CheckBump(latest.Version(), doc.Version, rep.HasBreakingChanges()); err != nil {
				return rejection(err, rep)
			}
		}

		rec, err = r.store.PutIfLatest(ctx, doc, latest)
		return err
	})
	if err != nil {
		if stderrors.Is(err, schemastore.ErrLatestChanged) {
			r.logger.Warn("gave up after repeated latest pointer changes", "schema", doc.Ref(), "attempts", r.maxAttempts)
		}
		if stderrors.Is(err, context.DeadlineExceeded) && !errors.IsTimeout(err) {
			err = errors.WrapStore(err, "registry", "Create", "commit")
		}
		return nil, err
	}

	action := notify.ActionCreated
	if latest.Exists() {
		action = notify.ActionUpdated
	}
	r.publish(notify.NewSchemaUpdate(doc.ID, doc.Version, action, &rec.Schema))
	if report != nil {
		r.publish(notify.NewCompatibilityAlert(doc.ID, latest.Version(), doc.Version, report.BreakingChanges))
	}
	r.count(ctx, CounterCreates)

	r.logger.Info("schema version created", "schema", doc.Ref(), "previous", latest.Version())
	return &Result{Record: rec, Report: report}, nil
}

// checkUnused fails with Conflict when doc's version is already stored.
func (r *Registry) checkUnused(ctx context.Context, doc *schema.Document, latest schemastore.Latest) error {
	conflict := errors.Conflict("registry", "Create", fmt.Sprintf("schema %s", doc.Ref()))
	if latest.Version() == doc.Version {
		return conflict
	}
	_, err := r.store.Get(ctx, doc.ID, doc.Version)
	switch {
	case err == nil:
		return conflict
	case errors.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// rejection turns a policy refusal into a ValidationFailed error whose
// reasons list the policy message followed by every breaking change.
func rejection(policyErr error, report compat.Report) error {
	reasons := make([]string, 0, len(report.BreakingChanges)+1)
	reasons = append(reasons, policyErr.Error())
	reasons = append(reasons, report.BreakingChanges...)
	ve := errors.NewValidationError("version bump rejected", reasons...)
	return errors.WrapInvalid(ve, "registry", "Create", "version policy")
}

func (r *Registry) publish(ev notify.Event) {
	if r.hub == nil {
		return
	}
	if !r.hub.Publish(ev) {
		r.logger.Debug("event not dispatched", "type", ev.Type, "channel", ev.Channel)
	}
}

func (r *Registry) count(ctx context.Context, counter string) {
	if r.cache == nil {
		return
	}
	// Errors are logged by the cache.
	_, _ = r.cache.Increment(ctx, NamespaceStats, counter, 1)
}

// Counter returns a usage counter, or 0 when unknown or uncached.
func (r *Registry) Counter(ctx context.Context, counter string) int64 {
	if r.cache == nil {
		return 0
	}
	raw, ok := r.cache.Get(ctx, NamespaceStats, counter)
	if !ok {
		return 0
	}
	var n int64
	if _, err := fmt.Sscan(string(raw), &n); err != nil {
		return 0
	}
	return n
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsConflict(err):
		return "conflict"
	case errors.IsValidationFailed(err):
		return "invalid"
	case errors.IsTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}
