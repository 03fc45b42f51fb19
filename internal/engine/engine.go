// Package engine composes the pipeline: two-tier cache in front, the
// strategy optimizer planning each miss, the circuit breaker guarding every
// backing-store call, and the orchestrator fanning out batches. Components
// are injected, not subclassed, so any of them can be substituted in tests.
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"queryflow/internal/breaker"
	"queryflow/internal/cache"
	"queryflow/internal/config"
	xerrors "queryflow/internal/errors"
	"queryflow/internal/observability"
	"queryflow/internal/optimizer"
	"queryflow/internal/orchestrator"
	"queryflow/internal/queryflow"
	"queryflow/internal/store"
)

// Engine is the resilient cached execution engine.
type Engine struct {
	cfg        config.Config
	cache      *cache.MultiLevelCache
	optimizer  *optimizer.Optimizer
	breakers   *breaker.Registry
	store      store.Client
	orch       *orchestrator.Orchestrator
	serializer queryflow.Serializer
	metrics    observability.MetricsSink
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Option customizes engine construction.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	remote     cache.RemoteStore
	metrics    observability.MetricsSink
	serializer queryflow.Serializer
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRemoteStore enables the remote cache tier.
func WithRemoteStore(remote cache.RemoteStore) Option {
	return func(o *options) { o.remote = remote }
}

// WithMetrics sets the metrics sink.
func WithMetrics(sink observability.MetricsSink) Option {
	return func(o *options) { o.metrics = sink }
}

// WithSerializer replaces the default JSON serializer.
func WithSerializer(s queryflow.Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// New builds an engine on top of a backing-store client.
func New(backingStore store.Client, cfg config.Config, opts ...Option) *Engine {
	o := options{
		logger:     zap.NewNop(),
		metrics:    observability.NopSink{},
		serializer: queryflow.JSONSerializer{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	metrics := o.metrics
	if cfg.Breaker.OnStateChange == nil {
		cfg.Breaker.OnStateChange = func(key string, from, to breaker.State) {
			metrics.IncBreakerTransition(key, from.String(), to.String())
		}
	}
	if cfg.Cache.OnPromotion == nil {
		cfg.Cache.OnPromotion = metrics.IncPromotion
	}

	e := &Engine{
		cfg:        cfg,
		cache:      cache.NewMultiLevelCache(cfg.Cache, o.remote, o.logger.Named("cache")),
		optimizer:  optimizer.New(cfg.Optimizer, o.logger.Named("optimizer")),
		breakers:   breaker.NewRegistry(cfg.Breaker, o.logger.Named("breaker")),
		store:      backingStore,
		serializer: o.serializer,
		metrics:    metrics,
		logger:     o.logger,
		tracer:     otel.Tracer("queryflow/engine"),
	}
	e.orch = orchestrator.New(cfg.Orchestrator, e.breakers, runnerFunc(e.runLookup), o.logger.Named("orchestrator"))
	return e
}

// runnerFunc adapts the breaker-free lookup path to orchestrator.Runner;
// the orchestrator applies its own per-table breaker wrapping.
type runnerFunc func(ctx context.Context, req *queryflow.AccessRequest) (*queryflow.QueryResult, error)

func (f runnerFunc) RunQuery(ctx context.Context, req *queryflow.AccessRequest) (*queryflow.QueryResult, error) {
	return f(ctx, req)
}

// Query executes a single lookup: cache, then plan, then the breaker-guarded
// store call, then cache write-back.
func (e *Engine) Query(ctx context.Context, req *queryflow.AccessRequest) (*queryflow.QueryResult, error) {
	return e.lookup(ctx, req, true)
}

// runLookup is the orchestrator's entry point. It skips the engine-level
// breaker so a batch is guarded exactly once, by the orchestrator's
// per-table breaker.
func (e *Engine) runLookup(ctx context.Context, req *queryflow.AccessRequest) (*queryflow.QueryResult, error) {
	return e.lookup(ctx, req, false)
}

func (e *Engine) lookup(ctx context.Context, req *queryflow.AccessRequest, withBreaker bool) (*queryflow.QueryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, xerrors.Validation("INVALID_REQUEST", "access request is not valid").
			WithOperation("Query").
			WithResource(req.TableName).
			WithCause(err).
			Build()
	}

	ctx, span := e.tracer.Start(ctx, "queryflow.lookup",
		trace.WithAttributes(attribute.String("table", req.TableName)))
	defer span.End()

	start := time.Now()

	// Consistent reads must see the backing store, not a cached page.
	useCache := !req.ConsistentRead
	var cacheKey string
	if useCache {
		var err error
		cacheKey, err = e.queryCacheKey(req)
		if err != nil {
			e.logger.Warn("cache key derivation failed, bypassing cache", zap.Error(err))
			useCache = false
		}
	}

	if useCache {
		cacheStart := time.Now()
		if value, level, found := e.cache.Get(ctx, cacheKey); found {
			e.metrics.ObserveStageLatency("cache_get", time.Since(cacheStart))
			var qr queryflow.QueryResult
			if err := e.serializer.Decode(string(value), &qr); err == nil {
				qr.Meta.CacheStatus = cacheStatusFor(level)
				qr.Meta.ExecMillis = time.Since(start).Milliseconds()
				e.metrics.IncCacheHit(level.String())
				return &qr, nil
			}
			// A corrupt entry is just a miss; drop it.
			e.cache.Remove(ctx, cacheKey)
		}
		e.metrics.IncCacheMiss()
	}

	optStart := time.Now()
	plan := e.optimizer.Optimize(req)
	e.metrics.ObserveStageLatency("optimize", time.Since(optStart))

	var rr *store.ReadResult
	fetch := func(callCtx context.Context) error {
		storeStart := time.Now()
		var err error
		if plan.SelectedStrategy == queryflow.StrategyIndexed {
			rr, err = e.store.IndexedLookup(callCtx, plan.Optimized)
		} else {
			rr, err = e.store.Scan(callCtx, plan.Optimized)
		}
		e.metrics.ObserveStageLatency("store", time.Since(storeStart))
		return err
	}

	var err error
	if withBreaker {
		err = e.breakers.Execute(ctx, req.TableName, fetch, nil)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		e.metrics.IncErrors(req.TableName, errorKind(err))
		return nil, err
	}

	qr := &queryflow.QueryResult{
		Items: rr.Items,
		Page: queryflow.PageInfo{
			PageSize:   plan.Optimized.PageSize,
			NextCursor: rr.NextCursor,
			HasNext:    rr.NextCursor != "",
		},
		Meta: queryflow.ExecutionMetadata{
			Strategy:         plan.SelectedStrategy,
			IndexUsed:        plan.Optimized.IndexName,
			CacheStatus:      queryflow.CacheStatusMiss,
			ExecMillis:       time.Since(start).Milliseconds(),
			ItemsExamined:    rr.ItemsExamined,
			ItemsReturned:    rr.ItemsReturned,
			ConsumedCapacity: rr.ConsumedCapacity,
			Warnings:         planWarnings(plan),
		},
	}
	if !useCache {
		qr.Meta.CacheStatus = queryflow.CacheStatusBypass
	}

	if useCache {
		if encoded, encErr := e.serializer.Encode(qr); encErr == nil {
			e.cache.Set(ctx, cacheKey, []byte(encoded), e.cfg.ResultTTL)
		} else {
			e.logger.Warn("result encode failed, skipping cache write", zap.Error(encErr))
		}
	}

	e.metrics.IncRequests(req.TableName, string(plan.SelectedStrategy))
	return qr, nil
}

// queryCacheKey derives a deterministic cache key from the request shape.
// The cache bounds overlong keys itself.
func (e *Engine) queryCacheKey(req *queryflow.AccessRequest) (string, error) {
	encoded, err := e.serializer.Encode(req)
	if err != nil {
		return "", err
	}
	return "q:" + req.TableName + ":" + encoded, nil
}

// planWarnings surfaces the advisory notes a caller should see inline.
func planWarnings(plan *optimizer.OptimizationResult) []string {
	var warnings []string
	for _, rec := range plan.Recommendations {
		switch rec.Kind {
		case optimizer.KindPagination, optimizer.KindOperatorRewrite, optimizer.KindIndexRecommended:
			warnings = append(warnings, rec.Message)
		}
	}
	return warnings
}

func cacheStatusFor(level cache.Level) queryflow.CacheStatus {
	if level == cache.LevelRemote {
		return queryflow.CacheStatusRemote
	}
	return queryflow.CacheStatusLocal
}

func errorKind(err error) string {
	switch {
	case xerrors.IsThrottled(err):
		return "throttled"
	case xerrors.IsUnavailable(err):
		return "unavailable"
	case xerrors.IsTimeout(err):
		return "timeout"
	case xerrors.IsNotFound(err):
		return "not_found"
	case xerrors.IsValidation(err):
		return "validation"
	default:
		return "internal"
	}
}
