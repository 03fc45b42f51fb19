package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls the two-tier coordinator.
type Config struct {
	// Namespace prefixes every storage key.
	Namespace string
	// MaxKeyLength bounds storage keys; longer keys are hashed.
	MaxKeyLength int

	// Local tier bounds.
	LocalMaxEntries int
	LocalMaxMemory  int64
	// LocalMaxTTL caps every local write.
	LocalMaxTTL time.Duration

	// RemoteMaxTTL caps every remote write. Zero disables the cap.
	RemoteMaxTTL time.Duration
	// RemoteTimeout applies per remote call, independent of the caller's
	// own cancellation.
	RemoteTimeout time.Duration
	// RemoteRetry bounds remote retries.
	RemoteRetry RetryConfig

	// PromotionTTL is used when copying a remote hit into the local tier.
	PromotionTTL time.Duration

	// CompressionThreshold is the value size, in bytes, above which remote
	// values are compressed. Zero disables compression.
	CompressionThreshold int

	// OnPromotion, if set, is invoked after each successful promotion.
	OnPromotion func()
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:            "queryflow",
		MaxKeyLength:         250,
		LocalMaxEntries:      10000,
		LocalMaxMemory:       64 << 20, // 64 MiB
		LocalMaxTTL:          5 * time.Minute,
		RemoteMaxTTL:         30 * time.Minute,
		RemoteTimeout:        250 * time.Millisecond,
		RemoteRetry:          DefaultRetryConfig(),
		PromotionTTL:         time.Minute,
		CompressionThreshold: 4 << 10, // 4 KiB
	}
}

// MultiLevelCache coordinates the local and remote tiers.
//
// Get probes local first; a remote hit is promoted to the local tier
// asynchronously. Set writes both tiers concurrently with independent
// failure handling. Tier errors are logged and degrade to misses or no-ops:
// the cache is an optimization, never a correctness dependency.
type MultiLevelCache struct {
	cfg    Config
	local  *LocalCache
	remote RemoteStore // nil when only the local tier is configured
	codec  Codec
	stats  *statsTracker
	logger *zap.Logger

	// promotions in flight, so Close-less tests can wait
	promoteWG sync.WaitGroup
}

// NewMultiLevelCache builds the coordinator. remote may be nil.
func NewMultiLevelCache(cfg Config, remote RemoteStore, logger *zap.Logger) *MultiLevelCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiLevelCache{
		cfg:    cfg,
		local:  NewLocalCache(cfg.LocalMaxEntries, cfg.LocalMaxMemory, logger.Named("local_tier")),
		remote: remote,
		codec:  GzipCodec{},
		stats:  newStatsTracker(),
		logger: logger,
	}
}

// WithCodec replaces the compression codec. Must be called before use.
func (m *MultiLevelCache) WithCodec(codec Codec) *MultiLevelCache {
	m.codec = codec
	return m
}

// Get returns the cached value for key and the tier that served it.
func (m *MultiLevelCache) Get(ctx context.Context, key string) ([]byte, Level, bool) {
	sk := storageKey(m.cfg.Namespace, key, m.cfg.MaxKeyLength)

	start := time.Now()
	value, found, err := m.local.Get(ctx, sk)
	m.stats.recordLocal(found, time.Since(start))
	if err != nil {
		m.logger.Warn("local tier read failed", zap.String("key", key), zap.Error(err))
	} else if found {
		return value, LevelLocal, true
	}

	if m.remote == nil {
		m.stats.recordMiss()
		return nil, LevelMiss, false
	}

	start = time.Now()
	var raw []byte
	var remoteFound bool
	err = withRemoteRetry(ctx, m.cfg.RemoteRetry, m.cfg.RemoteTimeout, func(callCtx context.Context) error {
		var opErr error
		raw, remoteFound, opErr = m.remote.Get(callCtx, sk)
		return opErr
	})
	m.stats.recordRemote(err == nil && remoteFound, time.Since(start))
	if err != nil {
		m.logger.Warn("remote tier read failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		m.stats.recordMiss()
		return nil, LevelMiss, false
	}
	if !remoteFound {
		m.stats.recordMiss()
		return nil, LevelMiss, false
	}

	value, err = decodeValue(m.codec, raw)
	if err != nil {
		m.logger.Warn("remote value decode failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		m.stats.recordMiss()
		return nil, LevelMiss, false
	}

	m.promote(sk, value)
	return value, LevelRemote, true
}

// promote writes a remote hit through to the local tier asynchronously.
func (m *MultiLevelCache) promote(storageKey string, value []byte) {
	ttl := m.cfg.PromotionTTL
	if m.cfg.LocalMaxTTL > 0 && ttl > m.cfg.LocalMaxTTL {
		ttl = m.cfg.LocalMaxTTL
	}
	m.promoteWG.Add(1)
	go func() {
		defer m.promoteWG.Done()
		if err := m.local.Set(context.Background(), storageKey, value, ttl); err != nil {
			m.logger.Warn("promotion to local tier failed", zap.Error(err))
			return
		}
		m.stats.recordPromotion()
		if m.cfg.OnPromotion != nil {
			m.cfg.OnPromotion()
		}
	}()
}

// Set writes value to every configured tier. Tier writes are independent:
// one tier failing is logged and does not affect the other, and never the
// caller.
func (m *MultiLevelCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	sk := storageKey(m.cfg.Namespace, key, m.cfg.MaxKeyLength)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		localTTL := clampTTL(ttl, m.cfg.LocalMaxTTL)
		if err := m.local.Set(ctx, sk, value, localTTL); err != nil {
			m.logger.Warn("local tier write failed", zap.String("key", key), zap.Error(err))
		}
	}()

	if m.remote != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := value
			if m.codec != nil && m.cfg.CompressionThreshold > 0 && len(value) > m.cfg.CompressionThreshold {
				compressed, err := m.codec.Compress(value)
				if err != nil {
					m.logger.Warn("compression failed, storing raw", zap.Error(err))
				} else {
					payload = frameCompressed(m.codec.Name(), compressed)
				}
			}
			remoteTTL := clampTTL(ttl, m.cfg.RemoteMaxTTL)
			err := withRemoteRetry(ctx, m.cfg.RemoteRetry, m.cfg.RemoteTimeout, func(callCtx context.Context) error {
				return m.remote.Set(callCtx, sk, payload, remoteTTL)
			})
			if err != nil {
				m.logger.Warn("remote tier write failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// Remove invalidates key in every tier.
func (m *MultiLevelCache) Remove(ctx context.Context, key string) {
	sk := storageKey(m.cfg.Namespace, key, m.cfg.MaxKeyLength)
	if err := m.local.Delete(ctx, sk); err != nil {
		m.logger.Warn("local tier delete failed", zap.String("key", key), zap.Error(err))
	}
	if m.remote != nil {
		err := withRemoteRetry(ctx, m.cfg.RemoteRetry, m.cfg.RemoteTimeout, func(callCtx context.Context) error {
			return m.remote.Delete(callCtx, sk)
		})
		if err != nil {
			m.logger.Warn("remote tier delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// RemoveByPattern invalidates every key matching the glob pattern. The
// pattern is namespaced the same way keys are.
func (m *MultiLevelCache) RemoveByPattern(ctx context.Context, pattern string) {
	nsPattern := m.cfg.Namespace + ":" + pattern
	if err := m.local.DeleteByPattern(ctx, nsPattern); err != nil {
		m.logger.Warn("local pattern delete failed", zap.String("pattern", pattern), zap.Error(err))
	}
	if m.remote != nil {
		err := withRemoteRetry(ctx, m.cfg.RemoteRetry, m.cfg.RemoteTimeout, func(callCtx context.Context) error {
			return m.remote.DeleteByPattern(callCtx, nsPattern)
		})
		if err != nil {
			m.logger.Warn("remote pattern delete failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}

// Exists reports whether key is present in any tier.
func (m *MultiLevelCache) Exists(ctx context.Context, key string) bool {
	sk := storageKey(m.cfg.Namespace, key, m.cfg.MaxKeyLength)
	if ok, err := m.local.Exists(ctx, sk); err == nil && ok {
		return true
	}
	if m.remote == nil {
		return false
	}
	var ok bool
	err := withRemoteRetry(ctx, m.cfg.RemoteRetry, m.cfg.RemoteTimeout, func(callCtx context.Context) error {
		var opErr error
		ok, opErr = m.remote.Exists(callCtx, sk)
		return opErr
	})
	return err == nil && ok
}

// Clear drops every entry in every tier.
func (m *MultiLevelCache) Clear(ctx context.Context) {
	if err := m.local.Clear(ctx); err != nil {
		m.logger.Warn("local tier clear failed", zap.Error(err))
	}
	if m.remote != nil {
		err := withRemoteRetry(ctx, m.cfg.RemoteRetry, m.cfg.RemoteTimeout, func(callCtx context.Context) error {
			return m.remote.Clear(callCtx)
		})
		if err != nil {
			m.logger.Warn("remote tier clear failed", zap.Error(err))
		}
	}
}

// Statistics returns a snapshot of per-tier and merged counters.
func (m *MultiLevelCache) Statistics() Statistics {
	return m.stats.snapshot(int64(m.local.Len()), m.local.MemoryBytes())
}

// waitPromotions blocks until in-flight promotions settle. Test hook.
func (m *MultiLevelCache) waitPromotions() {
	m.promoteWG.Wait()
}

func clampTTL(requested, max time.Duration) time.Duration {
	if max > 0 && (requested <= 0 || requested > max) {
		return max
	}
	return requested
}
