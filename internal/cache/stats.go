package cache

import (
	"sync"
	"time"
)

// TierStatistics is a point-in-time snapshot of one tier's counters.
type TierStatistics struct {
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Entries       int64     `json:"entries"`
	MemoryBytes   int64     `json:"memoryBytes"`
	StartTime     time.Time `json:"startTime"`
	LatencyMillis float64   `json:"latencyMillis"`
}

// HitRatio returns hits / (hits + misses), or 0 when no lookups were made.
func (s TierStatistics) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Uptime returns how long the tier has been collecting statistics.
func (s TierStatistics) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// Statistics is the merged view over both tiers.
type Statistics struct {
	Local      TierStatistics `json:"local"`
	Remote     TierStatistics `json:"remote"`
	Overall    TierStatistics `json:"overall"`
	Promotions int64          `json:"promotions"`
}

// statsTracker owns all counters for the multi-level coordinator. Latency is
// kept as a decayed moving average: the first sample seeds it, later samples
// blend in at 10%.
type statsTracker struct {
	mu         sync.Mutex
	start      time.Time
	localHits  int64
	localMiss  int64
	remoteHits int64
	remoteMiss int64
	fullMiss   int64
	promotions int64
	localAvg   float64
	remoteAvg  float64
}

func newStatsTracker() *statsTracker {
	return &statsTracker{start: time.Now()}
}

func (t *statsTracker) recordLocal(hit bool, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hit {
		t.localHits++
	} else {
		t.localMiss++
	}
	t.localAvg = decayAverage(t.localAvg, elapsed)
}

func (t *statsTracker) recordRemote(hit bool, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hit {
		t.remoteHits++
	} else {
		t.remoteMiss++
	}
	t.remoteAvg = decayAverage(t.remoteAvg, elapsed)
}

// recordMiss counts a request neither tier could serve.
func (t *statsTracker) recordMiss() {
	t.mu.Lock()
	t.fullMiss++
	t.mu.Unlock()
}

func (t *statsTracker) recordPromotion() {
	t.mu.Lock()
	t.promotions++
	t.mu.Unlock()
}

func decayAverage(avg float64, sample time.Duration) float64 {
	ms := float64(sample.Microseconds()) / 1000.0
	if avg == 0 {
		return ms
	}
	return avg*0.9 + ms*0.1
}

func (t *statsTracker) snapshot(localEntries, localMemory int64) Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	local := TierStatistics{
		Hits:          t.localHits,
		Misses:        t.localMiss,
		Entries:       localEntries,
		MemoryBytes:   localMemory,
		StartTime:     t.start,
		LatencyMillis: t.localAvg,
	}
	remote := TierStatistics{
		Hits:          t.remoteHits,
		Misses:        t.remoteMiss,
		StartTime:     t.start,
		LatencyMillis: t.remoteAvg,
	}
	overall := TierStatistics{
		Hits:        local.Hits + remote.Hits,
		Misses:      t.fullMiss, // a request is a miss only when no tier could serve it
		Entries:     local.Entries,
		MemoryBytes: local.MemoryBytes,
		StartTime:   t.start,
	}
	return Statistics{
		Local:      local,
		Remote:     remote,
		Overall:    overall,
		Promotions: t.promotions,
	}
}
