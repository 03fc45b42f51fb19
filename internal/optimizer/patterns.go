package optimizer

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// IndexRecommendation is a derived suggestion to add a GSI on a frequently
// filtered attribute.
type IndexRecommendation struct {
	Attribute              string  `json:"attribute"`
	UsageShare             float64 `json:"usageShare"`
	EstimatedCostReduction float64 `json:"estimatedCostReduction"`
	Message                string  `json:"message"`
}

// PatternRecord is the per-table running aggregate of observed query shapes.
type PatternRecord struct {
	TableName       string                `json:"tableName"`
	TotalRequests   int64                 `json:"totalRequests"`
	AttributeUsage  map[string]int64      `json:"attributeUsage"`
	Recommendations []IndexRecommendation `json:"recommendations,omitempty"`
	LastUpdated     time.Time             `json:"lastUpdated"`
}

type patternTracker struct {
	mu      sync.Mutex
	records map[string]*PatternRecord
	// recommended tracks attributes already suggested, per table, so a
	// recompute never duplicates a recommendation.
	recommended map[string]map[string]bool

	minRequests        int64   // requests before recommendations are derived
	hotAttributeShare  float64 // usage share that makes an attribute hot
	maxRecommendations int
	maxCostReduction   float64
}

func newPatternTracker(cfg Config) *patternTracker {
	return &patternTracker{
		records:            make(map[string]*PatternRecord),
		recommended:        make(map[string]map[string]bool),
		minRequests:        cfg.PatternMinRequests,
		hotAttributeShare:  cfg.HotAttributeShare,
		maxRecommendations: cfg.MaxIndexRecommendations,
		maxCostReduction:   cfg.MaxPatternCostReduction,
	}
}

// observe merges one request's predicate attributes into the table's record
// and recomputes recommendations once enough traffic has been seen.
func (t *patternTracker) observe(table string, attributes []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[table]
	if !ok {
		rec = &PatternRecord{
			TableName:      table,
			AttributeUsage: make(map[string]int64),
		}
		t.records[table] = rec
		t.recommended[table] = make(map[string]bool)
	}

	rec.TotalRequests++
	for _, attr := range attributes {
		rec.AttributeUsage[attr]++
	}
	rec.LastUpdated = time.Now()

	if rec.TotalRequests >= t.minRequests {
		t.recompute(rec)
	}
}

// recompute derives index recommendations for hot attributes. Caller must
// hold the lock.
func (t *patternTracker) recompute(rec *PatternRecord) {
	seen := t.recommended[rec.TableName]

	type hot struct {
		attribute string
		share     float64
	}
	var hots []hot
	for attr, count := range rec.AttributeUsage {
		share := float64(count) / float64(rec.TotalRequests)
		if share > t.hotAttributeShare && !seen[attr] {
			hots = append(hots, hot{attribute: attr, share: share})
		}
	}
	sort.Slice(hots, func(i, j int) bool {
		if hots[i].share != hots[j].share {
			return hots[i].share > hots[j].share
		}
		return hots[i].attribute < hots[j].attribute
	})

	for _, h := range hots {
		if len(rec.Recommendations) >= t.maxRecommendations {
			break
		}
		reduction := h.share * 100
		if reduction > t.maxCostReduction {
			reduction = t.maxCostReduction
		}
		rec.Recommendations = append(rec.Recommendations, IndexRecommendation{
			Attribute:              h.attribute,
			UsageShare:             h.share,
			EstimatedCostReduction: reduction,
			Message: fmt.Sprintf("attribute %q appears in %.0f%% of queries against %s; a secondary index would avoid repeated scans",
				h.attribute, h.share*100, rec.TableName),
		})
		seen[h.attribute] = true
	}
}

// snapshot returns a copy of the table's record.
func (t *patternTracker) snapshot(table string) PatternRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[table]
	if !ok {
		return PatternRecord{TableName: table, AttributeUsage: map[string]int64{}}
	}
	out := PatternRecord{
		TableName:       rec.TableName,
		TotalRequests:   rec.TotalRequests,
		AttributeUsage:  make(map[string]int64, len(rec.AttributeUsage)),
		Recommendations: append([]IndexRecommendation(nil), rec.Recommendations...),
		LastUpdated:     rec.LastUpdated,
	}
	for k, v := range rec.AttributeUsage {
		out.AttributeUsage[k] = v
	}
	return out
}

// reset clears the table's record. Administrative action only.
func (t *patternTracker) reset(table string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, table)
	delete(t.recommended, table)
}
