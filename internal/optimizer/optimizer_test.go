package optimizer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryflow/internal/queryflow"
)

func newTestOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	return New(DefaultConfig(), nil)
}

func TestOptimizeSelectsIndexedLookupForPartitionKey(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName:    "Users",
		PartitionKey: &queryflow.KeyCondition{Name: "UserId", Value: "u1"},
	}
	res := o.Optimize(req)

	assert.Equal(t, queryflow.StrategyIndexed, res.SelectedStrategy)
	assert.Equal(t, queryflow.HintForceIndexed, res.Optimized.Hint)
	assert.GreaterOrEqual(t, res.EstimatedCostReduction, 70.0)

	require.NotEmpty(t, res.Recommendations)
	assert.Equal(t, KindStrategySelection, res.Recommendations[0].Kind)
	assert.Equal(t, ImpactHigh, res.Recommendations[0].Impact)
}

func TestOptimizeFallsBackToScanWithoutKey(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName: "Users",
		Predicates: []queryflow.Predicate{
			{Attribute: "status", Operator: queryflow.OperatorEqual, Value: "active"},
		},
	}
	res := o.Optimize(req)

	assert.Equal(t, queryflow.StrategyScan, res.SelectedStrategy)

	var kinds []string
	for _, rec := range res.Recommendations {
		kinds = append(kinds, rec.Kind)
	}
	assert.Contains(t, kinds, KindIndexRecommended)
}

func TestOptimizeHonorsForceScanHint(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName:    "Users",
		PartitionKey: &queryflow.KeyCondition{Name: "UserId", Value: "u1"},
		Hint:         queryflow.HintForceScan,
	}
	res := o.Optimize(req)

	assert.Equal(t, queryflow.StrategyScan, res.SelectedStrategy)
}

func TestOptimizeReordersPredicatesBySelectivity(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName: "Orders",
		Predicates: []queryflow.Predicate{
			{Attribute: "notes", Operator: queryflow.OperatorContains, Value: "gift"},
			{Attribute: "total", Operator: queryflow.OperatorGreaterThan, Value: "100"},
			{Attribute: "status", Operator: queryflow.OperatorEqual, Value: "shipped"},
		},
	}
	res := o.Optimize(req)

	got := make([]string, len(res.Optimized.Predicates))
	for i, p := range res.Optimized.Predicates {
		got[i] = p.Attribute
	}
	assert.Equal(t, []string{"status", "total", "notes"}, got)

	// The caller's request is never mutated.
	assert.Equal(t, "notes", req.Predicates[0].Attribute)

	var kinds []string
	for _, rec := range res.Recommendations {
		kinds = append(kinds, rec.Kind)
	}
	assert.Contains(t, kinds, KindPredicateOrder)
}

func TestSelectivityRank(t *testing.T) {
	tests := []struct {
		name string
		pred queryflow.Predicate
		rank int
	}{
		{"equality is most selective", queryflow.Predicate{Operator: queryflow.OperatorEqual}, 1},
		{"small membership", queryflow.Predicate{Operator: queryflow.OperatorIn, Values: []string{"a", "b"}}, 2},
		{"large membership", queryflow.Predicate{Operator: queryflow.OperatorIn, Values: []string{"a", "b", "c", "d", "e", "f"}}, 4},
		{"range", queryflow.Predicate{Operator: queryflow.OperatorBetween}, 3},
		{"prefix", queryflow.Predicate{Operator: queryflow.OperatorBeginsWith}, 4},
		{"contains is least selective", queryflow.Predicate{Operator: queryflow.OperatorContains}, 5},
		{"not-equal is least selective", queryflow.Predicate{Operator: queryflow.OperatorNotEqual}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rank, selectivityRank(tt.pred))
		})
	}
}

func TestOptimizeSuggestsPrefixRewrite(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName:    "Users",
		PartitionKey: &queryflow.KeyCondition{Name: "UserId", Value: "u1"},
		Predicates: []queryflow.Predicate{
			{Attribute: "email", Operator: queryflow.OperatorContains, Value: "admin%"},
		},
	}
	res := o.Optimize(req)

	var found bool
	for _, rec := range res.Recommendations {
		if rec.Kind == KindOperatorRewrite {
			found = true
			assert.Contains(t, rec.Message, "email")
		}
	}
	assert.True(t, found, "trailing-wildcard contains should suggest begins_with")

	// Advisory only: the predicate itself is untouched.
	assert.Equal(t, queryflow.OperatorContains, res.Optimized.Predicates[0].Operator)
}

func TestOptimizeProposesProjection(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName:    "Users",
		PartitionKey: &queryflow.KeyCondition{Name: "UserId", Value: "u1"},
		SortKey:      &queryflow.KeyCondition{Name: "CreatedAt", Value: "2026"},
		Predicates: []queryflow.Predicate{
			{Attribute: "status", Operator: queryflow.OperatorEqual, Value: "active"},
		},
	}
	res := o.Optimize(req)

	assert.Equal(t, []string{"UserId", "CreatedAt", "status"}, res.Optimized.Projection)
	assert.Empty(t, req.Projection, "original request keeps its empty projection")
}

func TestOptimizeKeepsExplicitProjection(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName:    "Users",
		PartitionKey: &queryflow.KeyCondition{Name: "UserId", Value: "u1"},
		Projection:   []string{"email"},
		Predicates: []queryflow.Predicate{
			{Attribute: "status", Operator: queryflow.OperatorEqual, Value: "active"},
		},
	}
	res := o.Optimize(req)
	assert.Equal(t, []string{"email"}, res.Optimized.Projection)
}

func TestOptimizeClampsPageSize(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName:    "Users",
		PartitionKey: &queryflow.KeyCondition{Name: "UserId", Value: "u1"},
		PageSize:     5000,
	}
	res := o.Optimize(req)

	assert.Equal(t, int32(1000), res.Optimized.PageSize)
	assert.Equal(t, int32(5000), req.PageSize)
}

func TestOptimizeFlagsTinyPageSize(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName:    "Users",
		PartitionKey: &queryflow.KeyCondition{Name: "UserId", Value: "u1"},
		PageSize:     5,
	}
	res := o.Optimize(req)

	// Advisory only: the requested size stands.
	assert.Equal(t, int32(5), res.Optimized.PageSize)
	var found bool
	for _, rec := range res.Recommendations {
		if rec.Kind == KindPagination {
			found = true
		}
	}
	assert.True(t, found)
}

func TestOptimizeSubstitutesSecondaryIndex(t *testing.T) {
	o := newTestOptimizer(t)
	require.NoError(t, o.RegisterSchema(TableSchema{
		TableName:    "Users",
		PartitionKey: "UserId",
		SecondaryIndexes: []SecondaryIndex{
			{IndexName: "email-index", PartitionKey: "email"},
		},
	}))

	req := &queryflow.AccessRequest{
		TableName: "Users",
		Predicates: []queryflow.Predicate{
			{Attribute: "email", Operator: queryflow.OperatorEqual, Value: "a@example.com"},
		},
	}
	res := o.Optimize(req)

	assert.Equal(t, queryflow.StrategyIndexed, res.SelectedStrategy)
	assert.Equal(t, "email-index", res.Optimized.IndexName)
	require.NotNil(t, res.Optimized.PartitionKey)
	assert.Equal(t, "email", res.Optimized.PartitionKey.Name)
	assert.Equal(t, "a@example.com", res.Optimized.PartitionKey.Value)
	assert.Empty(t, res.Optimized.Predicates, "the matched predicate moves into the key condition")
}

func TestOptimizeSkipsSubstitutionForNonEquality(t *testing.T) {
	o := newTestOptimizer(t)
	require.NoError(t, o.RegisterSchema(TableSchema{
		TableName: "Users",
		SecondaryIndexes: []SecondaryIndex{
			{IndexName: "email-index", PartitionKey: "email"},
		},
	}))

	req := &queryflow.AccessRequest{
		TableName: "Users",
		Predicates: []queryflow.Predicate{
			{Attribute: "email", Operator: queryflow.OperatorBeginsWith, Value: "admin"},
		},
	}
	res := o.Optimize(req)

	assert.Equal(t, queryflow.StrategyScan, res.SelectedStrategy)
	assert.Empty(t, res.Optimized.IndexName)
}

func TestOptimizeIsIdempotent(t *testing.T) {
	o := newTestOptimizer(t)
	require.NoError(t, o.RegisterSchema(TableSchema{
		TableName: "Users",
		SecondaryIndexes: []SecondaryIndex{
			{IndexName: "email-index", PartitionKey: "email"},
		},
	}))

	req := &queryflow.AccessRequest{
		TableName: "Users",
		PageSize:  5000,
		Predicates: []queryflow.Predicate{
			{Attribute: "notes", Operator: queryflow.OperatorContains, Value: "x"},
			{Attribute: "email", Operator: queryflow.OperatorEqual, Value: "a@example.com"},
		},
	}

	first := o.Optimize(req)
	second := o.Optimize(first.Optimized)

	assert.Equal(t, first.SelectedStrategy, second.SelectedStrategy)
	assert.Equal(t, first.Optimized, second.Optimized, "re-optimizing a rewritten request must not drift")
}

func TestOptimizeEstimatesAreCapped(t *testing.T) {
	o := newTestOptimizer(t)

	req := &queryflow.AccessRequest{
		TableName:    "Users",
		PartitionKey: &queryflow.KeyCondition{Name: "UserId", Value: "u1"},
		PageSize:     5000,
		Predicates: []queryflow.Predicate{
			{Attribute: "status", Operator: queryflow.OperatorEqual, Value: "active"},
			{Attribute: "notes", Operator: queryflow.OperatorContains, Value: "gift%"},
		},
	}
	res := o.Optimize(req)

	assert.LessOrEqual(t, res.EstimatedCostReduction, 95.0)
	assert.LessOrEqual(t, res.EstimatedPerformanceGain, 95.0)
}

func TestPatternTrackingRecommendsHotAttributes(t *testing.T) {
	o := newTestOptimizer(t)

	// status appears in every request, region in a third of them.
	for i := 0; i < 120; i++ {
		preds := []queryflow.Predicate{
			{Attribute: "status", Operator: queryflow.OperatorEqual, Value: "active"},
		}
		if i%3 == 0 {
			preds = append(preds, queryflow.Predicate{
				Attribute: "region", Operator: queryflow.OperatorEqual, Value: "eu",
			})
		}
		o.Optimize(&queryflow.AccessRequest{TableName: "Users", Predicates: preds})
	}

	rec := o.AnalyzePatterns("Users")
	assert.Equal(t, int64(120), rec.TotalRequests)
	assert.Equal(t, int64(120), rec.AttributeUsage["status"])

	require.NotEmpty(t, rec.Recommendations)
	attrs := make(map[string]IndexRecommendation)
	for _, r := range rec.Recommendations {
		attrs[r.Attribute] = r
	}
	require.Contains(t, attrs, "status")
	assert.Equal(t, 80.0, attrs["status"].EstimatedCostReduction, "reduction is capped")
	require.Contains(t, attrs, "region")
	assert.Greater(t, attrs["region"].UsageShare, 0.10)
}

func TestPatternTrackingDoesNotDuplicateRecommendations(t *testing.T) {
	o := newTestOptimizer(t)

	for i := 0; i < 300; i++ {
		o.Optimize(&queryflow.AccessRequest{
			TableName: "Users",
			Predicates: []queryflow.Predicate{
				{Attribute: "status", Operator: queryflow.OperatorEqual, Value: "active"},
			},
		})
	}

	rec := o.AnalyzePatterns("Users")
	count := 0
	for _, r := range rec.Recommendations {
		if r.Attribute == "status" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestPatternTrackingCapsRecommendationCount(t *testing.T) {
	o := newTestOptimizer(t)

	// Ten distinct attributes, each hot enough to qualify.
	for i := 0; i < 200; i++ {
		o.Optimize(&queryflow.AccessRequest{
			TableName: "Wide",
			Predicates: []queryflow.Predicate{
				{Attribute: fmt.Sprintf("attr%d", i%10), Operator: queryflow.OperatorEqual, Value: "v"},
				{Attribute: "always", Operator: queryflow.OperatorEqual, Value: "v"},
			},
		})
	}

	rec := o.AnalyzePatterns("Wide")
	assert.LessOrEqual(t, len(rec.Recommendations), DefaultConfig().MaxIndexRecommendations)
}

func TestResetPatterns(t *testing.T) {
	o := newTestOptimizer(t)
	o.Optimize(&queryflow.AccessRequest{TableName: "Users"})
	require.Equal(t, int64(1), o.AnalyzePatterns("Users").TotalRequests)

	o.ResetPatterns("Users")
	assert.Equal(t, int64(0), o.AnalyzePatterns("Users").TotalRequests)
}

func TestRegisterSchemaRequiresTableName(t *testing.T) {
	o := newTestOptimizer(t)
	assert.Error(t, o.RegisterSchema(TableSchema{}))
}
