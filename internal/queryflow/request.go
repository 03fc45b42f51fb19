// Package queryflow defines the request and result types shared by every
// stage of the execution pipeline: the two-tier cache, the query strategy
// optimizer, the circuit breaker and the batch orchestrator all speak in
// terms of AccessRequest and QueryResult.
package queryflow

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Operator identifies a predicate comparison operator.
type Operator string

const (
	OperatorEqual              Operator = "eq"
	OperatorNotEqual           Operator = "ne"
	OperatorLessThan           Operator = "lt"
	OperatorLessThanOrEqual    Operator = "le"
	OperatorGreaterThan        Operator = "gt"
	OperatorGreaterThanOrEqual Operator = "ge"
	OperatorBetween            Operator = "between"
	OperatorBeginsWith         Operator = "begins_with"
	OperatorContains           Operator = "contains"
	OperatorIn                 Operator = "in"
)

// StrategyHint lets a caller influence how a request is executed.
type StrategyHint string

const (
	HintAuto          StrategyHint = "auto"
	HintForceIndexed  StrategyHint = "force_indexed"
	HintForceScan     StrategyHint = "force_scan"
	HintCostOptimized StrategyHint = "cost_optimized"
)

// Strategy is the access strategy actually selected for a request.
type Strategy string

const (
	StrategyIndexed Strategy = "indexed_lookup"
	StrategyScan    Strategy = "full_scan"
)

// Predicate is a single named filter condition. Values carries the extra
// operands needed by range and membership operators (Between, In).
type Predicate struct {
	Attribute string   `json:"attribute" validate:"required"`
	Operator  Operator `json:"operator" validate:"required"`
	Value     string   `json:"value"`
	Values    []string `json:"values,omitempty"`
}

// KeyCondition names a key attribute and the value it must equal.
type KeyCondition struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// AccessRequest is a normalized lookup request against one table.
//
// An AccessRequest is treated as immutable once handed to the engine. The
// optimizer never mutates a caller's request; it works on a Clone and returns
// the rewritten copy alongside the original.
type AccessRequest struct {
	TableName      string        `json:"tableName" validate:"required"`
	PartitionKey   *KeyCondition `json:"partitionKey,omitempty"`
	SortKey        *KeyCondition `json:"sortKey,omitempty"`
	Predicates     []Predicate   `json:"predicates,omitempty" validate:"dive"`
	IndexName      string        `json:"indexName,omitempty"`
	Projection     []string      `json:"projection,omitempty"`
	PageSize       int32         `json:"pageSize,omitempty" validate:"gte=0"`
	Cursor         string        `json:"cursor,omitempty"`
	Hint           StrategyHint  `json:"hint,omitempty"`
	ConsistentRead bool          `json:"consistentRead,omitempty"`
}

var validate = validator.New()

// Validate checks structural validity of the request.
func (r *AccessRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	for i, p := range r.Predicates {
		switch p.Operator {
		case OperatorBetween:
			if len(p.Values) < 2 {
				return fmt.Errorf("predicate %d (%s): between requires two values", i, p.Attribute)
			}
		case OperatorIn:
			if len(p.Values) == 0 {
				return fmt.Errorf("predicate %d (%s): in requires at least one value", i, p.Attribute)
			}
		}
	}
	return nil
}

// HasPartitionKey reports whether an indexed lookup is possible as-is.
func (r *AccessRequest) HasPartitionKey() bool {
	return r.PartitionKey != nil && r.PartitionKey.Name != "" && r.PartitionKey.Value != ""
}

// HasPredicates reports whether the request carries filter conditions.
func (r *AccessRequest) HasPredicates() bool {
	return len(r.Predicates) > 0
}

// Clone returns a deep copy of the request. The optimizer rewrites the copy
// so the caller's request is never mutated.
func (r *AccessRequest) Clone() *AccessRequest {
	out := *r
	if r.PartitionKey != nil {
		pk := *r.PartitionKey
		out.PartitionKey = &pk
	}
	if r.SortKey != nil {
		sk := *r.SortKey
		out.SortKey = &sk
	}
	if r.Predicates != nil {
		out.Predicates = make([]Predicate, len(r.Predicates))
		for i, p := range r.Predicates {
			cp := p
			if p.Values != nil {
				cp.Values = append([]string(nil), p.Values...)
			}
			out.Predicates[i] = cp
		}
	}
	if r.Projection != nil {
		out.Projection = append([]string(nil), r.Projection...)
	}
	return &out
}
