// Package dynamodb implements the backing-store client against DynamoDB
// using the AWS SDK v2 expression builders.
package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	xerrors "queryflow/internal/errors"
	"queryflow/internal/queryflow"
	"queryflow/internal/store"
)

// API is the subset of the DynamoDB client the adapter uses. *dynamodb.Client
// satisfies it; tests substitute a fake.
type API interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Client adapts DynamoDB to the store.Client contract.
type Client struct {
	api     API
	timeout time.Duration
	logger  *zap.Logger
}

// New creates the adapter. timeout applies per store call, independent of
// the caller's cancellation; zero disables it.
func New(api API, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, timeout: timeout, logger: logger}
}

// IndexedLookup runs a Query keyed by the request's partition (and sort) key.
func (c *Client) IndexedLookup(ctx context.Context, req *queryflow.AccessRequest) (*store.ReadResult, error) {
	if !req.HasPartitionKey() {
		return nil, xerrors.Validation("MISSING_PARTITION_KEY", "indexed lookup requires a partition-key value").
			WithOperation("IndexedLookup").
			WithResource(req.TableName).
			Build()
	}

	keyCond := expression.Key(req.PartitionKey.Name).Equal(expression.Value(req.PartitionKey.Value))
	if req.SortKey != nil && req.SortKey.Name != "" {
		keyCond = keyCond.And(expression.Key(req.SortKey.Name).Equal(expression.Value(req.SortKey.Value)))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if filter, ok := buildFilter(req.Predicates); ok {
		builder = builder.WithFilter(filter)
	}
	if proj, ok := buildProjection(req.Projection); ok {
		builder = builder.WithProjection(proj)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, xerrors.Internal("EXPRESSION_BUILD_FAILED", "failed to build query expression").
			WithOperation("IndexedLookup").
			WithResource(req.TableName).
			WithCause(err).
			Build()
	}

	startKey, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(req.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ExclusiveStartKey:         startKey,
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	}
	if req.IndexName != "" {
		input.IndexName = aws.String(req.IndexName)
	} else if req.ConsistentRead {
		// Consistent reads are only valid against the base table.
		input.ConsistentRead = aws.Bool(true)
	}
	if req.PageSize > 0 {
		input.Limit = aws.Int32(req.PageSize)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := c.api.Query(callCtx, input)
	if err != nil {
		return nil, classify(err, "IndexedLookup", req.TableName)
	}
	return c.readResult(out.Items, out.LastEvaluatedKey, out.Count, out.ScannedCount, out.ConsumedCapacity)
}

// Scan runs a linear examination with every condition as a filter.
func (c *Client) Scan(ctx context.Context, req *queryflow.AccessRequest) (*store.ReadResult, error) {
	preds := req.Predicates
	if req.HasPartitionKey() {
		// A forced scan still honors the key condition, as a filter.
		preds = append([]queryflow.Predicate{{
			Attribute: req.PartitionKey.Name,
			Operator:  queryflow.OperatorEqual,
			Value:     req.PartitionKey.Value,
		}}, preds...)
	}

	builder := expression.NewBuilder()
	hasExpr := false
	if filter, ok := buildFilter(preds); ok {
		builder = builder.WithFilter(filter)
		hasExpr = true
	}
	if proj, ok := buildProjection(req.Projection); ok {
		builder = builder.WithProjection(proj)
		hasExpr = true
	}

	input := &dynamodb.ScanInput{
		TableName:              aws.String(req.TableName),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if hasExpr {
		expr, err := builder.Build()
		if err != nil {
			return nil, xerrors.Internal("EXPRESSION_BUILD_FAILED", "failed to build scan expression").
				WithOperation("Scan").
				WithResource(req.TableName).
				WithCause(err).
				Build()
		}
		input.FilterExpression = expr.Filter()
		input.ProjectionExpression = expr.Projection()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}
	if req.IndexName != "" {
		input.IndexName = aws.String(req.IndexName)
	} else if req.ConsistentRead {
		input.ConsistentRead = aws.Bool(true)
	}
	if req.PageSize > 0 {
		input.Limit = aws.Int32(req.PageSize)
	}
	startKey, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	input.ExclusiveStartKey = startKey

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := c.api.Scan(callCtx, input)
	if err != nil {
		return nil, classify(err, "Scan", req.TableName)
	}
	return c.readResult(out.Items, out.LastEvaluatedKey, out.Count, out.ScannedCount, out.ConsumedCapacity)
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) readResult(
	rawItems []map[string]types.AttributeValue,
	lastKey map[string]types.AttributeValue,
	count, scanned int32,
	capacity *types.ConsumedCapacity,
) (*store.ReadResult, error) {
	items := make([]map[string]any, 0, len(rawItems))
	if err := attributevalue.UnmarshalListOfMaps(rawItems, &items); err != nil {
		return nil, xerrors.Internal("ITEM_DECODE_FAILED", "failed to decode items").
			WithCause(err).
			Build()
	}

	cursor, err := encodeCursor(lastKey)
	if err != nil {
		c.logger.Warn("failed to encode continuation cursor, dropping it", zap.Error(err))
		cursor = ""
	}

	res := &store.ReadResult{
		Items:         items,
		NextCursor:    cursor,
		ItemsExamined: scanned,
		ItemsReturned: count,
	}
	if capacity != nil && capacity.CapacityUnits != nil {
		res.ConsumedCapacity = *capacity.CapacityUnits
	}
	return res, nil
}

// buildFilter folds predicates into one condition.
func buildFilter(preds []queryflow.Predicate) (expression.ConditionBuilder, bool) {
	var cond expression.ConditionBuilder
	have := false
	for _, p := range preds {
		pc, err := predicateCondition(p)
		if err != nil {
			continue // validated upstream; skip rather than fail the call
		}
		if !have {
			cond = pc
			have = true
		} else {
			cond = cond.And(pc)
		}
	}
	return cond, have
}

func predicateCondition(p queryflow.Predicate) (expression.ConditionBuilder, error) {
	name := expression.Name(p.Attribute)
	switch p.Operator {
	case queryflow.OperatorEqual:
		return name.Equal(expression.Value(p.Value)), nil
	case queryflow.OperatorNotEqual:
		return name.NotEqual(expression.Value(p.Value)), nil
	case queryflow.OperatorLessThan:
		return name.LessThan(expression.Value(p.Value)), nil
	case queryflow.OperatorLessThanOrEqual:
		return name.LessThanEqual(expression.Value(p.Value)), nil
	case queryflow.OperatorGreaterThan:
		return name.GreaterThan(expression.Value(p.Value)), nil
	case queryflow.OperatorGreaterThanOrEqual:
		return name.GreaterThanEqual(expression.Value(p.Value)), nil
	case queryflow.OperatorBetween:
		if len(p.Values) < 2 {
			return expression.ConditionBuilder{}, fmt.Errorf("between requires two values")
		}
		return name.Between(expression.Value(p.Values[0]), expression.Value(p.Values[1])), nil
	case queryflow.OperatorBeginsWith:
		return name.BeginsWith(p.Value), nil
	case queryflow.OperatorContains:
		return name.Contains(p.Value), nil
	case queryflow.OperatorIn:
		if len(p.Values) == 0 {
			return expression.ConditionBuilder{}, fmt.Errorf("in requires at least one value")
		}
		rest := make([]expression.OperandBuilder, 0, len(p.Values)-1)
		for _, v := range p.Values[1:] {
			rest = append(rest, expression.Value(v))
		}
		return name.In(expression.Value(p.Values[0]), rest...), nil
	default:
		return expression.ConditionBuilder{}, fmt.Errorf("unsupported operator %q", p.Operator)
	}
}

func buildProjection(attrs []string) (expression.ProjectionBuilder, bool) {
	if len(attrs) == 0 {
		return expression.ProjectionBuilder{}, false
	}
	names := make([]expression.NameBuilder, len(attrs))
	for i, a := range attrs {
		names[i] = expression.Name(a)
	}
	return expression.NamesList(names[0], names[1:]...), true
}
