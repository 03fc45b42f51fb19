package dynamodb

import (
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	xerrors "queryflow/internal/errors"
)

// Continuation cursors are the LastEvaluatedKey round-tripped through plain
// Go values and encoded as URL-safe base64 JSON, so they stay opaque and
// transport-safe for callers.

func encodeCursor(lastEvaluatedKey map[string]types.AttributeValue) (string, error) {
	if len(lastEvaluatedKey) == 0 {
		return "", nil
	}
	plain := make(map[string]any, len(lastEvaluatedKey))
	if err := attributevalue.UnmarshalMap(lastEvaluatedKey, &plain); err != nil {
		return "", err
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, xerrors.Validation("INVALID_CURSOR", "continuation cursor is not valid").
			WithCause(err).
			Build()
	}
	var plain map[string]any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, xerrors.Validation("INVALID_CURSOR", "continuation cursor is not valid").
			WithCause(err).
			Build()
	}
	key, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, xerrors.Validation("INVALID_CURSOR", "continuation cursor is not valid").
			WithCause(err).
			Build()
	}
	return key, nil
}
