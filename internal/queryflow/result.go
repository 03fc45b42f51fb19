package queryflow

import "encoding/json"

// CacheStatus reports where a query result was served from.
type CacheStatus string

const (
	CacheStatusLocal  CacheStatus = "local_hit"
	CacheStatusRemote CacheStatus = "remote_hit"
	CacheStatusMiss   CacheStatus = "miss"
	CacheStatusBypass CacheStatus = "bypass"
)

// PageInfo describes the pagination state of a result page.
type PageInfo struct {
	PageSize   int32  `json:"pageSize"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasNext    bool   `json:"hasNext"`
}

// ExecutionMetadata describes how a request was executed.
type ExecutionMetadata struct {
	Strategy         Strategy    `json:"strategy"`
	IndexUsed        string      `json:"indexUsed,omitempty"`
	CacheStatus      CacheStatus `json:"cacheStatus"`
	ExecMillis       int64       `json:"execMillis"`
	ItemsExamined    int32       `json:"itemsExamined"`
	ItemsReturned    int32       `json:"itemsReturned"`
	ConsumedCapacity float64     `json:"consumedCapacity,omitempty"`
	Warnings         []string    `json:"warnings,omitempty"`
}

// QueryResult is one page of items plus execution metadata.
type QueryResult struct {
	Items []map[string]any  `json:"items"`
	Page  PageInfo          `json:"pagination"`
	Meta  ExecutionMetadata `json:"execMeta"`
}

// Serializer converts values to and from a transport-safe string form.
// The cache stores serialized values only; the backing store and the HTTP
// layer own their own wire formats.
type Serializer interface {
	Encode(v any) (string, error)
	Decode(s string, v any) error
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONSerializer) Decode(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
