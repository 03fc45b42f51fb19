package orchestrator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	xerrors "queryflow/internal/errors"
	"queryflow/internal/queryflow"
)

var validate = validator.New()

// validateBatch checks a request set before any partitioning. Every
// violation is collected and reported, not just the first.
func (o *Orchestrator) validateBatch(requests []*queryflow.AccessRequest) error {
	var violations []xerrors.FieldViolation

	if len(requests) == 0 {
		violations = append(violations, xerrors.FieldViolation{
			Field:   "requests",
			Rule:    "required",
			Message: "batch must contain at least one request",
		})
	}
	if len(requests) > o.cfg.MaxBatchSize {
		violations = append(violations, xerrors.FieldViolation{
			Field:   "requests",
			Rule:    "max",
			Message: fmt.Sprintf("batch size %d exceeds the maximum of %d", len(requests), o.cfg.MaxBatchSize),
		})
	}

	for i, req := range requests {
		if req == nil {
			violations = append(violations, xerrors.FieldViolation{
				Field:   fmt.Sprintf("requests[%d]", i),
				Rule:    "required",
				Message: "request must not be nil",
			})
			continue
		}
		if err := validate.Struct(req); err != nil {
			if fieldErrs, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range fieldErrs {
					violations = append(violations, xerrors.FieldViolation{
						Field:   fmt.Sprintf("requests[%d].%s", i, fe.Field()),
						Rule:    fe.Tag(),
						Message: fmt.Sprintf("failed %q validation", fe.Tag()),
					})
				}
			} else {
				violations = append(violations, xerrors.FieldViolation{
					Field:   fmt.Sprintf("requests[%d]", i),
					Message: err.Error(),
				})
			}
		}
	}

	if len(violations) > 0 {
		return xerrors.Validation("INVALID_BATCH", "batch validation failed").
			WithViolations(violations...).
			Build()
	}
	return nil
}

func isRetryable(err error) bool {
	return xerrors.IsRetryable(err)
}
