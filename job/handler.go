package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BranchIntl/jobqueue/errors"
)

// Invoke runs h for j and encodes its result. Panics and unencodable
// results are returned as handler errors.
func Invoke(ctx context.Context, h Handler, j *Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.NewHandlerError(string(j.Type), j.ID, fmt.Errorf("panic: %v", r))
		}
	}()

	value, err := h(ctx, j)
	if err != nil {
		return nil, errors.NewHandlerError(string(j.Type), j.ID, err)
	}
	return encodeResult(j, value)
}

func encodeResult(j *Job, value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.NewHandlerError(string(j.Type), j.ID, fmt.Errorf("encode result: %w", err))
	}
	return data, nil
}
