package batch

import (
	"context"
	"fmt"
)

// Item status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome for one id of a batch.
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Summary aggregates the results of a batch. It is the tool result when a
// modify tool receives an array of message ids.
type Summary struct {
	Success    bool     `json:"success"`
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseStringOrArray parses a parameter that can be either a single string or
// an array of strings. The bool result reports whether an array was given.
func ParseStringOrArray(param any, paramName string) ([]string, bool, error) {
	if param == nil {
		return nil, false, fmt.Errorf("%s is required", paramName)
	}

	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, false, fmt.Errorf("%s cannot be empty", paramName)
		}
		return []string{v}, false, nil
	case []string:
		return ParseStringOrArray(toAny(v), paramName)
	case []any:
		if len(v) == 0 {
			return nil, true, fmt.Errorf("%s cannot be empty", paramName)
		}
		result := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, true, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if str == "" {
				return nil, true, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			result = append(result, str)
		}
		return result, true, nil
	default:
		return nil, false, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// Run applies fn to each id in order and collects the results. It stops
// early when ctx is done; ids not attempted are reported as errors carrying
// the context error.
func Run(ctx context.Context, ids []string, fn func(ctx context.Context, id string) error) Summary {
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		if err := fn(ctx, id); err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		results = append(results, NewSuccessResult(id))
	}
	return Summarize(results)
}

// Summarize counts results. Success is true only when no item failed.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == StatusSuccess {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	s.Success = s.Failed == 0
	return s
}

// NewSuccessResult creates a success result
func NewSuccessResult(id string) Result {
	return Result{ID: id, Status: StatusSuccess}
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{ID: id, Status: StatusError, Error: err.Error()}
}
