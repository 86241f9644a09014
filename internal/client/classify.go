package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/storyreel/api/internal/model"
)

// classifyOpenAIError marks provider errors as transient or permanent.
// Rate limits, timeouts and server errors are retried; an exhausted quota,
// a rejected prompt and other client errors are not.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.Transient(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type == "insufficient_quota" || apiErr.Code == "insufficient_quota" {
			return model.Permanent(err)
		}
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}

	// connection resets, DNS failures and the like
	return model.Transient(err)
}

func classifyStatus(status int, err error) error {
	switch {
	case status == 0,
		status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return model.Transient(err)
	default:
		return model.Permanent(err)
	}
}
