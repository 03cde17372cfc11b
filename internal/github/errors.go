// internal/github/errors.go
package github

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"

	custom_errors "repo-sync/internal/errors"
)

// classify converts a go-github / transport error into a *ProviderError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pErr *custom_errors.ProviderError
	if errors.As(err, &pErr) {
		return err
	}

	out := &custom_errors.ProviderError{Op: op, Message: err.Error(), Err: err}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse
	var netErr net.Error

	switch {
	case errors.As(err, &rateErr):
		out.Kind = custom_errors.KindRateLimited
		out.Message = rateErr.Message
		out.RetryAt = rateErr.Rate.Reset.Time
		if rateErr.Response != nil {
			out.Status = rateErr.Response.StatusCode
		}
	case errors.As(err, &abuseErr):
		out.Kind = custom_errors.KindRateLimited
		out.Message = abuseErr.Message
		if abuseErr.RetryAfter != nil {
			out.RetryAt = time.Now().Add(*abuseErr.RetryAfter)
		}
		if abuseErr.Response != nil {
			out.Status = abuseErr.Response.StatusCode
		}
	case errors.As(err, &respErr):
		out.Message = respErr.Message
		if respErr.Response != nil {
			out.Status = respErr.Response.StatusCode
		}
		out.Kind = custom_errors.KindForStatus(out.Status)
		if out.Status == http.StatusForbidden && strings.Contains(strings.ToLower(respErr.Message), "rate limit") {
			out.Kind = custom_errors.KindRateLimited
		}
	case errors.Is(err, context.Canceled):
		out.Kind = custom_errors.KindOther
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		out.Kind = custom_errors.KindTransient
	default:
		out.Kind = custom_errors.KindOther
	}
	return out
}
