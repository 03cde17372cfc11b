// internal/errors/errors_test.go
package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusNotFound:            KindNotFound,
		http.StatusUnauthorized:        KindUnauthorized,
		http.StatusForbidden:           KindForbidden,
		http.StatusTooManyRequests:     KindRateLimited,
		http.StatusBadGateway:          KindTransient,
		http.StatusInternalServerError: KindTransient,
		http.StatusUnprocessableEntity: KindOther,
	}
	for status, want := range cases {
		assert.Equal(t, want, KindForStatus(status), "status %d", status)
	}
}

func TestProviderError_Classification(t *testing.T) {
	rateLimited := &ProviderError{Kind: KindRateLimited, Status: 403, Op: "list repos", Message: "API rate limit exceeded"}
	notFound := &ProviderError{Kind: KindNotFound, Status: 404, Op: "get repo", Message: "Not Found"}

	wrapped := fmt.Errorf("sync stage: %w", rateLimited)

	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsKind(wrapped, KindRateLimited))
	assert.False(t, IsRetryable(notFound))
	assert.False(t, IsKind(fmt.Errorf("plain"), KindNotFound))
	assert.Contains(t, rateLimited.Error(), "status 403")
}

func TestErrInvalidRepoFormat(t *testing.T) {
	err := &ErrInvalidRepoFormat{Repo: "nope"}
	assert.Equal(t, `invalid repository format: "nope", expected 'owner/name'`, err.Error())
}
