// internal/webhook/signature.go
package webhook

import (
	"strings"

	"repo-sync/internal/github"
)

const signaturePrefix = "sha256="

// Verify reports whether header is a valid X-Hub-Signature-256 value for
// payload under secret. An empty secret or a header without the sha256=
// prefix never verifies.
func Verify(header string, payload, secret []byte) bool {
	if len(secret) == 0 {
		return false
	}
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, signaturePrefix) || len(header) == len(signaturePrefix) {
		return false
	}
	return github.ValidateSignature(header, payload, secret) == nil
}
