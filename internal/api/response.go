// internal/api/response.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/service"
	"repo-sync/internal/webhook"
)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		return name
	})
	return v
}()

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	var (
		validationErr *custom_errors.ValidationError
		formatErr     *custom_errors.ErrInvalidRepoFormat
		providerErr   *custom_errors.ProviderError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &formatErr), errors.Is(err, custom_errors.ErrNoToken):
		return http.StatusBadRequest
	case errors.Is(err, custom_errors.ErrRepositoryNotFound), errors.Is(err, custom_errors.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, custom_errors.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrDeliveryQueueFull), errors.Is(err, webhook.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithErr writes err with its mapped status. Internal errors are
// logged and hidden from the client.
func respondWithErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
		respondWithError(w, code, "Internal server error")
		return
	}
	respondWithError(w, code, err.Error())
}

// decodeJSON reads and validates a request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &custom_errors.ValidationError{Message: "invalid JSON body: " + err.Error()}
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return &custom_errors.ValidationError{
				Field:   e.Field(),
				Message: fmt.Sprintf("failed on '%s'", e.Tag()),
			}
		}
		return err
	}
	return nil
}
