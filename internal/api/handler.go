// internal/api/handler.go
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/service"
	"repo-sync/internal/webhook"
)

const (
	maxWebhookBody    = 5 << 20
	deliveryReplayTTL = 10 * time.Minute

	signatureHeader = "X-Hub-Signature-256"
	eventHeader     = "X-GitHub-Event"
	deliveryHeader  = "X-GitHub-Delivery"
	hookIDHeader    = "X-GitHub-Hook-ID"
)

// Handler is the container for API dependencies.
type Handler struct {
	svc        *service.Service
	secret     []byte
	deliveries *deliveryStore
	logger     *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(svc *service.Service, webhookSecret string, logger *slog.Logger) http.Handler {
	h := &Handler{
		svc:        svc,
		secret:     []byte(webhookSecret),
		deliveries: newDeliveryStore(deliveryReplayTTL),
		logger:     logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Post("/webhooks/github", h.receiveWebhook)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/users/{userID}/repositories/sync", h.syncUserRepositories)
		r.Route("/repositories/{repoID}", func(r chi.Router) {
			r.Get("/sync-status", h.getSyncStatus)
			r.Post("/sync", h.triggerSync)
			r.Post("/webhook", h.subscribeWebhook)
			r.Delete("/webhook", h.unsubscribeWebhook)
		})
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// receiveWebhook verifies one provider delivery and queues it to be applied.
// POST /webhooks/github
func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	if !webhook.Verify(r.Header.Get(signatureHeader), body, h.secret) {
		h.logger.Warn("Rejected webhook with invalid signature", "remote_addr", r.RemoteAddr)
		respondWithError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	eventType := r.Header.Get(eventHeader)
	if eventType == "" {
		respondWithError(w, http.StatusBadRequest, "missing "+eventHeader+" header")
		return
	}

	deliveryID := r.Header.Get(deliveryHeader)
	if !h.deliveries.MarkIfNew(deliveryID) {
		respondWithJSON(w, http.StatusAccepted, map[string]any{"ok": true, "duplicate": true})
		return
	}

	hookID, _ := strconv.ParseInt(r.Header.Get(hookIDHeader), 10, 64)
	logger := h.logger.With("delivery_id", deliveryID, "event", eventType)

	ev, err := h.svc.AcceptDelivery(r.Context(), service.Delivery{
		ID:        deliveryID,
		EventType: eventType,
		HookID:    hookID,
		Payload:   body,
	})
	if ev == nil {
		h.deliveries.Forget(deliveryID)
		logger.Warn("Rejected malformed webhook payload", "error", err)
		respondWithError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	if err != nil {
		h.deliveries.Forget(deliveryID)
		respondWithErr(w, h.logger, err)
		return
	}
	if ev.Ping != nil {
		respondWithJSON(w, http.StatusOK, map[string]any{"ok": true, "zen": ev.Ping.Zen})
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{"ok": true, "event": eventType, "delivery_id": deliveryID})
}

// syncUserRepositories returns the user's repositories, refreshing them
// from the provider when stale.
// POST /v1/users/{userID}/repositories/sync?force=bool
func (h *Handler) syncUserRepositories(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		force, err = strconv.ParseBool(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid 'force' parameter. Must be a boolean.")
			return
		}
	}

	repos, err := h.svc.DiscoverAndSyncRepositories(r.Context(), userID, force)
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// GET /v1/repositories/{repoID}/sync-status
func (h *Handler) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	repoID, err := pathID(r, "repoID")
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	st, err := h.svc.GetSyncStatus(r.Context(), repoID)
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

// POST /v1/repositories/{repoID}/sync
func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	repoID, err := pathID(r, "repoID")
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	jobID, err := h.svc.TriggerSync(r.Context(), repoID)
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID})
}

type webhookRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// POST /v1/repositories/{repoID}/webhook
func (h *Handler) subscribeWebhook(w http.ResponseWriter, r *http.Request) {
	repoID, req, err := h.webhookParams(r)
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	sub, err := h.svc.SubscribeWebhook(r.Context(), repoID, req.UserID)
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// DELETE /v1/repositories/{repoID}/webhook
func (h *Handler) unsubscribeWebhook(w http.ResponseWriter, r *http.Request) {
	repoID, req, err := h.webhookParams(r)
	if err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	if err := h.svc.UnsubscribeWebhook(r.Context(), repoID, req.UserID); err != nil {
		respondWithErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) webhookParams(r *http.Request) (int64, webhookRequest, error) {
	var req webhookRequest
	repoID, err := pathID(r, "repoID")
	if err != nil {
		return 0, req, err
	}
	if err := decodeJSON(r, &req); err != nil {
		return 0, req, err
	}
	return repoID, req, nil
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, &custom_errors.ValidationError{Field: param, Message: "must be a positive integer"}
	}
	return id, nil
}
