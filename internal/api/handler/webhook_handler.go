package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"gradex/internal/app/service"
	"gradex/internal/common"
	"gradex/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

// WebhookHandler accepts verdicts pushed back by runner deployments that
// report over HTTP instead of returning inline to a worker.
type WebhookHandler struct {
	submissionService *service.SubmissionService
}

func NewWebhookHandler(ss *service.SubmissionService) *WebhookHandler {
	return &WebhookHandler{submissionService: ss}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	// This endpoint should be secured, e.g., with a shared secret in a header
	// or by checking the source IP of the runner.
	r.Post("/verdict", h.handleVerdict)
}

type verdictPayload struct {
	SubmissionID int64 `json:"submission_id"`
	model.Verdict
}

func (h *WebhookHandler) handleVerdict(w http.ResponseWriter, r *http.Request) {
	var payload verdictPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("ERROR: Webhook: invalid payload: %v", err)
		common.RespondWithError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	defer r.Body.Close()

	if err := h.submissionService.ApplyVerdict(r.Context(), payload.SubmissionID, &payload.Verdict); err != nil {
		log.Printf("ERROR: Webhook: failed to apply verdict for submission %d: %v", payload.SubmissionID, err)
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Verdict applied"})
}
