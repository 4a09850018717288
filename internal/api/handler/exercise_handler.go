package handler

import (
	"encoding/json"
	"net/http"

	"gradex/internal/api/middleware"
	"gradex/internal/app/service"
	"gradex/internal/common"

	"github.com/go-chi/chi/v5"
)

// ExerciseHandler receives exercise metadata from the content pipeline.
type ExerciseHandler struct {
	exerciseService *service.ExerciseService
}

func NewExerciseHandler(es *service.ExerciseService) *ExerciseHandler {
	return &ExerciseHandler{exerciseService: es}
}

func (h *ExerciseHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.With(middleware.AdminOnly).Put("/", h.ingest)
}

func (h *ExerciseHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req service.IngestExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	exercise, err := h.exerciseService.IngestExercise(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, exercise)
}
