package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gradex/internal/api/middleware"
	"gradex/internal/app/service"
	"gradex/internal/common"
	"gradex/internal/domain/model"
	"gradex/internal/platform/queue"

	"github.com/go-chi/chi/v5"
)

type SubmissionHandler struct {
	submissionService *service.SubmissionService
	projectionService *service.ProjectionService
}

func NewSubmissionHandler(ss *service.SubmissionService, ps *service.ProjectionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss, projectionService: ps}
}

func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator) // All submission routes require auth
	r.Post("/", h.createSubmission)
	r.Get("/{submissionID}", h.getSubmission)
	r.With(middleware.AdminOnly).Post("/{submissionID}/rejudge", h.rejudge)
	r.With(middleware.AdminOnly).Post("/rejudge", h.bulkRejudge)
}

type createSubmissionPayload struct {
	ExerciseID int64  `json:"exercise_id"`
	CourseID   *int64 `json:"course_id,omitempty"`
	Code       string `json:"code"`
}

func (h *SubmissionHandler) createSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var payload createSubmissionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	// The rate-limit bypass is reserved for system-initiated creation and is
	// never reachable from this endpoint.
	submission, err := h.submissionService.CreateSubmission(r.Context(), service.CreateSubmissionRequest{
		UserID:     userID,
		ExerciseID: payload.ExerciseID,
		CourseID:   payload.CourseID,
		Code:       payload.Code,
		Evaluate:   true,
	})
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, submission) // 202: evaluation is async
}

type submissionView struct {
	*model.Submission
	Verdict *model.Verdict `json:"verdict,omitempty"`
}

func (h *SubmissionHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "submissionID"), 10, 64)
	if err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid submission id")
		return
	}

	submission, err := h.submissionService.GetSubmission(r.Context(), id)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetUserRoleFromContext(r.Context())
	if role != model.RoleAdmin && role != model.RoleStaff && submission.UserID != userID {
		common.RespondWithError(w, http.StatusForbidden, "Not your submission")
		return
	}

	verdict, err := h.submissionService.ReadVerdict(r.Context(), submission)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	// The owner sees the full tree, like an administrator would.
	if submission.UserID != userID {
		verdict = h.projectionService.Project(verdict, role)
	}

	common.RespondWithJSON(w, http.StatusOK, submissionView{Submission: submission, Verdict: verdict})
}

func (h *SubmissionHandler) rejudge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "submissionID"), 10, 64)
	if err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid submission id")
		return
	}
	if err := h.submissionService.Rejudge(r.Context(), id, queue.LaneHigh); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Rejudge scheduled"})
}

type bulkRejudgePayload struct {
	SubmissionIDs []int64 `json:"submission_ids"`
}

func (h *SubmissionHandler) bulkRejudge(w http.ResponseWriter, r *http.Request) {
	var payload bulkRejudgePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.submissionService.BulkRejudge(r.Context(), payload.SubmissionIDs); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "Bulk rejudge scheduled",
		"count":   len(payload.SubmissionIDs),
	})
}
