package handler

import (
	"net/http"
	"strconv"
	"time"

	"gradex/internal/api/middleware"
	"gradex/internal/app/service"
	"gradex/internal/common"

	"github.com/go-chi/chi/v5"
)

type StatsHandler struct {
	aggregateService *service.AggregateService
}

func NewStatsHandler(as *service.AggregateService) *StatsHandler {
	return &StatsHandler{aggregateService: as}
}

func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/punchcard", h.matrix(service.MatrixPunchcard))
	r.Get("/heatmap", h.matrix(service.MatrixHeatmap))
	r.Get("/violin", h.matrix(service.MatrixViolin))
	r.Get("/stacked-status", h.matrix(service.MatrixStackedStatus))
	r.Get("/timeseries", h.matrix(service.MatrixTimeseries))
	r.Get("/cumulative-timeseries", h.matrix(service.MatrixCumulativeTimeseries))
}

// matrixOptions reads the scoping query parameters shared by every matrix
// endpoint: course, user, timezone, and the optional from/until window.
func matrixOptions(r *http.Request) (service.MatrixOptions, error) {
	var opts service.MatrixOptions
	if raw := r.URL.Query().Get("course"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return opts, common.Errorf("invalid course id %q: %w", raw, common.ErrBadRequest)
		}
		opts.CourseID = &id
	}
	if raw := r.URL.Query().Get("user"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return opts, common.Errorf("invalid user id %q: %w", raw, common.ErrBadRequest)
		}
		opts.UserID = &id
	}
	if raw := r.URL.Query().Get("timezone"); raw != "" {
		loc, err := time.LoadLocation(raw)
		if err != nil {
			return opts, common.Errorf("invalid timezone %q: %w", raw, common.ErrBadRequest)
		}
		opts.Timezone = loc
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, common.Errorf("invalid from timestamp %q: %w", raw, common.ErrBadRequest)
		}
		opts.CreatedAfter = &ts
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, common.Errorf("invalid until timestamp %q: %w", raw, common.ErrBadRequest)
		}
		opts.CreatedBefore = &ts
	}
	return opts, nil
}

func (h *StatsHandler) matrix(kind service.MatrixKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := matrixOptions(r)
		if err != nil {
			common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
			return
		}
		entry, err := h.aggregateService.Matrix(r.Context(), kind, opts)
		if err != nil {
			common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
			return
		}
		common.RespondWithJSON(w, http.StatusOK, entry)
	}
}
