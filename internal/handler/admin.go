package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examvault/internal/exam"
	"github.com/pavelanni/examvault/internal/model"
)

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	status := model.ExamStatus(r.URL.Query().Get("status"))
	exams, err := h.exams.ListRequests(r.Context(), identity(r), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(exams))
}

func (h *Handler) handleRequestDetails(w http.ResponseWriter, r *http.Request) {
	e, err := h.exams.RequestDetails(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	var d exam.Decision
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.exams.Decide(r.Context(), chi.URLParam(r, "id"), identity(r), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.exams.DashboardStats(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
