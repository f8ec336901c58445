package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type submitAnswersRequest struct {
	// Answers maps zero-based question index to the chosen 1-based option.
	Answers map[int]int `json:"answers"`
}

type submitAnswersResponse struct {
	AttemptID      string  `json:"attempt_id"`
	ExamID         string  `json:"exam_id"`
	Score          float64 `json:"score"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
	Message        string  `json:"message"`
}

func (h *Handler) handleAvailableExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.attempts.AvailableExams(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(exams))
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	e, err := h.attempts.Start(r.Context(), chi.URLParam(r, "id"), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleSubmitExam returns the score but never the answer analysis; that is
// shown through my-results once the institute releases results.
func (h *Handler) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	var req submitAnswersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.attempts.Submit(r.Context(), chi.URLParam(r, "id"), identity(r), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitAnswersResponse{
		AttemptID:      rec.ID,
		ExamID:         rec.ExamID,
		Score:          rec.Score,
		CorrectAnswers: rec.CorrectAnswers,
		TotalQuestions: rec.TotalQuestions,
		Message:        "Exam submitted successfully",
	})
}

func (h *Handler) handleMyResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.attempts.MyResults(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(results))
}

func (h *Handler) handleExamResults(w http.ResponseWriter, r *http.Request) {
	export, err := h.exams.ExamResults(r.Context(), chi.URLParam(r, "id"), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (h *Handler) handleReleaseResults(w http.ResponseWriter, r *http.Request) {
	report, err := h.exams.ReleaseResults(r.Context(), chi.URLParam(r, "id"), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
