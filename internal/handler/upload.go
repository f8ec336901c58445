package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examvault/internal/exam"
	"github.com/pavelanni/examvault/internal/model"
)

// uploadFileField is the multipart field carrying the question set.
const uploadFileField = "file"

// jsonSubmitRequest is the application/json form of an upload. Questions is
// the question set document itself.
type jsonSubmitRequest struct {
	ExamName       string          `json:"exam_name"`
	Description    string          `json:"description"`
	TimeLimit      int             `json:"time_limit"`
	AvailableUntil *time.Time      `json:"available_until,omitempty"`
	Questions      json.RawMessage `json:"questions"`
}

// parseSubmitRequest accepts either a multipart form with a question set file
// (JSON or YAML) or a JSON body with the question set inline.
func parseSubmitRequest(r *http.Request) (exam.SubmitRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body jsonSubmitRequest
		if err := decodeJSON(r, &body); err != nil {
			return exam.SubmitRequest{}, err
		}
		return exam.SubmitRequest{
			ExamName:       body.ExamName,
			Description:    body.Description,
			TimeLimit:      body.TimeLimit,
			AvailableUntil: body.AvailableUntil,
			Questions:      body.Questions,
		}, nil
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return exam.SubmitRequest{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	req := exam.SubmitRequest{
		ExamName:    strings.TrimSpace(r.FormValue("exam_name")),
		Description: r.FormValue("description"),
	}

	verr := &model.ValidationError{}
	if v := r.FormValue("time_limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			verr.Add(-1, "time_limit", "must be a whole number of minutes")
		}
		req.TimeLimit = n
	}
	if v := r.FormValue("available_until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			verr.Add(-1, "available_until", "must be an RFC 3339 timestamp")
		} else {
			req.AvailableUntil = &t
		}
	}

	file, _, err := r.FormFile(uploadFileField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		verr.Add(-1, uploadFileField, "no file uploaded")
	case err != nil:
		return req, fmt.Errorf("%w: %w", errBadRequest, err)
	default:
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
		if err != nil {
			return req, fmt.Errorf("%w: read upload: %w", errBadRequest, err)
		}
		req.Questions = data
	}
	return req, verr.OrNil()
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	req, err := parseSubmitRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.exams.Submit(r.Context(), identity(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleMyUploads(w http.ResponseWriter, r *http.Request) {
	exams, err := h.exams.MyUploads(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(exams))
}

func (h *Handler) handleUploadDetails(w http.ResponseWriter, r *http.Request) {
	e, err := h.exams.UploadDetails(r.Context(), chi.URLParam(r, "id"), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// nonNil makes empty listings encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
