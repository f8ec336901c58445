package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/examvault/internal/artifact"
	"github.com/pavelanni/examvault/internal/attempt"
	"github.com/pavelanni/examvault/internal/envelope"
	"github.com/pavelanni/examvault/internal/exam"
	appI18n "github.com/pavelanni/examvault/internal/i18n"
	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/store"
)

var (
	errBadRequest         = errors.New("bad request")
	errUnauthorized       = errors.New("unauthorized")
	errInvalidCredentials = errors.New("invalid credentials")
	errForbidden          = errors.New("forbidden")
	errRateLimited        = errors.New("rate limited")
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error    string          `json:"error"`
	Code     string          `json:"code"`
	Problems []model.Problem `json:"problems,omitempty"`
}

// classify maps an error to an HTTP status and a message ID that doubles as
// the machine-readable code.
func classify(err error) (int, string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "ErrValidation"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "ErrBadRequest"
	case errors.Is(err, errInvalidCredentials):
		return http.StatusUnauthorized, "ErrInvalidCredentials"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "ErrUnauthorized"
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, "ErrRateLimited"
	case errors.Is(err, errForbidden), errors.Is(err, exam.ErrForbidden), errors.Is(err, attempt.ErrForbidden),
		errors.Is(err, exam.ErrNotOwner):
		return http.StatusForbidden, "ErrForbidden"
	case errors.Is(err, exam.ErrNotFound), errors.Is(err, attempt.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "ErrNotFound"
	case errors.Is(err, exam.ErrInvalidTransition):
		return http.StatusConflict, "ErrInvalidTransition"
	case errors.Is(err, exam.ErrNotApproved), errors.Is(err, attempt.ErrNotApproved):
		return http.StatusConflict, "ErrNotApproved"
	case errors.Is(err, attempt.ErrAlreadyAttempted):
		return http.StatusConflict, "ErrAlreadyAttempted"
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "ErrConflict"
	case errors.Is(err, attempt.ErrSubmissionWindowClosed):
		return http.StatusGone, "ErrWindowClosed"
	case errors.Is(err, attempt.ErrExamUnavailable):
		return http.StatusBadGateway, "ErrExamUnavailable"
	case isStoreError(err):
		return http.StatusBadGateway, "ErrArtifactStore"
	case envelope.IsMalformed(err), envelope.IsKeyMismatch(err), errors.Is(err, exam.ErrIntegrity):
		return http.StatusInternalServerError, "ErrDecryption"
	}
	return http.StatusInternalServerError, "ErrInternal"
}

func isStoreError(err error) bool {
	return artifact.IsUnreachable(err) || artifact.IsNotFound(err) || artifact.IsMalformedResponse(err)
}

// writeError logs server-side failures and writes a localized error body.
// Internal error text never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: appI18n.T(r.Context(), code), Code: code}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		resp.Problems = verr.Problems
	}

	switch {
	case status >= 500:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	case errors.Is(err, context.Canceled):
		slog.Debug("request canceled", "path", r.URL.Path)
	default:
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, status, resp)
}
