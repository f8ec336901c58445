package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examvault/internal/model"
)

const examColumns = `id, institute_id, exam_name, description, total_questions, time_limit,
	available_until, storage_envelope, storage_key, content_checksum, publish_key, publish_address,
	status, admin_comment, reviewed_by, reviewed_at, results_released, created_at, updated_at`

// CreateExam inserts a new exam request.
func (s *Store) CreateExam(ctx context.Context, e *model.ExamRequest) error {
	var availableUntil sql.NullTime
	if e.AvailableUntil != nil {
		availableUntil = sql.NullTime{Time: e.AvailableUntil.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO exam_requests (`+examColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.InstituteID, e.ExamName, e.Description, e.TotalQuestions, e.TimeLimit,
		availableUntil, e.StorageEnvelope, e.StorageKey, e.ContentChecksum,
		nullString(e.PublishKey), nullString(e.PublishAddress),
		e.Status, e.AdminComment, nullString(e.ReviewedBy), sql.NullTime{},
		e.ResultsReleased, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		slog.Error("failed to create exam request", "id", e.ID, "error", err)
		return err
	}
	return nil
}

func scanExam(row interface{ Scan(...any) error }) (*model.ExamRequest, error) {
	var (
		e                                   model.ExamRequest
		availableUntil, reviewedAt          sql.NullTime
		publishKey, publishAddr, reviewedBy sql.NullString
	)
	err := row.Scan(&e.ID, &e.InstituteID, &e.ExamName, &e.Description, &e.TotalQuestions, &e.TimeLimit,
		&availableUntil, &e.StorageEnvelope, &e.StorageKey, &e.ContentChecksum, &publishKey, &publishAddr,
		&e.Status, &e.AdminComment, &reviewedBy, &reviewedAt, &e.ResultsReleased, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if availableUntil.Valid {
		t := availableUntil.Time
		e.AvailableUntil = &t
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		e.ReviewedAt = &t
	}
	e.PublishKey = publishKey.String
	e.PublishAddress = publishAddr.String
	e.ReviewedBy = reviewedBy.String
	return &e, nil
}

// GetExam returns an exam request by ID, or ErrNotFound.
func (s *Store) GetExam(ctx context.Context, id string) (*model.ExamRequest, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx, s.q(
		`SELECT `+examColumns+` FROM exam_requests WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListExams returns exam requests matching the filter, newest first.
func (s *Store) ListExams(ctx context.Context, f model.ExamFilter) ([]model.ExamRequest, error) {
	query := `SELECT ` + examColumns + ` FROM exam_requests e WHERE 1=1`
	var args []any
	if f.InstituteID != "" {
		query += ` AND institute_id = ?`
		args = append(args, f.InstituteID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.NotAttemptedBy != "" {
		query += ` AND NOT EXISTS (SELECT 1 FROM attempts a WHERE a.exam_id = e.id AND a.student_id = ?)`
		args = append(args, f.NotAttemptedBy)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.ExamRequest
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// CountExamsByStatus returns the number of exam requests per status.
func (s *Store) CountExamsByStatus(ctx context.Context) (map[model.ExamStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM exam_requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[model.ExamStatus]int)
	for rows.Next() {
		var status model.ExamStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DecideExam applies a review to a pending exam with a compare-and-set on status.
func (s *Store) DecideExam(ctx context.Context, id string, r model.Review) error {
	var publishKey, publishAddr sql.NullString
	switch r.Status {
	case model.ExamApproved:
		if r.PublishAddress == "" || r.PublishKey == "" {
			return fmt.Errorf("approval requires publish address and key")
		}
		publishKey, publishAddr = nullString(r.PublishKey), nullString(r.PublishAddress)
	case model.ExamRejected:
	default:
		return fmt.Errorf("invalid review status %q", r.Status)
	}

	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE exam_requests
		 SET status = ?, admin_comment = ?, reviewed_by = ?, reviewed_at = ?,
		     publish_key = ?, publish_address = ?, updated_at = ?
		 WHERE id = ? AND status = ?`),
		r.Status, r.AdminComment, nullString(r.ReviewedBy), r.ReviewedAt.UTC(),
		publishKey, publishAddr, time.Now().UTC(),
		id, model.ExamPending,
	)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, id)
}

// ReleaseResults sets results_released on an approved exam exactly once.
func (s *Store) ReleaseResults(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE exam_requests SET results_released = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND results_released = ?`),
		true, time.Now().UTC(), id, model.ExamApproved, false,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	e, err := s.GetExam(ctx, id)
	if err != nil {
		return false, err
	}
	if e.Status != model.ExamApproved {
		return false, ErrConflict
	}
	return false, nil
}

// checkAffected turns a zero-row conditional update into ErrNotFound or ErrConflict.
func (s *Store) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetExam(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}
