package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/examvault/internal/model"
)

const attemptColumns = `id, exam_id, student_id, answers, score, correct_answers, total_questions,
	answer_analysis, submitted_at`

// CreateAttempt records a scored attempt. The (exam_id, student_id) uniqueness
// constraint turns a second attempt into ErrDuplicate.
func (s *Store) CreateAttempt(ctx context.Context, a *model.AttemptRecord) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	analysis, err := json.Marshal(a.AnswerAnalysis)
	if err != nil {
		return fmt.Errorf("marshal answer analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO attempts (`+attemptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.ExamID, a.StudentID, string(answers), a.Score, a.CorrectAnswers, a.TotalQuestions,
		string(analysis), a.SubmittedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		slog.Error("failed to create attempt", "exam_id", a.ExamID, "student_id", a.StudentID, "error", err)
		return err
	}
	return nil
}

func scanAttempt(row interface{ Scan(...any) error }) (*model.AttemptRecord, error) {
	var (
		a                 model.AttemptRecord
		answers, analysis string
	)
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &answers, &a.Score, &a.CorrectAnswers, &a.TotalQuestions,
		&analysis, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of attempt %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(analysis), &a.AnswerAnalysis); err != nil {
		return nil, fmt.Errorf("decode analysis of attempt %s: %w", a.ID, err)
	}
	return &a, nil
}

// GetAttempt returns the student's attempt for an exam, or nil if none.
func (s *Store) GetAttempt(ctx context.Context, examID, studentID string) (*model.AttemptRecord, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, s.q(
		`SELECT `+attemptColumns+` FROM attempts WHERE exam_id = ? AND student_id = ?`), examID, studentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAttemptsByExam returns all attempts for an exam in submission order.
func (s *Store) ListAttemptsByExam(ctx context.Context, examID string) ([]model.AttemptRecord, error) {
	return s.listAttempts(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE exam_id = ? ORDER BY submitted_at, id`, examID)
}

// ListAttemptsByStudent returns all attempts of a student, newest first.
func (s *Store) ListAttemptsByStudent(ctx context.Context, studentID string) ([]model.AttemptRecord, error) {
	return s.listAttempts(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE student_id = ? ORDER BY submitted_at DESC, id`, studentID)
}

func (s *Store) listAttempts(ctx context.Context, query string, arg string) ([]model.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.AttemptRecord
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
