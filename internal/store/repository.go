package store

import (
	"context"

	"github.com/pavelanni/examvault/internal/model"
)

// Repository is the persistence contract shared by the SQL and MongoDB stores.
//
// Optional lookups (users, attempts) return nil, nil when nothing matches.
// Exam lookups return ErrNotFound.
type Repository interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UserCount(ctx context.Context) (int, error)

	CreateExam(ctx context.Context, e *model.ExamRequest) error
	GetExam(ctx context.Context, id string) (*model.ExamRequest, error)
	ListExams(ctx context.Context, f model.ExamFilter) ([]model.ExamRequest, error)
	CountExamsByStatus(ctx context.Context) (map[model.ExamStatus]int, error)
	// DecideExam moves a pending exam to r.Status. It returns ErrConflict when
	// the exam is no longer pending.
	DecideExam(ctx context.Context, id string, r model.Review) error
	// ReleaseResults flips ResultsReleased on an approved exam. It reports
	// false when the flag was already set and ErrConflict when the exam is not approved.
	ReleaseResults(ctx context.Context, id string) (bool, error)

	// CreateAttempt returns ErrDuplicate when the student already has an attempt.
	CreateAttempt(ctx context.Context, a *model.AttemptRecord) error
	GetAttempt(ctx context.Context, examID, studentID string) (*model.AttemptRecord, error)
	ListAttemptsByExam(ctx context.Context, examID string) ([]model.AttemptRecord, error)
	ListAttemptsByStudent(ctx context.Context, studentID string) ([]model.AttemptRecord, error)

	Close() error
}

var _ Repository = (*Store)(nil)
