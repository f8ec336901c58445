package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/examvault/internal/model"
)

// ExportExam builds export-ready results for one exam from any Repository.
// Answer analysis is included only when includeAnalysis is set.
func ExportExam(ctx context.Context, r Repository, examID string, includeAnalysis bool) (*model.ExamExport, error) {
	exam, err := r.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam %s: %w", examID, err)
	}

	attempts, err := r.ListAttemptsByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	results := make([]model.StudentResult, 0, len(attempts))
	for _, a := range attempts {
		user, err := r.GetUserByID(ctx, a.StudentID)
		if err != nil {
			return nil, fmt.Errorf("get user %s: %w", a.StudentID, err)
		}

		var email, name string
		if user != nil {
			email = user.Email
			name = user.Name
		}

		sr := model.StudentResult{
			StudentID:      a.StudentID,
			Email:          email,
			Name:           name,
			Score:          a.Score,
			CorrectAnswers: a.CorrectAnswers,
			TotalQuestions: a.TotalQuestions,
			SubmittedAt:    a.SubmittedAt,
		}
		if includeAnalysis {
			sr.AnswerAnalysis = a.AnswerAnalysis
		}
		results = append(results, sr)
	}

	return &model.ExamExport{
		ExamID:          exam.ID,
		ExamName:        exam.ExamName,
		InstituteID:     exam.InstituteID,
		Status:          exam.Status,
		ResultsReleased: exam.ResultsReleased,
		TotalQuestions:  exam.TotalQuestions,
		PublishAddress:  exam.PublishAddress,
		Results:         results,
	}, nil
}
