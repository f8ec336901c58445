package exam

import (
	"context"
	"fmt"

	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/store"
)

// MyUploads lists the institute's own exam requests, newest first.
func (s *Service) MyUploads(ctx context.Context, institute model.Identity) ([]model.ExamRequest, error) {
	if err := requireRole(institute, model.UserRoleInstitute); err != nil {
		return nil, err
	}
	return s.repo.ListExams(ctx, model.ExamFilter{InstituteID: institute.ID})
}

// UploadDetails returns one of the institute's exam requests.
func (s *Service) UploadDetails(ctx context.Context, examID string, institute model.Identity) (*model.ExamRequest, error) {
	return s.ownedExam(ctx, examID, institute)
}

// ListRequests lists exam requests for review. An empty status lists all.
func (s *Service) ListRequests(ctx context.Context, admin model.Identity, status model.ExamStatus) ([]model.ExamRequest, error) {
	if err := requireRole(admin, model.UserRoleAdmin); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, model.NewValidationError(-1, "status", fmt.Sprintf("unknown status %q", status))
	}
	return s.repo.ListExams(ctx, model.ExamFilter{Status: status})
}

// RequestDetails returns any exam request to an administrator.
func (s *Service) RequestDetails(ctx context.Context, admin model.Identity, examID string) (*model.ExamRequest, error) {
	if err := requireRole(admin, model.UserRoleAdmin); err != nil {
		return nil, err
	}
	return s.getExam(ctx, examID)
}

// DashboardStats counts exam requests per status.
func (s *Service) DashboardStats(ctx context.Context, admin model.Identity) (*model.DashboardStats, error) {
	if err := requireRole(admin, model.UserRoleAdmin); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountExamsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &model.DashboardStats{
		Pending:  counts[model.ExamPending],
		Approved: counts[model.ExamApproved],
		Rejected: counts[model.ExamRejected],
	}
	stats.Total = stats.Pending + stats.Approved + stats.Rejected
	return stats, nil
}

// ExamResults returns every attempt of an exam with answer analysis to its owner.
func (s *Service) ExamResults(ctx context.Context, examID string, institute model.Identity) (*model.ExamExport, error) {
	if _, err := s.ownedExam(ctx, examID, institute); err != nil {
		return nil, err
	}
	return store.ExportExam(ctx, s.repo, examID, true)
}
