// Package attempt lets students take an approved exam exactly once and scores
// their answers.
//
// Students only ever receive the sanitized question set. The answer key is
// decrypted inside the service and used for scoring only.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examvault/internal/artifact"
	"github.com/pavelanni/examvault/internal/envelope"
	"github.com/pavelanni/examvault/internal/keys"
	"github.com/pavelanni/examvault/internal/metrics"
	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/notify"
	"github.com/pavelanni/examvault/internal/questions"
	"github.com/pavelanni/examvault/internal/store"
)

// Fetcher retrieves a published envelope.
type Fetcher interface {
	Fetch(ctx context.Context, addr artifact.Address) (*envelope.Envelope, error)
}

// Notifier sends a best-effort notification.
type Notifier interface {
	Notify(ctx context.Context, m notify.Message)
}

// Engine runs student attempts.
type Engine struct {
	repo     store.Repository
	fetcher  Fetcher
	notifier Notifier
	composer *notify.Composer
	now      func() time.Time
}

// NewEngine wires an attempt engine.
func NewEngine(repo store.Repository, f Fetcher, n Notifier, c *notify.Composer) *Engine {
	return &Engine{repo: repo, fetcher: f, notifier: n, composer: c, now: time.Now}
}

func requireStudent(id model.Identity) error {
	if id.Role != model.UserRoleStudent {
		return fmt.Errorf("%w: got %q", ErrForbidden, id.Role)
	}
	return nil
}

// loadApproved returns the exam if it exists and is approved.
func (g *Engine) loadApproved(ctx context.Context, examID string) (*model.ExamRequest, error) {
	e, err := g.repo.GetExam(ctx, examID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, examID)
	}
	if err != nil {
		return nil, fmt.Errorf("get exam %s: %w", examID, err)
	}
	if e.Status != model.ExamApproved || !e.Published() {
		return nil, fmt.Errorf("%w: exam %s is %s", ErrNotApproved, examID, e.Status)
	}
	return e, nil
}

func (g *Engine) checkNotAttempted(ctx context.Context, examID, studentID string) error {
	a, err := g.repo.GetAttempt(ctx, examID, studentID)
	if err != nil {
		return fmt.Errorf("get attempt: %w", err)
	}
	if a != nil {
		return fmt.Errorf("%w: exam %s", ErrAlreadyAttempted, examID)
	}
	return nil
}

// loadQuestions fetches the published envelope and opens it with the publish key.
func (g *Engine) loadQuestions(ctx context.Context, e *model.ExamRequest) (*questions.Set, error) {
	key, err := keys.ParseKey(e.PublishKey)
	if err != nil {
		return nil, fmt.Errorf("%w: publish key: %w", ErrExamUnavailable, err)
	}
	env, err := g.fetcher.Fetch(ctx, artifact.Address(e.PublishAddress))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExamUnavailable, err)
	}
	var set questions.Set
	if err := envelope.OpenJSON(env, key, &set); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExamUnavailable, err)
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExamUnavailable, err)
	}
	if len(set.Questions) != e.TotalQuestions {
		return nil, fmt.Errorf("%w: published %d questions, expected %d",
			ErrExamUnavailable, len(set.Questions), e.TotalQuestions)
	}
	return &set, nil
}

// Start returns the sanitized exam for a student who has not attempted it yet.
// The attempt check happens before the artifact store is contacted.
func (g *Engine) Start(ctx context.Context, examID string, student model.Identity) (*model.SanitizedExam, error) {
	if err := requireStudent(student); err != nil {
		return nil, err
	}
	e, err := g.loadApproved(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := g.checkNotAttempted(ctx, examID, student.ID); err != nil {
		return nil, err
	}
	set, err := g.loadQuestions(ctx, e)
	if err != nil {
		slog.Error("cannot load exam content", "exam_id", examID, "error", err)
		return nil, err
	}

	slog.Info("exam started", "exam_id", examID, "student_id", student.ID)
	return &model.SanitizedExam{
		ExamID:         e.ID,
		ExamName:       e.ExamName,
		Description:    e.Description,
		TimeLimit:      e.TimeLimit,
		TotalQuestions: e.TotalQuestions,
		AvailableUntil: e.AvailableUntil,
		Questions:      set.Sanitize(),
	}, nil
}

func validateAnswers(answers map[int]int, total int) error {
	verr := &model.ValidationError{}
	idx := make([]int, 0, len(answers))
	for i := range answers {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		if i < 0 || i >= total {
			verr.Add(i, "index", fmt.Sprintf("must be between 0 and %d", total-1))
			continue
		}
		if opt := answers[i]; opt < 1 || opt > questions.OptionCount {
			verr.Add(i, "answer", fmt.Sprintf("must be between 1 and %d, got %d", questions.OptionCount, opt))
		}
	}
	return verr.OrNil()
}

// Submit scores a student's answers and records the attempt. A student gets
// exactly one attempt per exam, enforced by the store's uniqueness constraint.
func (g *Engine) Submit(ctx context.Context, examID string, student model.Identity, answers map[int]int) (*model.AttemptRecord, error) {
	if err := requireStudent(student); err != nil {
		return nil, err
	}
	e, err := g.loadApproved(ctx, examID)
	if err != nil {
		return nil, err
	}
	now := g.now().UTC()
	if e.AvailableUntil != nil && now.After(*e.AvailableUntil) {
		metrics.Attempts.WithLabelValues("window_closed").Inc()
		return nil, fmt.Errorf("%w: exam %s closed at %s", ErrSubmissionWindowClosed, examID, e.AvailableUntil.Format(time.RFC3339))
	}
	if err := g.checkNotAttempted(ctx, examID, student.ID); err != nil {
		metrics.Attempts.WithLabelValues("duplicate").Inc()
		return nil, err
	}
	if err := validateAnswers(answers, e.TotalQuestions); err != nil {
		metrics.Attempts.WithLabelValues("invalid").Inc()
		return nil, err
	}
	set, err := g.loadQuestions(ctx, e)
	if err != nil {
		slog.Error("cannot load exam content", "exam_id", examID, "error", err)
		metrics.Attempts.WithLabelValues("unavailable").Inc()
		return nil, err
	}

	res := Score(set.Questions, answers)
	rec := &model.AttemptRecord{
		ID:             uuid.NewString(),
		ExamID:         examID,
		StudentID:      student.ID,
		Answers:        answers,
		Score:          res.Score,
		CorrectAnswers: res.CorrectAnswers,
		TotalQuestions: res.TotalQuestions,
		AnswerAnalysis: res.AnswerAnalysis,
		SubmittedAt:    now,
	}
	if err := g.repo.CreateAttempt(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.Attempts.WithLabelValues("duplicate").Inc()
			return nil, fmt.Errorf("%w: exam %s", ErrAlreadyAttempted, examID)
		}
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	metrics.Attempts.WithLabelValues("accepted").Inc()
	slog.Info("attempt recorded", "exam_id", examID, "student_id", student.ID,
		"correct", rec.CorrectAnswers, "total", rec.TotalQuestions)
	g.notifyReceipt(ctx, e, rec)
	return rec, nil
}

func (g *Engine) notifyReceipt(ctx context.Context, e *model.ExamRequest, rec *model.AttemptRecord) {
	ctx = context.WithoutCancel(ctx)
	u, err := g.repo.GetUserByID(ctx, rec.StudentID)
	if err != nil || u == nil {
		slog.Warn("cannot notify student", "student_id", rec.StudentID, "error", err)
		return
	}
	g.notifier.Notify(ctx, g.composer.AttemptReceived(u.Email, e, rec))
}

// AvailableExams lists approved exams the student has not attempted yet.
func (g *Engine) AvailableExams(ctx context.Context, student model.Identity) ([]model.ExamRequest, error) {
	if err := requireStudent(student); err != nil {
		return nil, err
	}
	return g.repo.ListExams(ctx, model.ExamFilter{
		Status:         model.ExamApproved,
		NotAttemptedBy: student.ID,
	})
}

// MyResults lists the student's attempts, newest first. Answer analysis is
// included only once the exam's results have been released.
func (g *Engine) MyResults(ctx context.Context, student model.Identity) ([]model.MyResult, error) {
	if err := requireStudent(student); err != nil {
		return nil, err
	}
	attempts, err := g.repo.ListAttemptsByStudent(ctx, student.ID)
	if err != nil {
		return nil, err
	}

	results := make([]model.MyResult, 0, len(attempts))
	for _, a := range attempts {
		r := model.MyResult{
			ExamID:         a.ExamID,
			Score:          a.Score,
			CorrectAnswers: a.CorrectAnswers,
			TotalQuestions: a.TotalQuestions,
			SubmittedAt:    a.SubmittedAt,
		}
		e, err := g.repo.GetExam(ctx, a.ExamID)
		switch {
		case err == nil:
			r.ExamName = e.ExamName
			r.ResultsReleased = e.ResultsReleased
		case errors.Is(err, store.ErrNotFound):
			r.ExamName = "N/A"
		default:
			return nil, err
		}
		if r.ResultsReleased {
			r.AnswerAnalysis = a.AnswerAnalysis
		}
		results = append(results, r)
	}
	return results, nil
}
