// Package exam implements the exam request lifecycle: submission by an
// institute, review by an administrator and release of results.
//
// Status moves only from pending to approved or rejected. Approval re-encrypts
// the question set under a fresh publish key and publishes it before the
// status change is committed with a compare-and-set.
package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
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

// Publisher stores a sealed envelope in the artifact store.
type Publisher interface {
	Publish(ctx context.Context, env *envelope.Envelope) (artifact.Address, error)
}

// Notifier delivers best-effort notifications.
type Notifier interface {
	Notify(ctx context.Context, m notify.Message)
	Fanout(ctx context.Context, msgs []notify.Message) notify.FanoutReport
}

// Service runs exam lifecycle operations.
type Service struct {
	repo      store.Repository
	keys      *keys.Custodian
	publisher Publisher
	notifier  Notifier
	composer  *notify.Composer
	now       func() time.Time
}

// NewService wires a lifecycle service.
func NewService(repo store.Repository, custodian *keys.Custodian, pub Publisher, n Notifier, c *notify.Composer) *Service {
	return &Service{
		repo:      repo,
		keys:      custodian,
		publisher: pub,
		notifier:  n,
		composer:  c,
		now:       time.Now,
	}
}

// SubmitRequest is an institute's exam submission. Questions holds the raw
// JSON or YAML question set.
type SubmitRequest struct {
	ExamName       string     `json:"exam_name"`
	Description    string     `json:"description"`
	TimeLimit      int        `json:"time_limit"`
	AvailableUntil *time.Time `json:"available_until,omitempty"`
	Questions      []byte     `json:"-"`
}

// Decision is an administrator's verdict on a pending exam.
type Decision struct {
	Status       model.ExamStatus `json:"status"`
	AdminComment string           `json:"admin_comment"`
}

// ReleaseReport describes the outcome of ReleaseResults.
type ReleaseReport struct {
	ExamID string `json:"exam_id"`
	// AlreadyReleased is set when results had been released before; no
	// notifications are sent in that case.
	AlreadyReleased bool                `json:"already_released"`
	Attempts        int                 `json:"attempts"`
	Notifications   notify.FanoutReport `json:"notifications"`
}

func requireRole(id model.Identity, role model.UserRole) error {
	if id.Role != role {
		return fmt.Errorf("%w: %s required, got %q", ErrForbidden, role, id.Role)
	}
	return nil
}

// Submit validates, canonicalizes and seals a question set under a fresh
// storage key and records it as a pending exam request.
func (s *Service) Submit(ctx context.Context, institute model.Identity, req SubmitRequest) (*model.ExamRequest, error) {
	if err := requireRole(institute, model.UserRoleInstitute); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	verr := &model.ValidationError{}
	req.ExamName = strings.TrimSpace(req.ExamName)
	if req.ExamName == "" {
		verr.Add(-1, "exam_name", "is required")
	}
	if req.TimeLimit < 0 {
		verr.Add(-1, "time_limit", "must not be negative")
	}
	if req.TimeLimit == 0 {
		req.TimeLimit = model.DefaultTimeLimit
	}
	if req.AvailableUntil != nil && !req.AvailableUntil.After(now) {
		verr.Add(-1, "available_until", "must be in the future")
	}

	set, err := questions.Parse(req.Questions)
	if err != nil {
		var qerr *model.ValidationError
		if !errors.As(err, &qerr) {
			return nil, err
		}
		verr.Problems = append(verr.Problems, qerr.Problems...)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	canonical, err := set.Canonical()
	if err != nil {
		return nil, err
	}
	checksum, err := questions.Checksum(canonical)
	if err != nil {
		return nil, err
	}
	storageKey, err := s.keys.NewKey()
	if err != nil {
		return nil, fmt.Errorf("draw storage key: %w", err)
	}
	env, err := envelope.Seal(canonical, storageKey)
	if err != nil {
		return nil, fmt.Errorf("seal question set: %w", err)
	}

	var availableUntil *time.Time
	if req.AvailableUntil != nil {
		t := req.AvailableUntil.UTC()
		availableUntil = &t
	}
	e := &model.ExamRequest{
		ID:              uuid.NewString(),
		InstituteID:     institute.ID,
		ExamName:        req.ExamName,
		Description:     strings.TrimSpace(req.Description),
		TotalQuestions:  len(set.Questions),
		TimeLimit:       req.TimeLimit,
		AvailableUntil:  availableUntil,
		StorageEnvelope: env.String(),
		StorageKey:      storageKey.String(),
		ContentChecksum: checksum,
		Status:          model.ExamPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateExam(ctx, e); err != nil {
		return nil, fmt.Errorf("create exam request: %w", err)
	}

	metrics.ExamSubmissions.Inc()
	slog.Info("exam submitted", "exam_id", e.ID, "institute_id", e.InstituteID, "questions", e.TotalQuestions)
	return e, nil
}

func (s *Service) getExam(ctx context.Context, id string) (*model.ExamRequest, error) {
	e, err := s.repo.GetExam(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get exam %s: %w", id, err)
	}
	return e, nil
}

// Decide applies an administrator's decision to a pending exam.
//
// On approval the stored question set is opened with the storage key,
// verified against its checksum, sealed under a fresh publish key and
// published. Any failure before the compare-and-set leaves the exam pending.
func (s *Service) Decide(ctx context.Context, examID string, reviewer model.Identity, d Decision) (*model.ExamRequest, error) {
	if err := requireRole(reviewer, model.UserRoleAdmin); err != nil {
		return nil, err
	}
	if d.Status != model.ExamApproved && d.Status != model.ExamRejected {
		return nil, fmt.Errorf("%w: target status %q", ErrInvalidTransition, d.Status)
	}

	e, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.ExamPending {
		return nil, fmt.Errorf("%w: exam %s is %s", ErrInvalidTransition, examID, e.Status)
	}

	review := model.Review{
		Status:       d.Status,
		AdminComment: strings.TrimSpace(d.AdminComment),
		ReviewedBy:   reviewer.ID,
		ReviewedAt:   s.now().UTC(),
	}
	if d.Status == model.ExamApproved {
		addr, publishKey, err := s.publish(ctx, e)
		if err != nil {
			return nil, err
		}
		review.PublishAddress = string(addr)
		review.PublishKey = publishKey.String()
	}

	err = s.repo.DecideExam(ctx, examID, review)
	switch {
	case errors.Is(err, store.ErrConflict):
		if review.PublishAddress != "" {
			slog.Warn("lost approval race, published artifact is orphaned",
				"exam_id", examID, "address", review.PublishAddress)
		}
		return nil, fmt.Errorf("%w: exam %s was decided concurrently", ErrInvalidTransition, examID)
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, examID)
	case err != nil:
		return nil, fmt.Errorf("record decision: %w", err)
	}

	metrics.ExamTransitions.WithLabelValues(string(d.Status)).Inc()
	slog.Info("exam decided", "exam_id", examID, "status", d.Status, "reviewer", reviewer.ID)

	updated := decided(e, review)
	if fresh, err := s.repo.GetExam(ctx, examID); err != nil || fresh == nil {
		slog.Warn("reload decided exam", "exam_id", examID, "error", err)
	} else {
		updated = fresh
	}
	s.notifyInstitute(ctx, updated)
	return updated, nil
}

// decided returns a copy of e with the committed review applied.
func decided(e *model.ExamRequest, r model.Review) *model.ExamRequest {
	out := *e
	reviewedAt := r.ReviewedAt
	out.Status = r.Status
	out.AdminComment = r.AdminComment
	out.ReviewedBy = r.ReviewedBy
	out.ReviewedAt = &reviewedAt
	out.PublishAddress = r.PublishAddress
	out.PublishKey = r.PublishKey
	out.UpdatedAt = reviewedAt
	return &out
}

// publish opens the stored question set, re-seals it under a new publish key
// and stores it in the artifact store.
func (s *Service) publish(ctx context.Context, e *model.ExamRequest) (artifact.Address, keys.Key, error) {
	set, storageKey, err := s.openStored(e)
	if err != nil {
		return "", keys.Key{}, err
	}
	canonical, err := set.Canonical()
	if err != nil {
		return "", keys.Key{}, err
	}
	publishKey, err := s.keys.NewKeyDistinctFrom(storageKey)
	if err != nil {
		return "", keys.Key{}, fmt.Errorf("draw publish key: %w", err)
	}
	env, err := envelope.Seal(canonical, publishKey)
	if err != nil {
		return "", keys.Key{}, fmt.Errorf("seal question set: %w", err)
	}
	addr, err := s.publisher.Publish(ctx, env)
	if err != nil {
		return "", keys.Key{}, fmt.Errorf("publish exam %s: %w", e.ID, err)
	}
	return addr, publishKey, nil
}

// openStored decrypts the storage envelope and checks it against the
// recorded checksum and question count.
func (s *Service) openStored(e *model.ExamRequest) (*questions.Set, keys.Key, error) {
	storageKey, err := keys.ParseKey(e.StorageKey)
	if err != nil {
		return nil, keys.Key{}, fmt.Errorf("%w: storage key: %v", ErrIntegrity, err)
	}
	env, err := envelope.ParseString(e.StorageEnvelope)
	if err != nil {
		return nil, keys.Key{}, fmt.Errorf("open exam %s: %w", e.ID, err)
	}
	var set questions.Set
	if err := envelope.OpenJSON(env, storageKey, &set); err != nil {
		return nil, keys.Key{}, fmt.Errorf("open exam %s: %w", e.ID, err)
	}
	if err := set.Validate(); err != nil {
		return nil, keys.Key{}, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if len(set.Questions) != e.TotalQuestions {
		return nil, keys.Key{}, fmt.Errorf("%w: %d questions stored, %d recorded",
			ErrIntegrity, len(set.Questions), e.TotalQuestions)
	}
	canonical, err := set.Canonical()
	if err != nil {
		return nil, keys.Key{}, err
	}
	sum, err := questions.Checksum(canonical)
	if err != nil {
		return nil, keys.Key{}, err
	}
	if sum != e.ContentChecksum {
		return nil, keys.Key{}, fmt.Errorf("%w: checksum mismatch", ErrIntegrity)
	}
	return &set, storageKey, nil
}

func (s *Service) notifyInstitute(ctx context.Context, e *model.ExamRequest) {
	ctx = context.WithoutCancel(ctx)
	u, err := s.repo.GetUserByID(ctx, e.InstituteID)
	if err != nil || u == nil {
		slog.Warn("cannot notify institute", "exam_id", e.ID, "institute_id", e.InstituteID, "error", err)
		return
	}
	var msg notify.Message
	if e.Status == model.ExamApproved {
		msg = s.composer.ExamApproved(u.Email, e)
	} else {
		msg = s.composer.ExamRejected(u.Email, e)
	}
	s.notifier.Notify(ctx, msg)
}

// ReleaseResults marks an approved exam's results as released and notifies
// every student who attempted it. Releasing twice is a no-op.
func (s *Service) ReleaseResults(ctx context.Context, examID string, requester model.Identity) (*ReleaseReport, error) {
	e, err := s.ownedExam(ctx, examID, requester)
	if err != nil {
		return nil, err
	}
	if e.Status != model.ExamApproved {
		return nil, fmt.Errorf("%w: exam %s is %s", ErrNotApproved, examID, e.Status)
	}

	released, err := s.repo.ReleaseResults(ctx, examID)
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("%w: exam %s", ErrNotApproved, examID)
	}
	if err != nil {
		return nil, fmt.Errorf("release results: %w", err)
	}
	report := &ReleaseReport{ExamID: examID, AlreadyReleased: !released}
	if !released {
		slog.Info("results already released", "exam_id", examID)
		return report, nil
	}

	ctx = context.WithoutCancel(ctx)
	attempts, err := s.repo.ListAttemptsByExam(ctx, examID)
	if err != nil {
		slog.Error("results released but attempts could not be listed", "exam_id", examID, "error", err)
		return report, nil
	}
	report.Attempts = len(attempts)

	msgs := make([]notify.Message, 0, len(attempts))
	for _, a := range attempts {
		var to string
		u, err := s.repo.GetUserByID(ctx, a.StudentID)
		if err != nil {
			slog.Warn("cannot look up student", "student_id", a.StudentID, "error", err)
		} else if u != nil {
			to = u.Email
		}
		msgs = append(msgs, s.composer.ResultsReleased(to, e, a))
	}
	report.Notifications = s.notifier.Fanout(ctx, msgs)
	slog.Info("results released", "exam_id", examID, "attempts", report.Attempts, "notified", report.Notifications.Sent)
	return report, nil
}

func (s *Service) ownedExam(ctx context.Context, examID string, institute model.Identity) (*model.ExamRequest, error) {
	if err := requireRole(institute, model.UserRoleInstitute); err != nil {
		return nil, err
	}
	e, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if e.InstituteID != institute.ID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, examID)
	}
	return e, nil
}
