package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("EXAMVAULT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("EXAMVAULT_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "examvault_test_" + uuid.NewString()[:8]
	s, err := Open(ctx, uri, dbName)
	if err != nil {
		t.Fatalf("failed to open mongo store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.client.Database(dbName).Drop(context.Background())
		s.Close()
	})
	return s
}

func insertExam(t *testing.T, s *Store, instituteID string) *model.ExamRequest {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	e := &model.ExamRequest{
		ID:              uuid.NewString(),
		InstituteID:     instituteID,
		ExamName:        "Physics",
		TotalQuestions:  4,
		TimeLimit:       model.DefaultTimeLimit,
		StorageEnvelope: `{"iv":"","ciphertext":""}`,
		StorageKey:      "00",
		ContentChecksum: "abc",
		Status:          model.ExamPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.CreateExam(context.Background(), e); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	return e
}

func TestAttemptDocConversion(t *testing.T) {
	a := &model.AttemptRecord{
		ID:        "a1",
		ExamID:    "e1",
		StudentID: "s1",
		Answers:   map[int]int{0: 1, 3: 4},
		Score:     50,
		AnswerAnalysis: []model.AnswerAnalysis{
			{QuestionIndex: 0, StudentAnswer: 1, CorrectAnswer: 1, Correct: true},
			{QuestionIndex: 3, StudentAnswer: 4, CorrectAnswer: 2},
		},
	}
	d := toAttemptDoc(a)
	if d.Answers["3"] != 4 {
		t.Fatalf("expected answer 4 under key \"3\", got %v", d.Answers)
	}
	back, err := d.toModel()
	if err != nil {
		t.Fatalf("toModel: %v", err)
	}
	if back.Answers[0] != 1 || back.Answers[3] != 4 || len(back.Answers) != 2 {
		t.Errorf("answers did not survive conversion: %v", back.Answers)
	}
	if len(back.AnswerAnalysis) != 2 || !back.AnswerAnalysis[0].Correct {
		t.Errorf("analysis did not survive conversion: %+v", back.AnswerAnalysis)
	}

	d.Answers["x"] = 1
	if _, err := d.toModel(); err == nil {
		t.Error("expected error for non-numeric answer key")
	}
}

func TestMongoDecideAndRelease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := insertExam(t, s, "inst-1")

	if _, err := s.ReleaseResults(ctx, e.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict releasing pending exam, got %v", err)
	}

	review := model.Review{
		Status:         model.ExamApproved,
		ReviewedBy:     "admin-1",
		ReviewedAt:     time.Now(),
		PublishAddress: "bafyaddr",
		PublishKey:     "ff",
	}
	if err := s.DecideExam(ctx, e.ID, review); err != nil {
		t.Fatalf("DecideExam: %v", err)
	}
	if err := s.DecideExam(ctx, e.ID, review); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second decision, got %v", err)
	}
	if err := s.DecideExam(ctx, "missing", review); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := s.GetExam(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Status != model.ExamApproved || got.PublishAddress != "bafyaddr" {
		t.Errorf("unexpected exam after approval: %+v", got)
	}

	first, err := s.ReleaseResults(ctx, e.ID)
	if err != nil || !first {
		t.Fatalf("expected first release to win, got %v, %v", first, err)
	}
	second, err := s.ReleaseResults(ctx, e.ID)
	if err != nil || second {
		t.Fatalf("expected second release to be a no-op, got %v, %v", second, err)
	}

	counts, err := s.CountExamsByStatus(ctx)
	if err != nil {
		t.Fatalf("CountExamsByStatus: %v", err)
	}
	if counts[model.ExamApproved] != 1 {
		t.Errorf("expected 1 approved, got %v", counts)
	}
}

func TestMongoAttemptUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := insertExam(t, s, "inst-1")

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.CreateAttempt(ctx, &model.AttemptRecord{
				ID:             fmt.Sprintf("att-%d", i),
				ExamID:         e.ID,
				StudentID:      "student-1",
				Answers:        map[int]int{0: 1},
				TotalQuestions: 4,
				SubmittedAt:    time.Now(),
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrDuplicate):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly 1 attempt to succeed, got %d", ok)
	}

	avail, err := s.ListExams(ctx, model.ExamFilter{NotAttemptedBy: "student-1"})
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(avail) != 0 {
		t.Errorf("expected attempted exam to be filtered out, got %d", len(avail))
	}
	a, err := s.GetAttempt(ctx, e.ID, "student-1")
	if err != nil || a == nil {
		t.Fatalf("GetAttempt: %v, %v", a, err)
	}
}
