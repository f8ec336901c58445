package mongostore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pavelanni/examvault/internal/model"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	Active       bool      `bson:"active"`
	CreatedAt    time.Time `bson:"created_at"`
}

func toUserDoc(u model.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Active:       u.Active,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func (d userDoc) toModel() model.User {
	return model.User{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		Role:         model.UserRole(d.Role),
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
	}
}

type examDoc struct {
	ID              string     `bson:"_id"`
	InstituteID     string     `bson:"institute_id"`
	ExamName        string     `bson:"exam_name"`
	Description     string     `bson:"description"`
	TotalQuestions  int        `bson:"total_questions"`
	TimeLimit       int        `bson:"time_limit"`
	AvailableUntil  *time.Time `bson:"available_until,omitempty"`
	StorageEnvelope string     `bson:"storage_envelope"`
	StorageKey      string     `bson:"storage_key"`
	ContentChecksum string     `bson:"content_checksum"`
	PublishKey      string     `bson:"publish_key,omitempty"`
	PublishAddress  string     `bson:"publish_address,omitempty"`
	Status          string     `bson:"status"`
	AdminComment    string     `bson:"admin_comment"`
	ReviewedBy      string     `bson:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `bson:"reviewed_at,omitempty"`
	ResultsReleased bool       `bson:"results_released"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

func toExamDoc(e *model.ExamRequest) examDoc {
	return examDoc{
		ID:              e.ID,
		InstituteID:     e.InstituteID,
		ExamName:        e.ExamName,
		Description:     e.Description,
		TotalQuestions:  e.TotalQuestions,
		TimeLimit:       e.TimeLimit,
		AvailableUntil:  e.AvailableUntil,
		StorageEnvelope: e.StorageEnvelope,
		StorageKey:      e.StorageKey,
		ContentChecksum: e.ContentChecksum,
		PublishKey:      e.PublishKey,
		PublishAddress:  e.PublishAddress,
		Status:          string(e.Status),
		AdminComment:    e.AdminComment,
		ReviewedBy:      e.ReviewedBy,
		ReviewedAt:      e.ReviewedAt,
		ResultsReleased: e.ResultsReleased,
		CreatedAt:       e.CreatedAt.UTC(),
		UpdatedAt:       e.UpdatedAt.UTC(),
	}
}

func (d examDoc) toModel() model.ExamRequest {
	return model.ExamRequest{
		ID:              d.ID,
		InstituteID:     d.InstituteID,
		ExamName:        d.ExamName,
		Description:     d.Description,
		TotalQuestions:  d.TotalQuestions,
		TimeLimit:       d.TimeLimit,
		AvailableUntil:  d.AvailableUntil,
		StorageEnvelope: d.StorageEnvelope,
		StorageKey:      d.StorageKey,
		ContentChecksum: d.ContentChecksum,
		PublishKey:      d.PublishKey,
		PublishAddress:  d.PublishAddress,
		Status:          model.ExamStatus(d.Status),
		AdminComment:    d.AdminComment,
		ReviewedBy:      d.ReviewedBy,
		ReviewedAt:      d.ReviewedAt,
		ResultsReleased: d.ResultsReleased,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type analysisDoc struct {
	QuestionIndex int    `bson:"question_index"`
	QuestionID    string `bson:"question_id,omitempty"`
	StudentAnswer int    `bson:"student_answer"`
	CorrectAnswer int    `bson:"correct_answer"`
	Correct       bool   `bson:"correct"`
}

type attemptDoc struct {
	ID             string         `bson:"_id"`
	ExamID         string         `bson:"exam_id"`
	StudentID      string         `bson:"student_id"`
	Answers        map[string]int `bson:"answers"`
	Score          float64        `bson:"score"`
	CorrectAnswers int            `bson:"correct_answers"`
	TotalQuestions int            `bson:"total_questions"`
	AnswerAnalysis []analysisDoc  `bson:"answer_analysis"`
	SubmittedAt    time.Time      `bson:"submitted_at"`
}

// BSON document keys must be strings, so answers are keyed by the decimal question index.
func toAttemptDoc(a *model.AttemptRecord) attemptDoc {
	answers := make(map[string]int, len(a.Answers))
	for idx, opt := range a.Answers {
		answers[strconv.Itoa(idx)] = opt
	}
	analysis := make([]analysisDoc, len(a.AnswerAnalysis))
	for i, an := range a.AnswerAnalysis {
		analysis[i] = analysisDoc(an)
	}
	return attemptDoc{
		ID:             a.ID,
		ExamID:         a.ExamID,
		StudentID:      a.StudentID,
		Answers:        answers,
		Score:          a.Score,
		CorrectAnswers: a.CorrectAnswers,
		TotalQuestions: a.TotalQuestions,
		AnswerAnalysis: analysis,
		SubmittedAt:    a.SubmittedAt.UTC(),
	}
}

func (d attemptDoc) toModel() (model.AttemptRecord, error) {
	answers := make(map[int]int, len(d.Answers))
	for k, opt := range d.Answers {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return model.AttemptRecord{}, fmt.Errorf("attempt %s has invalid answer key %q", d.ID, k)
		}
		answers[idx] = opt
	}
	var analysis []model.AnswerAnalysis
	if len(d.AnswerAnalysis) > 0 {
		analysis = make([]model.AnswerAnalysis, len(d.AnswerAnalysis))
		for i, an := range d.AnswerAnalysis {
			analysis[i] = model.AnswerAnalysis(an)
		}
	}
	return model.AttemptRecord{
		ID:             d.ID,
		ExamID:         d.ExamID,
		StudentID:      d.StudentID,
		Answers:        answers,
		Score:          d.Score,
		CorrectAnswers: d.CorrectAnswers,
		TotalQuestions: d.TotalQuestions,
		AnswerAnalysis: analysis,
		SubmittedAt:    d.SubmittedAt,
	}, nil
}
