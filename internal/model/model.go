package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent takes approved exams.
	UserRoleStudent UserRole = "student"
	// UserRoleInstitute submits question sets and releases results.
	UserRoleInstitute UserRole = "institute"
	// UserRoleAdmin reviews submitted exam requests.
	UserRoleAdmin UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStudent, UserRoleInstitute, UserRoleAdmin:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated subject of a request.
type Identity struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

type identityCtxKey struct{}

// ContextWithIdentity stores the authenticated identity in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity from context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}

// ExamStatus is the review status of an exam request.
type ExamStatus string

const (
	ExamPending  ExamStatus = "pending"
	ExamApproved ExamStatus = "approved"
	ExamRejected ExamStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ExamStatus) Valid() bool {
	switch s {
	case ExamPending, ExamApproved, ExamRejected:
		return true
	}
	return false
}

// DefaultTimeLimit is the exam duration in minutes when none is given.
const DefaultTimeLimit = 60

// ExamRequest is an institute's submission and its review state.
//
// StorageEnvelope and StorageKey never leave the service. PublishAddress and
// PublishKey are set if and only if Status is ExamApproved.
type ExamRequest struct {
	ID              string     `json:"id"`
	InstituteID     string     `json:"institute_id"`
	ExamName        string     `json:"exam_name"`
	Description     string     `json:"description"`
	TotalQuestions  int        `json:"total_questions"`
	TimeLimit       int        `json:"time_limit"`
	AvailableUntil  *time.Time `json:"available_until,omitempty"`
	StorageEnvelope string     `json:"-"`
	StorageKey      string     `json:"-"`
	ContentChecksum string     `json:"content_checksum"`
	PublishKey      string     `json:"-"`
	PublishAddress  string     `json:"publish_address,omitempty"`
	Status          ExamStatus `json:"status"`
	AdminComment    string     `json:"admin_comment,omitempty"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ResultsReleased bool       `json:"results_released"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Published reports whether the exam carries a publish address and key.
func (e *ExamRequest) Published() bool {
	return e.PublishAddress != "" && e.PublishKey != ""
}

// Review is the outcome of an administrator's decision on a pending exam.
// PublishAddress and PublishKey are only used when Status is ExamApproved.
type Review struct {
	Status         ExamStatus
	AdminComment   string
	ReviewedBy     string
	ReviewedAt     time.Time
	PublishAddress string
	PublishKey     string
}

// ExamFilter narrows exam listings. Empty fields mean no filtering on that field.
type ExamFilter struct {
	InstituteID string
	Status      ExamStatus
	// NotAttemptedBy excludes exams the given student already attempted.
	NotAttemptedBy string
}

// AnswerAnalysis describes one answered question of an attempt.
type AnswerAnalysis struct {
	QuestionIndex int    `json:"question_index"`
	QuestionID    string `json:"question_id,omitempty"`
	StudentAnswer int    `json:"student_answer"`
	CorrectAnswer int    `json:"correct_answer"`
	Correct       bool   `json:"correct"`
}

// AttemptRecord is a student's single scored submission for an exam.
type AttemptRecord struct {
	ID             string           `json:"id"`
	ExamID         string           `json:"exam_id"`
	StudentID      string           `json:"student_id"`
	Answers        map[int]int      `json:"answers"`
	Score          float64          `json:"score"`
	CorrectAnswers int              `json:"correct_answers"`
	TotalQuestions int              `json:"total_questions"`
	AnswerAnalysis []AnswerAnalysis `json:"answer_analysis,omitempty"`
	SubmittedAt    time.Time        `json:"submitted_at"`
}

// SanitizedQuestion is a question as shown to a student.
type SanitizedQuestion struct {
	Index   int      `json:"index"`
	ID      string   `json:"id,omitempty"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

// SanitizedExam is the student-facing form of an approved exam.
type SanitizedExam struct {
	ExamID         string              `json:"exam_id"`
	ExamName       string              `json:"exam_name"`
	Description    string              `json:"description,omitempty"`
	TimeLimit      int                 `json:"time_limit"`
	TotalQuestions int                 `json:"total_questions"`
	AvailableUntil *time.Time          `json:"available_until,omitempty"`
	Questions      []SanitizedQuestion `json:"questions"`
}

// DashboardStats counts exam requests per status.
type DashboardStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}
