package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID          string          `json:"exam_id"`
	ExamName        string          `json:"exam_name"`
	InstituteID     string          `json:"institute_id"`
	Status          ExamStatus      `json:"status"`
	ResultsReleased bool            `json:"results_released"`
	TotalQuestions  int             `json:"total_questions"`
	PublishAddress  string          `json:"publish_address,omitempty"`
	Results         []StudentResult `json:"results"`
}

// StudentResult holds one student's attempt for export and result listings.
type StudentResult struct {
	StudentID      string           `json:"student_id"`
	Email          string           `json:"email,omitempty"`
	Name           string           `json:"name,omitempty"`
	Score          float64          `json:"score"`
	CorrectAnswers int              `json:"correct_answers"`
	TotalQuestions int              `json:"total_questions"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	AnswerAnalysis []AnswerAnalysis `json:"answer_analysis,omitempty"`
}

// MyResult is a student's view of one of their attempts.
type MyResult struct {
	ExamID          string           `json:"exam_id"`
	ExamName        string           `json:"exam_name"`
	Score           float64          `json:"score"`
	CorrectAnswers  int              `json:"correct_answers"`
	TotalQuestions  int              `json:"total_questions"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	ResultsReleased bool             `json:"results_released"`
	AnswerAnalysis  []AnswerAnalysis `json:"answer_analysis,omitempty"`
}
