package attempt

import (
	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/questions"
)

// Result is the outcome of scoring one set of answers.
type Result struct {
	Score          float64
	CorrectAnswers int
	TotalQuestions int
	AnswerAnalysis []model.AnswerAnalysis
}

// Score grades answers (question index to 1-based option) against qs.
//
// Score is 100*correct/len(qs). Unanswered questions count as incorrect and
// get no analysis entry; analysis entries are ordered by question index.
// Answers for indexes outside qs are ignored.
func Score(qs []questions.Question, answers map[int]int) Result {
	r := Result{TotalQuestions: len(qs)}
	for i, q := range qs {
		ans, ok := answers[i]
		if !ok {
			continue
		}
		correct := ans == q.CorrectAnswer
		if correct {
			r.CorrectAnswers++
		}
		r.AnswerAnalysis = append(r.AnswerAnalysis, model.AnswerAnalysis{
			QuestionIndex: i,
			QuestionID:    q.ID,
			StudentAnswer: ans,
			CorrectAnswer: q.CorrectAnswer,
			Correct:       correct,
		})
	}
	if r.TotalQuestions > 0 {
		r.Score = 100 * float64(r.CorrectAnswers) / float64(r.TotalQuestions)
	}
	return r
}
