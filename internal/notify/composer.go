package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/examvault/internal/i18n"
	"github.com/pavelanni/examvault/internal/model"
)

// Composer renders notification text in one language.
type Composer struct {
	lang      string
	publicURL string
}

// NewComposer creates a composer for lang. publicURL is the externally
// reachable base URL used in result links.
func NewComposer(lang, publicURL string) *Composer {
	return &Composer{lang: lang, publicURL: strings.TrimRight(publicURL, "/")}
}

func (c *Composer) ctx() context.Context {
	return i18n.WithLanguage(context.Background(), c.lang)
}

func comment(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ExamApproved tells the institute where the exam was published and which
// key decrypts it.
func (c *Composer) ExamApproved(to string, e *model.ExamRequest) Message {
	ctx := c.ctx()
	data := map[string]any{
		"ExamName": e.ExamName,
		"Address":  e.PublishAddress,
		"Key":      e.PublishKey,
		"Comment":  comment(e.AdminComment),
	}
	return Message{
		Kind:    KindExamApproved,
		To:      to,
		Subject: i18n.Td(ctx, "ExamApprovedSubject", data),
		Body:    i18n.Td(ctx, "ExamApprovedBody", data),
	}
}

// ExamRejected tells the institute the exam was rejected.
func (c *Composer) ExamRejected(to string, e *model.ExamRequest) Message {
	ctx := c.ctx()
	data := map[string]any{
		"ExamName": e.ExamName,
		"Comment":  comment(e.AdminComment),
	}
	return Message{
		Kind:    KindExamRejected,
		To:      to,
		Subject: i18n.Td(ctx, "ExamRejectedSubject", data),
		Body:    i18n.Td(ctx, "ExamRejectedBody", data),
	}
}

// ResultsReleased tells a student their score.
func (c *Composer) ResultsReleased(to string, e *model.ExamRequest, a model.AttemptRecord) Message {
	ctx := c.ctx()
	data := map[string]any{
		"ExamName": e.ExamName,
		"Score":    fmt.Sprintf("%.1f", a.Score),
		"Correct":  a.CorrectAnswers,
		"Total":    a.TotalQuestions,
		"Link":     c.publicURL + "/api/exams/my-results",
	}
	return Message{
		Kind:    KindResultsReleased,
		To:      to,
		Subject: i18n.Td(ctx, "ResultsReleasedSubject", data),
		Body:    i18n.Td(ctx, "ResultsReleasedBody", data),
	}
}

// AttemptReceived confirms a submission to the student without revealing the score.
func (c *Composer) AttemptReceived(to string, e *model.ExamRequest, a *model.AttemptRecord) Message {
	ctx := c.ctx()
	data := map[string]any{
		"ExamName":    e.ExamName,
		"SubmittedAt": a.SubmittedAt.UTC().Format(time.RFC1123),
	}
	body := i18n.Td(ctx, "AttemptReceivedBody", data) + "\n" + i18n.Tp(ctx, "AnsweredQuestions", len(a.Answers))
	return Message{
		Kind:    KindAttemptReceived,
		To:      to,
		Subject: i18n.Td(ctx, "AttemptReceivedSubject", data),
		Body:    body,
	}
}
