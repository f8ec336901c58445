package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLanguage(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ErrAlreadyAttempted")
	if got != "You have already attempted this exam" {
		t.Errorf("T(ErrAlreadyAttempted) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "ErrNotFound")
	if got != "Не найдено" {
		t.Errorf("T(ErrNotFound) = %q, want 'Не найдено'", got)
	}
}

func TestUnsupportedLanguageFallsBack(t *testing.T) {
	ctx := initLang(t, "de")

	got := T(ctx, "ErrNotFound")
	if got != "Not found" {
		t.Errorf("T(ErrNotFound) = %q, want 'Not found'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "AnsweredQuestions", 1); got != "You answered 1 question." {
		t.Errorf("Tp(AnsweredQuestions, 1) = %q", got)
	}
	if got := Tp(ctx, "AnsweredQuestions", 5); got != "You answered 5 questions." {
		t.Errorf("Tp(AnsweredQuestions, 5) = %q", got)
	}

	ru := WithLanguage(context.Background(), "ru")
	if got := Tp(ru, "AnsweredQuestions", 5); got != "Вы ответили на 5 вопросов." {
		t.Errorf("Tp(AnsweredQuestions, 5) ru = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ExamRejectedSubject", map[string]any{"ExamName": "Physics"})
	if got != `Exam "Physics" rejected` {
		t.Errorf("Td(ExamRejectedSubject) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	en, err := localeFS.ReadFile("locales/en.json")
	if err != nil {
		t.Fatal(err)
	}
	ru, err := localeFS.ReadFile("locales/ru.json")
	if err != nil {
		t.Fatal(err)
	}
	var enMsgs, ruMsgs map[string]any
	if err := jsonUnmarshal(en, &enMsgs); err != nil {
		t.Fatal(err)
	}
	if err := jsonUnmarshal(ru, &ruMsgs); err != nil {
		t.Fatal(err)
	}
	for k := range enMsgs {
		if _, ok := ruMsgs[k]; !ok {
			t.Errorf("ru.json is missing %q", k)
		}
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ErrForbidden")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Доступ запрещён" {
		t.Errorf("expected Russian message, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.HasPrefix(got, "Access") {
		t.Errorf("expected English message without header, got %q", got)
	}
}
