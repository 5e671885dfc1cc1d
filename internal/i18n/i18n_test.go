package i18n

import (
	"context"
	"slices"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLanguage(context.Background(), lang)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"en", "No answer"},
		{"ru", "Нет ответа"},
		{"he", "אין תשובה"},
		{"fr", "No answer"},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, "NoAnswer"); got != tt.want {
				t.Errorf("T(NoAnswer) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTemplateData(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "YourScore", map[string]any{"Score": 85})
	if got != "Your score: 85%" {
		t.Errorf("Td(YourScore) = %q", got)
	}
}

func TestPlural(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsAnswered", 1); got != "1 question answered." {
		t.Errorf("Tp(1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsAnswered", 4); got != "4 questions answered." {
		t.Errorf("Tp(4) = %q", got)
	}
}

func TestMissingMessageFallsBackToID(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "DoesNotExist"); got != "DoesNotExist" {
		t.Errorf("T(DoesNotExist) = %q", got)
	}
}

func TestLanguages(t *testing.T) {
	_ = initLang(t, "en")

	langs := Languages()
	for _, want := range []string{"en", "ru", "he"} {
		if !slices.Contains(langs, want) {
			t.Errorf("Languages() = %v, missing %s", langs, want)
		}
	}
}

func TestContextWithoutLocalizer(t *testing.T) {
	_ = initLang(t, "en")

	if got := T(context.Background(), "ResultsTitle"); got != "Exam results" {
		t.Errorf("T without localizer = %q", got)
	}
}
