package results

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/stemsi/autoexam/internal/engine"
	"github.com/stemsi/autoexam/internal/i18n"
)

var snapshotTmpl = template.Must(template.New("snapshot").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}" dir="{{.Dir}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}: {{.Name}}</title>
<style>
body { font-family: sans-serif; max-width: 52rem; margin: 2rem auto; line-height: 1.5; }
.question { border-bottom: 1px solid #ccc; padding: 0.75rem 0; }
.answer { white-space: pre-wrap; background: #f6f6f6; padding: 0.5rem; }
.correct { color: #2a7d2a; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p><strong>{{.StudentLabel}}:</strong> {{.Name}}</p>
<p><strong>{{.SubmittedLabel}}:</strong> {{.SubmittedAt}}</p>
<p><strong>{{.TimeSpentLabel}}:</strong> {{.TimeSpent}}</p>
<p>{{.ScoreLine}}</p>
<p>{{.Answered}}</p>
<h2>{{.AnswersLabel}}</h2>
{{range .Items}}<div class="question">
<p>{{.Text}}</p>
<div class="answer">{{.Answer}}</div>
{{if .Correct}}<p class="correct">{{$.CorrectLabel}}: {{.Correct}}</p>{{end}}
</div>
{{end}}</body>
</html>
`))

type snapshotItem struct {
	Text    string
	Answer  string
	Correct string
}

type snapshotData struct {
	Lang           string
	Dir            engine.Direction
	Title          string
	Name           string
	StudentLabel   string
	SubmittedLabel string
	SubmittedAt    string
	TimeSpentLabel string
	TimeSpent      string
	ScoreLine      string
	Answered       string
	AnswersLabel   string
	CorrectLabel   string
	Items          []snapshotItem
}

// SnapshotName is the HTML file name for a student submitted at the given
// time, "First_Last_HH-MM-SS.html".
func SnapshotName(sub Submission) string {
	return fmt.Sprintf("%s_%s_%s.html",
		sanitizeName(sub.FirstName), sanitizeName(sub.LastName), sub.SubmittedAt.Format("15-04-05"))
}

// WriteSnapshot renders the student's answers to an HTML page in the exam's
// language and returns the file path. Correct answers are shown only for
// multiple choice questions.
func (w *Writer) WriteSnapshot(ctx context.Context, sub Submission) (string, error) {
	lang := sub.Language
	if lang == "" {
		lang = engine.LangEnglish
	}
	dir := sub.Direction
	if dir == "" {
		dir = engine.DirectionLTR
	}
	ctx = i18n.WithLanguage(ctx, lang)

	scoreLine := i18n.T(ctx, "ScorePending")
	if sub.Score >= 0 {
		scoreLine = i18n.Td(ctx, "YourScore", map[string]any{"Score": sub.Score})
	}

	data := snapshotData{
		Lang:           lang,
		Dir:            dir,
		Title:          i18n.T(ctx, "ResultsTitle"),
		Name:           sub.FirstName + " " + sub.LastName,
		StudentLabel:   i18n.T(ctx, "StudentLabel"),
		SubmittedLabel: i18n.T(ctx, "SubmittedAt"),
		SubmittedAt:    sub.SubmittedAt.Format("2006-01-02 15:04:05"),
		TimeSpentLabel: i18n.T(ctx, "TimeSpent"),
		TimeSpent:      formatDuration(int(sub.TimeSpent.Seconds())),
		ScoreLine:      scoreLine,
		AnswersLabel:   i18n.T(ctx, "YourAnswers"),
		CorrectLabel:   i18n.T(ctx, "CorrectAnswer"),
	}

	answered := 0
	for _, q := range sub.Questions {
		text := q.Display()
		item := snapshotItem{Text: text, Answer: i18n.T(ctx, "NoAnswer")}
		if a, ok := sub.Answers[text]; ok && a != "" {
			item.Answer = a
			answered++
		}
		if !q.IsOpen() && q.HasAnswer {
			item.Correct = q.Answer
		}
		data.Items = append(data.Items, item)
	}
	data.Answered = i18n.Tp(ctx, "QuestionsAnswered", answered)

	var buf bytes.Buffer
	if err := snapshotTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}

	path := filepath.Join(sub.Folder, SnapshotName(sub))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

func formatDuration(secs int) string {
	if secs <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
