package model

// LogCategory selects one of the proctoring audit logs.
type LogCategory string

const (
	LogSessions    LogCategory = "sessions"
	LogCheating    LogCategory = "cheating"
	LogSubmissions LogCategory = "submissions"
	LogLogins      LogCategory = "logins"
)

// LogCategories lists every category in display order.
var LogCategories = []LogCategory{LogSessions, LogCheating, LogSubmissions, LogLogins}

// FileName is the log file backing the category.
func (c LogCategory) FileName() string {
	switch c {
	case LogSessions:
		return "exam_sessions.log"
	case LogCheating:
		return "cheating_alerts.log"
	case LogSubmissions:
		return "exam_submissions.log"
	case LogLogins:
		return "login_history.log"
	}
	return ""
}

// Valid reports whether c names a known category.
func (c LogCategory) Valid() bool {
	return c.FileName() != ""
}
