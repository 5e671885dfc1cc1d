package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionCheat   Action = "cheat"
	ActionRefresh Action = "refresh"
	ActionSubmit  Action = "submit"
	ActionPing    Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action          `json:"action"`
	Raw    json.RawMessage `json:"-"`
}

// CheatRequest reports suspicious activity detected by the exam page.
type CheatRequest struct {
	Action  Action         `json:"action"`
	Type    string         `json:"type"`
	Details map[string]any `json:"details"`
}

// SubmitRequest hands in the exam over the socket.
type SubmitRequest struct {
	Action  Action            `json:"action"`
	Answers map[string]string `json:"answers"`
	Device  *DeviceInfo       `json:"device_info"`
}

// DeviceInfo mirrors the browser fingerprint of the HTTP submit.
type DeviceInfo struct {
	DeviceID         string `json:"device_id"`
	Platform         string `json:"platform"`
	ScreenResolution string `json:"screen_resolution"`
	UserAgent        string `json:"user_agent_full"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventRecorded  Event = "recorded"
	EventRefreshed Event = "refreshed"
	EventGraded    Event = "graded"
	EventPong      Event = "pong"
)

type RecordedResponse struct {
	Event Event  `json:"event"`
	Type  string `json:"type"`
}

type RefreshedResponse struct {
	Event           Event `json:"event"`
	RefreshAttempts int   `json:"refresh_attempts"`
}

type GradedResponse struct {
	Event            Event  `json:"event"`
	Score            *int   `json:"score"`
	Pending          bool   `json:"pending"`
	Message          string `json:"message"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
