package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stemsi/autoexam/internal/model"
	ws "github.com/stemsi/autoexam/internal/websocket"
)

func dialStream(t *testing.T, srv *httptest.Server, id int64, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := fmt.Sprintf("ws%s/ws/v1/exam/%d/stream?token=%s", strings.TrimPrefix(srv.URL, "http"), id, token)
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestStudentStream(t *testing.T) {
	s := newTestServer(t)
	id := s.startQuiz(t)

	_, reg := do[model.StudentExamView](t, s.router, http.MethodPost, fmt.Sprintf("/api/v1/exam/%d/register", id), gin.H{
		"first_name": "Ann",
		"last_name":  "Lee",
	})
	token := reg.Data.Token

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := dialStream(t, srv, id, token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(gin.H{"action": "ping"})
	var pong ws.PongResponse
	readEvent(t, conn, &pong)
	if pong.Event != ws.EventPong {
		t.Errorf("event = %q, want pong", pong.Event)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	var bad ws.ErrorResponse
	readEvent(t, conn, &bad)
	if bad.Event != ws.EventError {
		t.Errorf("malformed message: event = %q, want error", bad.Event)
	}

	conn.WriteJSON(gin.H{"action": "cheat", "type": "copy"})
	var rec ws.RecordedResponse
	readEvent(t, conn, &rec)
	if rec.Event != ws.EventRecorded || rec.Type != "copy" {
		t.Errorf("cheat reply = %+v", rec)
	}

	conn.WriteJSON(gin.H{"action": "refresh"})
	var ref ws.RefreshedResponse
	readEvent(t, conn, &ref)
	if ref.RefreshAttempts != 1 {
		t.Errorf("refresh attempts = %d, want 1", ref.RefreshAttempts)
	}

	conn.WriteJSON(gin.H{
		"action": "submit",
		"answers": gin.H{
			reg.Data.Questions[0].Display: "4",
			reg.Data.Questions[1].Display: "Paris",
		},
	})
	var graded ws.GradedResponse
	readEvent(t, conn, &graded)
	if graded.Event != ws.EventGraded || graded.Score == nil || *graded.Score != 100 {
		t.Fatalf("graded = %+v", graded)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close after submit, got %v", err)
	}

	// A submitted student cannot reopen the stream.
	_, resp, err := dialStream(t, srv, id, token)
	if err == nil || resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("reconnect after submit: err = %v, resp = %v", err, resp)
	}
}
