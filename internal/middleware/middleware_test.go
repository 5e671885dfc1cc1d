package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memTokens struct {
	mu   sync.Mutex
	live map[string]bool
}

func (m *memTokens) Save(_ context.Context, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[jti] = true
	return nil
}

func (m *memTokens) Exists(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[jti], nil
}

func (m *memTokens) Delete(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, jti)
	return nil
}

func errorCode(t *testing.T, body []byte) response.ErrCode {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode body %q: %v", body, err)
	}
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}

func TestRequireTeacherJWT(t *testing.T) {
	cfg := &config.Config{JWTSecret: "secret", JWTExpiry: time.Hour}
	tokens := &memTokens{live: map[string]bool{}}
	auth := service.NewAuthService(cfg, nil, tokens)

	token, _, err := auth.GenerateTeacherToken(context.Background(), &model.Teacher{ID: 1, Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.GET("/me", RequireTeacherJWT(auth), CheckTokenNotRevoked(auth), func(c *gin.Context) {
		c.String(http.StatusOK, TeacherUsername(c))
	})

	tests := []struct {
		name     string
		header   string
		query    string
		revoke   bool
		wantCode int
		wantErr  response.ErrCode
	}{
		{name: "missing", wantCode: http.StatusUnauthorized, wantErr: response.ErrTokenRequired},
		{name: "garbage", header: "Bearer nope", wantCode: http.StatusUnauthorized, wantErr: response.ErrTokenInvalid},
		{name: "header", header: "Bearer " + token, wantCode: http.StatusOK},
		{name: "query fallback", query: "?token=" + token, wantCode: http.StatusOK},
		{name: "revoked", header: "Bearer " + token, revoke: true, wantCode: http.StatusUnauthorized, wantErr: response.ErrTokenRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.revoke {
				claims, _ := auth.ValidateToken(token)
				auth.Logout(context.Background(), claims)
			}

			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body)
			}
			if tt.wantErr != "" {
				if got := errorCode(t, w.Body.Bytes()); got != tt.wantErr {
					t.Errorf("code = %s, want %s", got, tt.wantErr)
				}
			} else if w.Body.String() != "alice" {
				t.Errorf("body = %q", w.Body)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 3, time.Minute)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		if code := hit("10.0.0.1"); code != http.StatusNoContent {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := hit("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("4th request: status %d, want 429", code)
	}
	if code := hit("10.0.0.2"); code != http.StatusNoContent {
		t.Errorf("other ip: status %d", code)
	}

	now = now.Add(20 * time.Second)
	if code := hit("10.0.0.1"); code != http.StatusNoContent {
		t.Errorf("after refill: status %d", code)
	}

	now = now.Add(time.Hour)
	rl.cleanup()
	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("%d visitors survived cleanup", n)
	}
}

func TestBrotli(t *testing.T) {
	big := strings.Repeat("question ", 500)

	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 256, SkipPrefixes: []string{"/metrics"}}))
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, big) })

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("/big")
	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("large body not compressed: %v", w.Header())
	}
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	if err != nil {
		t.Fatal(err)
	}
	if string(plain) != big {
		t.Error("decompressed body differs")
	}

	if w := get("/small"); w.Header().Get("Content-Encoding") != "" || w.Body.String() != "ok" {
		t.Errorf("small body: %v %q", w.Header(), w.Body)
	}
	if w := get("/metrics"); w.Header().Get("Content-Encoding") != "" {
		t.Error("skipped prefix was compressed")
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/x", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if !strings.HasPrefix(w.Header().Get("Cache-Control"), "no-store") {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.POST("/x", BodyLimit(16), func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"under limit", `{"a":1}`, http.StatusOK},
		{"over limit", strings.Repeat("x", 17), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
