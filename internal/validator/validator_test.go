package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsExamFilename(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"algebra.txt", true},
		{"Final Exam.TXT", true},
		{"notes.md", false},
		{"../secret.txt", false},
		{"dir/exam.txt", false},
		{`dir\exam.txt`, false},
		{".hidden.txt", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsExamFilename(tt.name); got != tt.want {
			t.Errorf("IsExamFilename(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsUsername(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"alice", true},
		{"j.doe-2", true},
		{"ab", false},
		{".alice", false},
		{"al ice", false},
		{"../etc", false},
		{"мария", false},
		{strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		if got := IsUsername(tt.name); got != tt.want {
			t.Errorf("IsUsername(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsPersonName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Ann", true},
		{"Мария", true},
		{"דנה", true},
		{"O'Neil", true},
		{"123", false},
		{"a/b", false},
		{"bad\nname", false},
	}

	for _, tt := range tests {
		if got := isPersonName(tt.name); got != tt.want {
			t.Errorf("isPersonName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBindTranslatesCustomTags(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Setup()

	type req struct {
		FirstName string `json:"first_name" binding:"required,person_name"`
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"first_name":"42"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var dst req
	fields := Bind(c, &dst)
	if fields == nil {
		t.Fatal("expected validation errors")
	}
	if msg := fields["first_name"]; !strings.Contains(msg, "must contain letters") {
		t.Errorf("first_name error = %q", msg)
	}
}
