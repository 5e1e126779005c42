package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(secret []byte, roles ...string) *gin.Engine {
	r := gin.New()
	g := r.Group("/", RequireAuth(secret))
	if len(roles) > 0 {
		g.Use(RequireRole(roles...))
	}
	g.GET("/whoami", func(c *gin.Context) {
		a, _ := ActorFrom(c)
		c.String(http.StatusOK, a.ID+"/"+a.Role)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	secret := []byte("s3cret")
	good, err := IssueToken(secret, "teacher-1", "teacher", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	expired, _ := IssueToken(secret, "teacher-1", "TEACHER", -time.Hour)
	forged, _ := IssueToken([]byte("other"), "teacher-1", "ADMIN", time.Hour)

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized, ""},
		{"ok", "Bearer " + good, http.StatusOK, "teacher-1/TEACHER"},
	}
	r := newRouter(secret)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("body = %q, want %q", w.Body.String(), tc.body)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	secret := []byte("s3cret")
	r := newRouter(secret, "ADMIN", "PRINCIPAL")

	teacher, _ := IssueToken(secret, "t1", "TEACHER", time.Hour)
	admin, _ := IssueToken(secret, "a1", "admin", time.Hour)

	for tok, want := range map[string]int{teacher: http.StatusForbidden, admin: http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("status = %d, want %d", w.Code, want)
		}
	}
}
