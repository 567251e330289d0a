package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestParseToken(t *testing.T) {
	good := signToken(t, jwt.MapClaims{"user_id": 5, "role": "admin", "exp": time.Now().Add(time.Hour).Unix()})
	rc, err := ParseToken(testSecret, good)
	if err != nil || rc.UserID != 5 || rc.Role != "admin" {
		t.Fatalf("rc=%+v err=%v", rc, err)
	}

	expired := signToken(t, jwt.MapClaims{"user_id": 5, "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()})
	if _, err := ParseToken(testSecret, expired); err == nil {
		t.Fatalf("expired token accepted")
	}
	noExp := signToken(t, jwt.MapClaims{"user_id": 5})
	if _, err := ParseToken(testSecret, noExp); err == nil {
		t.Fatalf("token without exp accepted")
	}
	if _, err := ParseToken([]byte("other"), good); err == nil {
		t.Fatalf("token with wrong signature accepted")
	}
}

func TestAuthRequiredAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.POST("/admin", AuthRequired(testSecret), RequireRoles("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer garbage", http.StatusUnauthorized},
		{"Bearer " + signToken(t, jwt.MapClaims{"user_id": 2, "role": "driver", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusForbidden},
		{"Bearer " + signToken(t, jwt.MapClaims{"user_id": 1, "role": "Admin", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusNoContent},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("header %q: status %d, want %d", tc.header, w.Code, tc.want)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Fatalf("request id header missing")
		}
	}
}
