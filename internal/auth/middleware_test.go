package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/parish-camps/camp-api/internal/config"
	"github.com/parish-camps/camp-api/internal/models"
)

func TestJWTMiddleware_SlidingSession(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	handler := NewAuthHandler(cfg, nil, nil)

	signed := func(expiresIn time.Duration) string {
		claims := jwt.MapClaims{
			"staff_id": uint(1),
			"exp":      time.Now().Add(expiresIn).Unix(),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		s, _ := token.SignedString([]byte(cfg.JWTSecret))
		return s
	}

	run := func(tokenString string) (*httptest.ResponseRecorder, uint) {
		req, _ := http.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: tokenString})
		rr := httptest.NewRecorder()
		var seen uint
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = StaffID(r.Context())
			w.WriteHeader(http.StatusOK)
		})
		handler.JWTMiddleware(next).ServeHTTP(rr, req)
		return rr, seen
	}

	t.Run("TokenRenewed", func(t *testing.T) {
		// 11h left is below TokenDuration/2.
		tokenString := signed(11 * time.Hour)
		rr, staffID := run(tokenString)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status OK, got %v", rr.Code)
		}
		if staffID != 1 {
			t.Errorf("expected staff id 1 in context, got %d", staffID)
		}
		found := false
		for _, c := range rr.Result().Cookies() {
			if c.Name == TokenCookieName {
				found = true
				if c.Value == tokenString {
					t.Errorf("expected new token value, but got the old one")
				}
			}
		}
		if !found {
			t.Errorf("expected new auth_token cookie to be set")
		}
	})

	t.Run("TokenNotRenewed", func(t *testing.T) {
		rr, _ := run(signed(13 * time.Hour))
		if rr.Code != http.StatusOK {
			t.Errorf("expected status OK, got %v", rr.Code)
		}
		for _, c := range rr.Result().Cookies() {
			if c.Name == TokenCookieName {
				t.Errorf("did not expect a new auth_token cookie to be set")
			}
		}
	})

	t.Run("Expired", func(t *testing.T) {
		rr, _ := run(signed(-time.Minute))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %v", rr.Code)
		}
	})

	t.Run("NoCookie", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		handler.JWTMiddleware(http.NotFoundHandler()).ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %v", rr.Code)
		}
	})
}

func TestJWTMiddleware_APIKey(t *testing.T) {
	db := newTestDB(t)
	staff := models.Staff{Email: "ops@parish.example"}
	db.Create(&staff)
	db.Create(&models.APIKey{StaffID: staff.ID, Key: "metrics-key"})
	handler := NewAuthHandler(&config.Config{JWTSecret: "s"}, db, nil)

	req, _ := http.NewRequest("GET", "/metrics", nil)
	req.Header.Set("X-API-KEY", "metrics-key")
	rr := httptest.NewRecorder()
	handler.JWTMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := StaffID(r.Context()); id != staff.ID {
			t.Errorf("expected staff %d, got %d", staff.ID, id)
		}
	})).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status OK, got %v", rr.Code)
	}

	req.Header.Set("X-API-KEY", "unknown")
	rr = httptest.NewRecorder()
	handler.JWTMiddleware(http.NotFoundHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", rr.Code)
	}
}
