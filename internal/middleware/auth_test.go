package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmeshcher/olea-platform/internal/model"
)

func sessionCookie(t *testing.T, m *AuthMiddleware, s Session) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	m.SetSessionCookie(w, s)
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set by SetSessionCookie")
	}
	return cookies[0]
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		s, ok := GetSessionFromContext(r.Context())
		if !ok {
			t.Fatalf("session not in context")
		}
		if s.EmployeeID != "EMP-003" || s.Role != model.RoleTechnician {
			t.Fatalf("session from context = %+v", s)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(sessionCookie(t, m, Session{EmployeeID: "EMP-003", Role: model.RoleTechnician}))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	valid := sessionCookie(t, m, Session{EmployeeID: "EMP-003", Role: model.RoleTechnician})

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie"},
		{name: "garbage", cookie: &http.Cookie{Name: authCookieName, Value: "garbage"}},
		{name: "role escalated", cookie: &http.Cookie{Name: authCookieName, Value: "EMP-003:ADMIN" + valid.Value[len("EMP-003:TECHNICIAN"):]}},
		{name: "other secret", cookie: sessionCookie(t, NewAuthMiddleware("other"), Session{EmployeeID: "EMP-003", Role: model.RoleAdmin})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		want    int
	}{
		{name: "allowed", session: &Session{EmployeeID: "EMP-001", Role: model.RoleAdmin}, want: http.StatusOK},
		{name: "denied", session: &Session{EmployeeID: "EMP-003", Role: model.RoleTechnician}, want: http.StatusForbidden},
		{name: "no session", want: http.StatusUnauthorized},
	}

	h := RequireRole(model.RoleAdmin, model.RoleSupervisor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.session != nil {
				r = r.WithContext(WithSession(r.Context(), *tt.session))
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
