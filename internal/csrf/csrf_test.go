package csrf

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGenerateToken_Unique(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	b, _ := GenerateToken()
	if a == b {
		t.Error("two tokens should not be equal")
	}
	if len(a) != 44 {
		t.Errorf("token length = %d, want 44", len(a))
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		cookie, form string
		want         bool
	}{
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		if got := ValidateToken(tt.cookie, tt.form); got != tt.want {
			t.Errorf("ValidateToken(%q, %q) = %v, want %v", tt.cookie, tt.form, got, tt.want)
		}
	}
}

func TestEnsureToken_ReusesCookie(t *testing.T) {
	req := httptest.NewRequest("GET", "/admin/upgrade", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "existing"})
	rec := httptest.NewRecorder()

	token, err := EnsureToken(rec, req, false)
	if err != nil {
		t.Fatalf("EnsureToken() error = %v", err)
	}
	if token != "existing" {
		t.Errorf("token = %q, want existing", token)
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Error("should not set a new cookie when one exists")
	}
}

func TestEnsureToken_IssuesCookie(t *testing.T) {
	req := httptest.NewRequest("GET", "/admin/upgrade", nil)
	rec := httptest.NewRecorder()

	token, err := EnsureToken(rec, req, true)
	if err != nil {
		t.Fatalf("EnsureToken() error = %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != token {
		t.Fatalf("expected cookie with issued token, got %v", cookies)
	}
	if !cookies[0].Secure {
		t.Error("cookie should be secure")
	}
}

func TestProtect(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Protect(next)

	post := func(token string) *http.Request {
		form := url.Values{FormFieldName: {token}}
		req := httptest.NewRequest("POST", "/admin/upgrade/cancel", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "secret"})
		return req
	}

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"GET passes", httptest.NewRequest("GET", "/admin", nil), http.StatusNoContent},
		{"POST with matching token", post("secret"), http.StatusNoContent},
		{"POST with wrong token", post("other"), http.StatusForbidden},
		{"POST without cookie", httptest.NewRequest("POST", "/admin/upgrade/cancel", nil), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
