package gateway

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	both := AuthConfig{BearerToken: "tok", BasicUser: "ops", BasicPass: "pw"}
	bearerOnly := AuthConfig{BearerToken: "tok"}

	tests := []struct {
		name   string
		cfg    AuthConfig
		header func(r *http.Request)
		want   int
	}{
		{"no header", both, func(*http.Request) {}, http.StatusUnauthorized},
		{"valid bearer", both, func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") }, http.StatusOK},
		{"wrong bearer", both, func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bearer prefix only", both, func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }, http.StatusUnauthorized},
		{"valid basic", both, func(r *http.Request) { r.SetBasicAuth("ops", "pw") }, http.StatusOK},
		{"wrong basic pass", both, func(r *http.Request) { r.SetBasicAuth("ops", "x") }, http.StatusUnauthorized},
		{"basic when only bearer set", bearerOnly, func(r *http.Request) { r.SetBasicAuth("ops", "pw") }, http.StatusUnauthorized},
		{"unknown scheme", both, func(r *http.Request) { r.Header.Set("Authorization", "Token tok") }, http.StatusUnauthorized},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			tt.header(req)
			rr := httptest.NewRecorder()
			authMiddleware(tt.cfg, nil)(next).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_LogsFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := authMiddleware(AuthConfig{BearerToken: "tok"}, logger)(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil)
	req.Header.Set("Authorization", "Bearer guess")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"gateway auth failure", "reason=\"invalid credentials\"", "path=/api/jobs/x"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}
	if strings.Contains(out, "guess") {
		t.Errorf("presented credential leaked: %s", out)
	}
}

func TestAuthConfig_IsConfigured(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		cfg  AuthConfig
		want bool
	}{
		{AuthConfig{}, false},
		{AuthConfig{BearerToken: "t"}, true},
		{AuthConfig{BasicUser: "u"}, false},
		{AuthConfig{BasicUser: "u", BasicPass: "p"}, true},
	} {
		if got := tt.cfg.IsConfigured(); got != tt.want {
			t.Errorf("%+v.IsConfigured() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
