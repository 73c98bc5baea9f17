package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func headersFor(t *testing.T, hsts bool) http.Header {
	t.Helper()
	e := echo.New()
	e.Use(SecurityHeaders(hsts))
	e.GET("/api/public/doctors", func(c echo.Context) error {
		return c.JSON(http.StatusOK, []string{})
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public/doctors", nil))
	return rec.Header()
}

func TestSecurityHeaders(t *testing.T) {
	h := headersFor(t, false)
	for _, want := range apiHeaders {
		if got := h.Get(want.name); got != want.value {
			t.Errorf("%s = %q, want %q", want.name, got, want.value)
		}
	}
	if got := h.Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS sent without TLS: %q", got)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	h := headersFor(t, true)
	if got := h.Get("Strict-Transport-Security"); got != hstsValue {
		t.Errorf("Strict-Transport-Security = %q, want %q", got, hstsValue)
	}
	if got := h.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
	if len(apiHeaders) != 5 {
		t.Errorf("apiHeaders mutated: %d entries", len(apiHeaders))
	}
}
