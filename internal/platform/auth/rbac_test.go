package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func contextWithPrincipal(p *Principal) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), *p))
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c := contextWithPrincipal(&Principal{UserID: uuid.New(), Role: RoleReceptionist})
	if err := RequireRole(RoleDoctor, RoleReceptionist)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c := contextWithPrincipal(&Principal{UserID: uuid.New(), Role: RoleReceptionist})
	err := RequireRole(RoleDoctor)(okHandler)(c)
	assertStatus(t, err, http.StatusForbidden)
	if he := err.(*echo.HTTPError); he.Message != "required role: DOCTOR" {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	err := RequireRole(RoleDoctor)(okHandler)(contextWithPrincipal(nil))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestPrincipal_HasRole(t *testing.T) {
	p := Principal{Role: RoleDoctor}
	if !p.HasRole(RoleDoctor) {
		t.Error("expected doctor role")
	}
	if p.HasRole(RoleReceptionist) {
		t.Error("unexpected receptionist role")
	}
	if p.HasRole() {
		t.Error("no roles never match")
	}
}

func TestPrincipal_OwnsDoctor(t *testing.T) {
	mine := uuid.New()
	doc := Principal{Role: RoleDoctor, DoctorID: &mine}
	if !doc.OwnsDoctor(mine) {
		t.Error("expected doctor to own own profile")
	}
	if doc.OwnsDoctor(uuid.New()) {
		t.Error("doctor must not own another profile")
	}
	rec := Principal{Role: RoleReceptionist, DoctorID: &mine}
	if rec.OwnsDoctor(mine) {
		t.Error("receptionist never owns a doctor profile")
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleDoctor, RoleReceptionist} {
		if !r.Valid() {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if Role("ADMIN").Valid() {
		t.Error("unexpected valid role ADMIN")
	}
}
