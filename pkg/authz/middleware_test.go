package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(actor *Actor) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if actor != nil {
		req = req.WithContext(WithActor(req.Context(), *actor))
	}
	return req
}

func TestRequireRole_Allowed(t *testing.T) {
	handler := RequireRole(OversightRoles, nil)(okHandler())

	for _, role := range []Role{RoleAdmin, RoleRegulator} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestAs(&Actor{ID: "x", Role: role}))
		if rr.Code != http.StatusOK {
			t.Errorf("role %s: status = %d, want %d", role, rr.Code, http.StatusOK)
		}
	}
}

func TestRequireRole_Denied(t *testing.T) {
	var denied []Role
	onDeny := func(_ *http.Request, actor Actor, _ RoleSet) {
		denied = append(denied, actor.Role)
	}

	handler := RequireRole(NewRoleSet(RoleFarmer), onDeny)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called when denied")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs(&Actor{ID: "p1", Role: RoleProcessor}))

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["error"] != "forbidden" {
		t.Errorf("error = %q, want %q", body["error"], "forbidden")
	}
	if !strings.Contains(body["message"], "FARMER") {
		t.Errorf("message %q should name the required roles", body["message"])
	}
	if len(denied) != 1 || denied[0] != RoleProcessor {
		t.Errorf("onDeny calls = %v", denied)
	}
}

func TestRequireRole_NoActor(t *testing.T) {
	handler := RequireRoles(RoleAdmin)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs(nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestStaffRolesExcludeConsumer(t *testing.T) {
	if StaffRoles.Contains(RoleConsumer) {
		t.Error("consumer must not be staff")
	}
	for _, r := range []Role{RoleFarmer, RoleProcessor, RoleLabTechnician, RoleRegulator, RoleAdmin} {
		if !StaffRoles.Contains(r) {
			t.Errorf("%s should be staff", r)
		}
	}
	if got := OversightRoles.String(); got != "REGULATOR,ADMIN" {
		t.Errorf("OversightRoles = %q", got)
	}
	if (RoleSet{}).Contains(RoleAdmin) {
		t.Error("zero RoleSet must be empty")
	}
}

func TestParseRole(t *testing.T) {
	for _, in := range []string{"farmer", " FARMER ", "role_farmer"} {
		r, err := ParseRole(in)
		if err != nil || r != RoleFarmer {
			t.Errorf("ParseRole(%q) = %q, %v", in, r, err)
		}
	}
	if _, err := ParseRole("guest"); err == nil {
		t.Error("expected error for unknown role")
	}
	if Role("nobody").Valid() {
		t.Error("nobody should not be valid")
	}
	if len(Roles()) != 6 {
		t.Errorf("Roles() = %v", Roles())
	}
}
