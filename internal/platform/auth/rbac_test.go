package auth

import (
	"net/http"
	"testing"
)

func TestHasAtLeast(t *testing.T) {
	if !HasAtLeast([]string{"viewer"}, RoleViewer) {
		t.Fatalf("viewer should satisfy viewer")
	}
	if HasAtLeast([]string{"viewer"}, RoleEditor) {
		t.Fatalf("viewer should not satisfy editor")
	}
	if !HasAtLeast([]string{" Admin "}, RoleEditor) {
		t.Fatalf("admin should satisfy editor")
	}
	if HasAtLeast([]string{"client"}, RoleViewer) {
		t.Fatalf("unknown role should not satisfy viewer")
	}
}

func TestRequiredRoleForRequest(t *testing.T) {
	cases := map[string]string{
		http.MethodGet:    RoleViewer,
		http.MethodPost:   RoleEditor,
		http.MethodDelete: RoleAdmin,
	}
	for method, want := range cases {
		req, _ := http.NewRequest(method, "http://example.test/", nil)
		if got := RequiredRoleForRequest(req); got != want {
			t.Fatalf("RequiredRoleForRequest(%s)=%q, want %q", method, got, want)
		}
	}
}
