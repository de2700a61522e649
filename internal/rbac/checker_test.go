package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skillproof/skillproof-api/internal/rbac"
)

func TestCheckerHas(t *testing.T) {
	c := rbac.NewChecker(nil)

	cases := []struct {
		role string
		perm string
		want bool
	}{
		{"student", "assessment:start", true},
		{"student", "assessment:submit", true},
		{"student", "catalog:manage", false},
		{"student", "assessment:view-all", false},
		{"instructor", "catalog:manage", true},
		{"instructor", "assessment:view-all", true},
		{"instructor", "assessment:start", false},
		{"admin", "catalog:manage", true},
		{"admin", "assessment:start", true},
		{"admin", "anything:at-all", true},
		{"ghost", "catalog:view", false},
		{"", "catalog:view", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestCheckerAny(t *testing.T) {
	c := rbac.NewChecker(nil)
	if !c.Any("student", "assessment:view-own", "assessment:view-all") {
		t.Error("student denied view-own via Any")
	}
	if !c.Any("instructor", "assessment:view-own", "assessment:view-all") {
		t.Error("instructor denied view-all via Any")
	}
	if c.Any("ghost", "assessment:view-own", "assessment:view-all") {
		t.Error("unknown role granted via Any")
	}
}

func TestRequireMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	call := func(role string, h http.Handler) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if role != "" {
			req = req.WithContext(rbac.WithRole(context.Background(), role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	guarded := rbac.Require("catalog:manage")(ok)
	if code := call("instructor", guarded); code != http.StatusOK {
		t.Errorf("instructor: %d, want 200", code)
	}
	if code := call("student", guarded); code != http.StatusForbidden {
		t.Errorf("student: %d, want 403", code)
	}
	if code := call("", guarded); code != http.StatusForbidden {
		t.Errorf("no role: %d, want 403", code)
	}

	either := rbac.RequireAny("assessment:view-own", "assessment:view-all")(ok)
	if code := call("student", either); code != http.StatusOK {
		t.Errorf("student via RequireAny: %d, want 200", code)
	}
	if code := call("ghost", either); code != http.StatusForbidden {
		t.Errorf("ghost via RequireAny: %d, want 403", code)
	}
}
