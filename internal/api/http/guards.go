package http

import (
	"net/http"

	"github.com/skillproof/skillproof-api/internal/assessment"
	authmw "github.com/skillproof/skillproof-api/internal/auth/middleware"
	"github.com/skillproof/skillproof-api/internal/rbac"
)

var perms = rbac.NewChecker(nil)

func viewerSeesAll(r *http.Request) bool {
	return perms.Has(rbac.RoleFromContext(r.Context()), "assessment:view-all")
}

func reportViewerSeesAll(r *http.Request) bool {
	return perms.Has(rbac.RoleFromContext(r.Context()), "report:view-all")
}

// canTouchSession gates mutating operations. Only the session owner may
// answer, complete, or abandon; elevated roles get read access, not write.
func canTouchSession(r *http.Request, s assessment.Session) bool {
	return s.UserID == authmw.SubjectFromContext(r.Context())
}

func canViewSession(r *http.Request, s assessment.Session) bool {
	return canTouchSession(r, s) || viewerSeesAll(r) || reportViewerSeesAll(r)
}

func canManageCatalog(r *http.Request) bool {
	return perms.Has(rbac.RoleFromContext(r.Context()), "catalog:manage")
}
