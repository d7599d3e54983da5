package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"crm-dialer/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveAs(t *testing.T, projectID, role string, chain ...gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", projectID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })

	r := gin.New()
	r.GET("/x", handlers...)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serveAs(t, "p", RoleSuperAdmin, RequireProject(), RequireAnyRole(RoleAdmin)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_ViewerCannotDial(t *testing.T) {
	if code := serveAs(t, "p", RoleViewer, RequireProject(), RequireAnyRole(RoleAgent, RoleAdmin)); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serveAs(t, "p", RoleAgent, RequireProject(), RequireAnyRole(RoleAgent, RoleAdmin)); code != 200 {
		t.Fatalf("expected 200 for agent, got %d", code)
	}
}

func TestRequireProject(t *testing.T) {
	if code := serveAs(t, "", RoleAgent, RequireProject(), RequireAnyRole(RoleAgent)); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRoleHelpers(t *testing.T) {
	if !IsAdmin(RoleSuperAdmin) || !IsAdmin(RoleAdmin) || IsAdmin(RoleAgent) {
		t.Fatalf("IsAdmin mismatch")
	}
	if CanDial(RoleViewer) || !CanDial(RoleAgent) {
		t.Fatalf("CanDial mismatch")
	}
}
