package handlers

import (
	"io"
	"net/http/httptest"

	"github.com/Dhoini/steadybooks-integration/internal/middleware"

	"github.com/gin-gonic/gin"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// withTenant подменяет JWT-мидлварь: выставляет тенанта как RequireAuth.
func withTenant(tenantID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenantID != "" {
			c.Set(string(middleware.ContextTenantIDKey), tenantID)
		}
		c.Next()
	}
}

func serve(router *gin.Engine, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var jsonHeaders = map[string]string{"Content-Type": "application/json"}
