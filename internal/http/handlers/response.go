package handlers

import (
	"net/http"
	"strconv"

	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/Dhoini/steadybooks-integration/pkg/res"

	"github.com/gin-gonic/gin"
)

// abortWithError отправляет JSON ошибки и прерывает цепочку gin.
func abortWithError(c *gin.Context, status int, message string, log *logger.Logger) {
	res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: message}, status, log)
	c.Abort()
}

// dashboardID читает :dashboard_id из пути. При ошибке ответ уже отправлен.
func dashboardID(c *gin.Context, log *logger.Logger) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("dashboard_id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "Invalid dashboard ID", log)
		return 0, false
	}
	return id, true
}
