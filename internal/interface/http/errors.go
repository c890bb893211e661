package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-ddd-friendship/pkg/apperror"
	"github.com/oksasatya/go-ddd-friendship/pkg/response"
)

// writeError maps an application error onto the response envelope. Only
// the client-safe message leaves the process.
func writeError(c *gin.Context, err error) {
	response.Error[any](c, apperror.HTTPStatus(err), apperror.MessageOf(err), apperror.CodeOf(err))
}

// pathID parses a positive integer path parameter. Anything else is
// answered with 404 as if the route did not match.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error[any](c, http.StatusNotFound, "Not found.", apperror.CodeNotFound)
		return 0, false
	}
	return id, true
}
