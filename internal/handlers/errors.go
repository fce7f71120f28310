package handlers

import (
	"net/http"

	"carpool/internal/apperr"
	"carpool/internal/utils"

	"github.com/gin-gonic/gin"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:    http.StatusBadRequest,
	apperr.KindAuthorization: http.StatusForbidden,
	apperr.KindState:         http.StatusConflict,
	apperr.KindConflict:      http.StatusConflict,
	apperr.KindCapacity:      http.StatusConflict,
	apperr.KindNotFound:      http.StatusNotFound,
	apperr.KindUnavailable:   http.StatusServiceUnavailable,
}

// respondError writes the error envelope for err. Errors without a kind are
// reported as internal and their cause is kept on the gin context for the
// request logger.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindInternal {
		_ = c.Error(err)
		utils.InternalServerErrorResponse(c)
		return
	}

	status, known := statusByKind[appErr.Kind]
	if !known {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	utils.ErrorResponseWithDetails(c, status, appErr.Code, appErr.Message, appErr.Details)
}

func bindError(c *gin.Context, err error) {
	utils.BadRequestResponse(c, "Invalid request body: "+err.Error())
}
