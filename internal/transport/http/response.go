package httptransport

import (
	"github.com/gin-gonic/gin"

	apperrors "voice3d-server/internal/platform/errors"
)

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// ErrorData is the data of a failed command.
type ErrorData struct {
	Kind string `json:"kind"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{Success: true, Message: message, Code: httpStatus, Data: data})
}

func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{Success: false, Message: message, Code: httpStatus, Data: data})
}

// RespondFailure reports a pipeline error with its kind and attaches it to
// the gin context for the span middleware.
func RespondFailure(c *gin.Context, httpStatus int, err error) {
	_ = c.Error(err)
	RespondError(c, httpStatus, apperrors.Detail(err), ErrorData{Kind: string(apperrors.KindOf(err))})
}
