package api

import (
	stderrors "errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lexfield/regscreen/internal/errors"
)

// respondError translates a service error into the API error envelope.
// AppError codes drive the HTTP status; anything else is a 500.
func respondError(c *gin.Context, err error, action string) {
	body := gin.H{
		"error":     "Failed to " + action + ": " + err.Error(),
		"timestamp": time.Now(),
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body["error"] = "Failed to " + action + ": " + appErr.Message
		body["code"] = appErr.Code
		if appErr.Details != "" {
			body["details"] = appErr.Details
		}
	}

	c.JSON(errors.HTTPStatus(err), body)
}
