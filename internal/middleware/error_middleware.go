package middleware

import (
	"github.com/gin-gonic/gin"

	"veilchat/internal/transport/httpdto"
	"veilchat/pkg/logger"
)

// ErrorHandler renders errors that handlers attached to the gin context
// instead of writing a response themselves.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.Errorf("request error: %s", err.Error())
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(httpdto.ErrorStatus(err), httpdto.NewErrorResponse(httpdto.ErrorMessage(err), httpdto.ErrorCode(err)))
	}
}
