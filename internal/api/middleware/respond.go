package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/antcore/internal/domain/runtime"
)

// ContentType is the media type of every control response body.
const ContentType = "text/html"

// Respond writes a Result as the complete response: Code as the status and
// Message as the body, with an explicit Content-Length.
func Respond(c *gin.Context, result runtime.Result) {
	c.Header("Content-Length", strconv.Itoa(len(result.Message)))
	c.Data(result.Code, ContentType, []byte(result.Message))
}

// Abort writes a Result and stops the handler chain.
func Abort(c *gin.Context, result runtime.Result) {
	Respond(c, result)
	c.Abort()
}
