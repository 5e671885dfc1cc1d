package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxStudentBody caps request bodies on the public student endpoints.
const MaxStudentBody = 1 << 20

// BodyLimit caps the request body at n bytes. Reads past the cap fail, which
// the JSON binders report as a bad request.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
