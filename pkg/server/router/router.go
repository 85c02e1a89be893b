// Package router contains the handler functions behind the wallet's HTTP
// API. The API is a thin shell adapter: events are enqueued on the engine and
// acknowledged immediately; the view endpoint serves the latest snapshot.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON body returned for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{Error: message})
}

// Health is a simple handler that always responds with a 200 OK
func Health(c *gin.Context) {
	status := struct {
		Status string `json:"status"`
	}{
		Status: "OK",
	}
	c.IndentedJSON(http.StatusOK, status)
}
