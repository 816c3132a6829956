package server

import (
	"errors"
	"net/http"
	"strconv"

	"sharexp/storage/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func sendError(c *gin.Context, errorCode int, message string) {
	log.Info(message)
	c.JSON(errorCode, gin.H{
		"error": message,
	})
}

// sendFailure answers with the status matching err's sentinel.
func sendFailure(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Errorf("Error handling %s %s: %v", c.Request.Method, c.FullPath(), err)
		sendError(c, status, "Server Error")
		return
	}
	sendError(c, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func getQueryInt(c *gin.Context, key string, defaultValue int64) (int64, bool) {
	value := c.Query(key)
	if value == "" {
		return defaultValue, true
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
