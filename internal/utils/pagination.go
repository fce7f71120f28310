package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetLimitParam reads ?limit=, falling back to def and capping at max.
func GetLimitParam(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
