package utils

import (
	apiError "diagnostic-service/internal/errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetPaginationParams reads page/limit, defaulting to 1/10. Explicit values
// below 1 are rejected before anything touches the store; limit is capped
// at 100 to bound result sets.
func GetPaginationParams(c *gin.Context) (int, int, error) {
	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}

	limit, err := positiveQueryInt(c, "limit", 10)
	if err != nil {
		return 0, 0, err
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit, nil
}

func positiveQueryInt(c *gin.Context, key string, defaultValue int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, apiError.BadRequest(
			"Parámetros de paginación inválidos",
			"Los parámetros page y limit deben ser números positivos",
			err,
		)
	}
	return value, nil
}
