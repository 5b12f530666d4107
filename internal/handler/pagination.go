package handler

import (
	"net/http"
	"strconv"
)

const MaxLimit = 500

// ParseLimit reads the limit query parameter. Zero means "use the default"
// and is returned for missing, malformed or non-positive values.
func ParseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 0
	}
	return min(limit, MaxLimit)
}
