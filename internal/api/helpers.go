package api

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// ParseLimit reads an optional limit query parameter, bounded to
// [1, maxListLimit]. Absent or zero yields the default.
func ParseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit: must be a non-negative integer")
	}
	if n == 0 {
		return defaultListLimit, nil
	}
	if n > maxListLimit {
		return 0, fmt.Errorf("limit: must be <= %d", maxListLimit)
	}
	return n, nil
}

// ParseOffset reads an optional offset query parameter.
func ParseOffset(r *http.Request) (int, error) {
	v := r.URL.Query().Get("offset")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("offset: must be a non-negative integer")
	}
	return n, nil
}

func writeInvalidArgument(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
}
