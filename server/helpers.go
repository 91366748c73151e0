package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"skysched/scheduler"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// writeError maps the scheduler error taxonomy onto status codes and the
// {status: error, message} body every endpoint shares. Store failures stay
// opaque 500s; their cause goes to the log, not the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var (
		validationErr *scheduler.ValidationError
		duplicateErr  *scheduler.DuplicateError
		notFoundErr   *scheduler.NotFoundError
		permissionErr *scheduler.PermissionError
	)
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &duplicateErr):
		status = http.StatusConflict
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &permissionErr):
		status = http.StatusForbidden
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		msg = "internal error"
	}

	writeJSON(w, status, errorResponse{Status: "error", Message: msg})
}

func parseFloatQuery(r *http.Request, key string, def float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return f, nil
}
