package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/cinelines/internal/ingest"
	"github.com/hyperengineering/cinelines/internal/query"
	"github.com/hyperengineering/cinelines/internal/store"
	"github.com/hyperengineering/cinelines/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusBadRequest: {
		typeURI: "https://cinelines.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://cinelines.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusRequestEntityTooLarge: {
		typeURI: "https://cinelines.dev/errors/payload-too-large",
		title:   "Payload Too Large",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://cinelines.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusTooManyRequests: {
		typeURI: "https://cinelines.dev/errors/rate-limit",
		title:   "Too Many Requests",
	},
	http.StatusInternalServerError: {
		typeURI: "https://cinelines.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://cinelines.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
}

func lookupProblemType(status int) problemType {
	if pt, ok := problemTypes[status]; ok {
		return pt
	}
	return problemType{
		typeURI: "https://cinelines.dev/errors/unknown",
		title:   http.StatusText(status),
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt := lookupProblemType(status)
	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
	writeProblemBody(w, status, p)
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := lookupProblemType(http.StatusUnprocessableEntity)
	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}
	writeProblemBody(w, http.StatusUnprocessableEntity, p)
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := ingest.AsRejection(err); ok {
		WriteProblem(w, r, http.StatusNotFound, rej.Message)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, query.ErrInvalidSort):
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrClosed):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
	default:
		slog.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
		)
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
