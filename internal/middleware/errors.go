package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// Problem represents an RFC 7807 problem details object
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Trace  string `json:"trace_id,omitempty"`
}

// Render implements the chi render.Renderer interface
func (p Problem) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, p.Status)
	return nil
}

// NewProblem builds a problem for status with the request's trace id
func NewProblem(r *http.Request, status int, detail string) Problem {
	title := http.StatusText(status)
	return Problem{
		Type:   "/errors/" + strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Title:  title,
		Status: status,
		Detail: detail,
		Trace:  GetRequestID(r.Context()),
	}
}

// WriteProblem renders a problem document
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	p := NewProblem(r, status, detail)
	if err := render.Render(w, r, p); err != nil {
		http.Error(w, p.Title, status)
	}
}
