package dto

import (
	"errors"
	"strings"
)

// MaxQueriesPerRequest bounds the number of queries accepted in one request
const MaxQueriesPerRequest = 256

// Validation errors
var (
	ErrNoQueries      = errors.New("at least one query is required")
	ErrTooManyQueries = errors.New("too many queries in one request")
	ErrEmptyQueryText = errors.New("query text cannot be empty")
	ErrMissingQueryID = errors.New("query id cannot be empty")
	ErrDuplicateQuery = errors.New("duplicate query id in request")
)

// PassageRequest is one retrieved passage of a query
type PassageRequest struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// QueryRequest is one query plus its retrieved passages
type QueryRequest struct {
	ID       string           `json:"id" binding:"required"`
	Text     string           `json:"text" binding:"required"`
	Passages []PassageRequest `json:"passages"`
}

// RefineRequest is the payload of POST /api/v1/refine
type RefineRequest struct {
	Queries []QueryRequest `json:"queries" binding:"required"`
}

// Validate performs validation on RefineRequest
func (r *RefineRequest) Validate() error {
	if len(r.Queries) == 0 {
		return ErrNoQueries
	}
	if len(r.Queries) > MaxQueriesPerRequest {
		return ErrTooManyQueries
	}
	seen := make(map[string]bool, len(r.Queries))
	for _, q := range r.Queries {
		if strings.TrimSpace(q.ID) == "" {
			return ErrMissingQueryID
		}
		if strings.TrimSpace(q.Text) == "" {
			return ErrEmptyQueryText
		}
		if seen[q.ID] {
			return ErrDuplicateQuery
		}
		seen[q.ID] = true
	}
	return nil
}

// ComposedContextResponse is the refined passage list of one query
type ComposedContextResponse struct {
	QueryID  string   `json:"query_id"`
	Passages []string `json:"passages"`
}

// RefineResponse is the response of POST /api/v1/refine
type RefineResponse struct {
	Fingerprint    string                    `json:"fingerprint"`
	FromCache      bool                      `json:"from_cache"`
	CompressionPct float64                   `json:"compression_pct"`
	Contexts       []ComposedContextResponse `json:"contexts"`
}

// ErrorResponse is the generic error payload
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
