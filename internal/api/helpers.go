package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/store"
)

var errNoSuchRecord = errors.New("record not found")

// pageFromQuery reads ?limit= and ?offset=.
func pageFromQuery(r *http.Request) (store.Page, error) {
	var p store.Page
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, apperrors.Invalid("parse_page", "limit must be a non-negative integer")
		}
		p.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, apperrors.Invalid("parse_page", "offset must be a non-negative integer")
		}
		p.Offset = n
	}
	return p.Normalize(), nil
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.Invalid("parse_query", "%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

// foundOr404 turns a (nil, nil) store lookup into a not-found error. It
// takes the lookup's results directly: foundOr404(s.GetCase(ctx, t, id)).
func foundOr404[T any](v *T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperrors.NotFound("lookup", errNoSuchRecord)
	}
	return v, nil
}

// emptyIfNil keeps list responses as JSON arrays.
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
