package validators

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

// Query reads typed values from a request's query string.
type Query struct {
	values url.Values
}

func QueryOf(r *http.Request) Query {
	return Query{values: r.URL.Query()}
}

// String returns the trimmed value, or "" when absent.
func (q Query) String(key string) string {
	return strings.TrimSpace(q.values.Get(key))
}

// Int returns fallback when key is absent and rejects values outside [min, max].
func (q Query) Int(key string, fallback, min, max int) (int, error) {
	raw := q.String(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").
			WithDetails(map[string]any{"field": key})
	}
	if n < min || n > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return n, nil
}

// Bool accepts the strconv.ParseBool spellings and returns false when absent.
func (q Query) Bool(key string) (bool, error) {
	raw := q.String(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be true or false").
			WithDetails(map[string]any{"field": key})
	}
	return v, nil
}
