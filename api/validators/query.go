package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/pagination"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func queryError(key, msg string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

// ParseQueryInt reads key as an int in [min, max], defaulting when absent.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "query parameter must be numeric", nil)
	}
	if value < min || value > max {
		return 0, queryError(key, "query parameter out of range", map[string]any{"min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool accepts the strconv.ParseBool spellings and defaults to false.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, queryError(key, key+" must be a boolean", nil)
	}
	return value, nil
}

// ParsePageParams reads limit plus either cursor or page. Asking for both is
// rejected since they describe different positions.
func ParsePageParams(r *http.Request) (pagination.Params, error) {
	limit, err := ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	page, err := ParseQueryInt(r, "page", 0, 1, pagination.MaxPage)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := queryValue(r, "cursor")
	if cursor != "" && page > 0 {
		return pagination.Params{}, queryError("page", "use either cursor or page", nil)
	}
	return pagination.Params{Limit: limit, Cursor: cursor, Page: page}, nil
}
