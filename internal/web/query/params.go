package query

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Pagination defaults
const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// dateLayout is the calendar date format accepted by from/to
const dateLayout = "2006-01-02"

// ParamError reports an invalid query parameter
type ParamError struct {
	Param   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Message)
}

// Page is a validated page request
type Page struct {
	Page    int
	PerPage int
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Limit returns the maximum number of rows to return
func (p Page) Limit() int {
	return p.PerPage
}

// DateRange bounds a list by creation time. Zero values mean unbounded.
// To is exclusive.
type DateRange struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether the range is unbounded on both sides
func (d DateRange) IsZero() bool {
	return d.From.IsZero() && d.To.IsZero()
}

// ListParams bundles the common list query parameters
type ListParams struct {
	Page   Page
	Range  DateRange
	Search string
	Sort   []string
}

// ParsePage parses page and per_page.
// Example: ?page=2&per_page=50
func ParsePage(r *http.Request) (Page, error) {
	q := r.URL.Query()
	page, err := positiveInt(q.Get("page"), "page", DefaultPage)
	if err != nil {
		return Page{}, err
	}
	perPage, err := positiveInt(q.Get("per_page"), "per_page", DefaultPerPage)
	if err != nil {
		return Page{}, err
	}
	if perPage > MaxPerPage {
		return Page{}, &ParamError{Param: "per_page", Message: fmt.Sprintf("must not exceed %d", MaxPerPage)}
	}
	return Page{Page: page, PerPage: perPage}, nil
}

// ParseDateRange parses from and to. Both accept a calendar date or an
// RFC 3339 timestamp; a calendar date in to includes that whole day.
// Example: ?from=2025-01-01&to=2025-01-31
func ParseDateRange(r *http.Request) (DateRange, error) {
	q := r.URL.Query()

	var (
		dr  DateRange
		err error
	)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if dr.From, _, err = parseTime(v); err != nil {
			return DateRange{}, &ParamError{Param: "from", Message: err.Error()}
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, dateOnly, err := parseTime(v)
		if err != nil {
			return DateRange{}, &ParamError{Param: "to", Message: err.Error()}
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1)
		}
		dr.To = to
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && !dr.From.Before(dr.To) {
		return DateRange{}, &ParamError{Param: "from", Message: "must be before to"}
	}
	return dr, nil
}

// ParseSort parses the sort query parameter against an allow-list.
// Example: ?sort=-created_at,name returns ["-created_at", "name"]
func ParseSort(r *http.Request, allowed ...string) ([]string, error) {
	raw := r.URL.Query().Get("sort")
	if raw == "" {
		return nil, nil
	}

	allow := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		allow[a] = struct{}{}
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		field := strings.TrimSpace(part)
		if field == "" {
			continue
		}
		if _, ok := allow[strings.TrimPrefix(field, "-")]; !ok {
			return nil, &ParamError{Param: "sort", Message: fmt.Sprintf("unknown field %q", strings.TrimPrefix(field, "-"))}
		}
		result = append(result, field)
	}
	return result, nil
}

// ParseList parses page, date range, search (q) and sort together
func ParseList(r *http.Request, sortable ...string) (ListParams, error) {
	page, err := ParsePage(r)
	if err != nil {
		return ListParams{}, err
	}
	dr, err := ParseDateRange(r)
	if err != nil {
		return ListParams{}, err
	}
	sort, err := ParseSort(r, sortable...)
	if err != nil {
		return ListParams{}, err
	}
	return ListParams{
		Page:   page,
		Range:  dr,
		Search: strings.TrimSpace(r.URL.Query().Get("q")),
		Sort:   sort,
	}, nil
}

func positiveInt(raw, param string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParamError{Param: param, Message: "must be an integer"}
	}
	if n < 1 {
		return 0, &ParamError{Param: param, Message: "must be at least 1"}
	}
	return n, nil
}

// parseTime accepts a calendar date (UTC midnight) or an RFC 3339 timestamp
func parseTime(v string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, true, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC 3339 timestamp")
}
