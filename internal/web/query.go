package web

import (
	"net/url"
	"strconv"
	"strings"

	"gadgets/internal/gadget"
)

const gadgetsPath = "/gadgets"

// PageQuery is the list state carried in the page URL.
type PageQuery struct {
	Search        string
	SortField     string
	SortDirection string
	Page          int
}

// ParsePageQuery reads search, sort_field, sort_direction and page. Invalid
// values are replaced with their defaults.
func ParsePageQuery(v url.Values) PageQuery {
	page, _ := strconv.Atoi(v.Get("page"))
	lq := gadget.ListQuery{
		Search:        strings.TrimSpace(v.Get("search")),
		SortField:     v.Get("sort_field"),
		SortDirection: v.Get("sort_direction"),
		Page:          page,
	}.Normalize()
	return PageQuery(lq)
}

// parseReturn decodes the _return form field posted by the dialogs.
func parseReturn(raw string) PageQuery {
	v, err := url.ParseQuery(raw)
	if err != nil {
		v = url.Values{}
	}
	return ParsePageQuery(v)
}

// ListQuery converts to the service query.
func (q PageQuery) ListQuery() gadget.ListQuery {
	return gadget.ListQuery(q)
}

// Values returns the query parameters; search is omitted when empty.
func (q PageQuery) Values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	v.Set("sort_field", q.SortField)
	v.Set("sort_direction", q.SortDirection)
	v.Set("page", strconv.Itoa(q.Page))
	return v
}

// Params is the JSON echo of the query.
func (q PageQuery) Params() map[string]string {
	v := q.Values()
	out := make(map[string]string, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}

func (q PageQuery) Encode() string {
	return q.Values().Encode()
}

// URL is the list URL for this state.
func (q PageQuery) URL() string {
	return gadgetsPath + "?" + q.Encode()
}

// SortURL toggles the direction of the current sort column, or sorts
// another column ascending.
func (q PageQuery) SortURL(field string) string {
	next := q
	if field == q.SortField {
		if q.SortDirection == "asc" {
			next.SortDirection = "desc"
		} else {
			next.SortDirection = "asc"
		}
	} else {
		next.SortField = field
		next.SortDirection = "asc"
	}
	return next.URL()
}

// SortIcon marks the active sort column.
func (q PageQuery) SortIcon(field string) string {
	switch {
	case field != q.SortField:
		return "↕"
	case q.SortDirection == "asc":
		return "↑"
	default:
		return "↓"
	}
}

func (q PageQuery) PageURL(n int) string {
	next := q
	next.Page = n
	return next.URL()
}

// DialogURL opens a dialog over the current list. id is ignored for create.
func (q PageQuery) DialogURL(kind string, id uint) string {
	v := q.Values()
	v.Set("dialog", kind)
	if id != 0 {
		v.Set("id", strconv.FormatUint(uint64(id), 10))
	}
	return gadgetsPath + "?" + v.Encode()
}
