// Package listing parses list query parameters and builds the matching SQL fragments.
package listing

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Spec describes the sortable columns of one resource.
type Spec struct {
	// Sort maps public sort keys to SQL column expressions.
	Sort         map[string]string
	DefaultSort  string
	DefaultOrder string
}

type Params struct {
	Q        string
	Page     int
	PageSize int
	Sort     string
	Order    string
}

// Parse reads q, page, page_size, sort and order. Unknown sort keys fall back to the default.
func Parse(values url.Values, spec Spec) (Params, error) {
	p := Params{
		Q:        strings.TrimSpace(values.Get("q")),
		Page:     1,
		PageSize: DefaultPageSize,
		Sort:     spec.DefaultSort,
		Order:    "asc",
	}
	if spec.DefaultOrder != "" {
		p.Order = spec.DefaultOrder
	}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Params{}, errors.New("page must be a positive integer")
		}
		p.Page = n
	}
	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Params{}, errors.New("page_size must be a positive integer")
		}
		p.PageSize = min(n, MaxPageSize)
	}
	if key := strings.ToLower(strings.TrimSpace(values.Get("sort"))); key != "" {
		if _, ok := spec.Sort[key]; ok {
			p.Sort = key
		}
	}
	switch strings.ToLower(strings.TrimSpace(values.Get("order"))) {
	case "":
	case "asc":
		p.Order = "asc"
	case "desc":
		p.Order = "desc"
	default:
		return Params{}, errors.New("order must be asc or desc")
	}
	return p, nil
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// OrderBy renders the ORDER BY clause. tiebreak is appended to keep paging stable.
func (p Params) OrderBy(spec Spec, tiebreak string) string {
	col, ok := spec.Sort[p.Sort]
	if !ok {
		col = spec.Sort[spec.DefaultSort]
	}
	dir := "ASC"
	if p.Order == "desc" {
		dir = "DESC"
	}
	clause := " ORDER BY " + col + " " + dir
	if tiebreak != "" && tiebreak != col {
		clause += ", " + tiebreak + " " + dir
	}
	return clause
}

// Where accumulates AND-ed conditions with positional pgx arguments.
type Where struct {
	conds []string
	args  []any
}

// Arg registers v and returns its placeholder.
func (w *Where) Arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *Where) And(cond string) {
	w.conds = append(w.conds, cond)
}

// Eq adds "col = $n" when v is non-empty.
func (w *Where) Eq(col string, v string) {
	if v == "" {
		return
	}
	w.And(col + " = " + w.Arg(v))
}

// Search adds a case-insensitive substring match across columns.
func (w *Where) Search(q string, columns ...string) {
	if q == "" || len(columns) == 0 {
		return
	}
	ph := w.Arg("%" + escapeLike(q) + "%")
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " ILIKE " + ph
	}
	w.And("(" + strings.Join(parts, " OR ") + ")")
}

func (w *Where) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns a copy of the arguments registered so far.
func (w *Where) Args() []any {
	return append([]any(nil), w.args...)
}

// LimitOffset renders the page window and registers its arguments.
func (w *Where) LimitOffset(p Params) string {
	return fmt.Sprintf(" LIMIT %s OFFSET %s", w.Arg(p.PageSize), w.Arg(p.Offset()))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Page is the list response envelope.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.PageSize > 0 {
		pages = (total + p.PageSize - 1) / p.PageSize
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: pages,
	}
}
