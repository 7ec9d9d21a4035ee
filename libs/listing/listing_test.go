package listing

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statusSpec = Spec{
	Sort:        map[string]string{"name": "s.name", "created_at": "s.created_at"},
	DefaultSort: "name",
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse(url.Values{}, statusSpec)
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 1, PageSize: 10, Sort: "name", Order: "asc"}, p)
	assert.Equal(t, 0, p.Offset())
}

func TestParse_Values(t *testing.T) {
	p, err := Parse(url.Values{
		"q":         {"  pend "},
		"page":      {"3"},
		"page_size": {"500"},
		"sort":      {"created_at"},
		"order":     {"DESC"},
	}, statusSpec)
	require.NoError(t, err)
	assert.Equal(t, "pend", p.Q)
	assert.Equal(t, MaxPageSize, p.PageSize)
	assert.Equal(t, 200, p.Offset())
	assert.Equal(t, " ORDER BY s.created_at DESC, s.id DESC", p.OrderBy(statusSpec, "s.id"))
}

func TestParse_UnknownSortFallsBack(t *testing.T) {
	p, err := Parse(url.Values{"sort": {"password_hash"}}, statusSpec)
	require.NoError(t, err)
	assert.Equal(t, "name", p.Sort)
}

func TestParse_Invalid(t *testing.T) {
	for _, v := range []url.Values{
		{"page": {"0"}},
		{"page": {"x"}},
		{"page_size": {"-1"}},
		{"order": {"sideways"}},
	} {
		_, err := Parse(v, statusSpec)
		assert.Error(t, err, v.Encode())
	}
}

func TestWhere(t *testing.T) {
	var w Where
	assert.Equal(t, "", w.SQL())

	w.Eq("a.status", "ACTIVA")
	w.Eq("a.physician_id", "")
	w.Search("100%_x", "u.first_name", "u.last_name")
	w.And("a.appointment_date >= " + w.Arg("2025-03-01") + "::date")

	assert.Equal(t,
		" WHERE a.status = $1 AND (u.first_name ILIKE $2 OR u.last_name ILIKE $2) AND a.appointment_date >= $3::date",
		w.SQL())
	countArgs := w.Args()
	assert.Equal(t, []any{"ACTIVA", `%100\%\_x%`, "2025-03-01"}, countArgs)

	limit := w.LimitOffset(Params{Page: 2, PageSize: 10})
	assert.Equal(t, " LIMIT $4 OFFSET $5", limit)
	assert.Len(t, countArgs, 3)
	assert.Equal(t, []any{"ACTIVA", `%100\%\_x%`, "2025-03-01", 10, 10}, w.Args())
}

func TestNewPage(t *testing.T) {
	page := NewPage[string](nil, 21, Params{Page: 2, PageSize: 10})
	assert.NotNil(t, page.Items)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 21, page.Total)
}
