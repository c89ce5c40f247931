package query

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"qitp/pkg/domain"
)

func sampleRecords() []domain.Record {
	return []domain.Record{
		{"id": "1", "name": "绿源种业", "code": "E003", "status": "ACTIVE", "capacity": 30.0, "contact": map[string]any{"name": "Zhang"}},
		{"id": "2", "name": "Blue Harbor Seeds", "code": "E001", "status": "SUSPENDED", "capacity": 120.0, "contact": map[string]any{"name": "Li"}},
		{"id": "3", "name": "安平苗木", "code": "E002", "status": "ACTIVE", "capacity": 5.0, "contact": map[string]any{"name": "wang"}},
		{"id": "4", "name": "green harbor", "code": "E004", "status": "ACTIVE", "urgent": true},
	}
}

func recordIDs(records []domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}

func TestLookup(t *testing.T) {
	r := domain.Record{"a": map[string]any{"b": map[string]any{"c": "deep"}}, "flat": 1.0}
	v, ok := Lookup(r, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, "deep", v)

	_, ok = Lookup(r, "a.missing")
	assert.False(t, ok)
	_, ok = Lookup(r, "flat.inner")
	assert.False(t, ok)
	_, ok = Lookup(r, "")
	assert.False(t, ok)
}

func TestFilter(t *testing.T) {
	items := sampleRecords()
	cases := []struct {
		name       string
		conditions map[string]any
		want       []string
	}{
		{"empty conditions", nil, []string{"1", "2", "3", "4"}},
		{"empty string value skipped", map[string]any{"status": ""}, []string{"1", "2", "3", "4"}},
		{"nil value skipped", map[string]any{"status": nil}, []string{"1", "2", "3", "4"}},
		{"case insensitive substring", map[string]any{"name": "HARBOR"}, []string{"2", "4"}},
		{"dotted path", map[string]any{"contact.name": "li"}, []string{"2"}},
		{"numeric equality", map[string]any{"capacity": 5}, []string{"3"}},
		{"bool equality", map[string]any{"urgent": true}, []string{"4"}},
		{"missing field excluded", map[string]any{"urgent": "true"}, []string{"4"}},
		{"all conditions must hold", map[string]any{"status": "active", "name": "harbor"}, []string{"4"}},
		{"numeric field matched as text", map[string]any{"capacity": "12"}, []string{"2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter(items, tc.conditions)
			if diff := cmp.Diff(tc.want, recordIDs(got)); diff != "" {
				t.Fatalf("filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
	require.Len(t, items, 4)
}

func TestFilterStringConditionProperty(t *testing.T) {
	items := sampleRecords()
	for _, needle := range []string{"e", "H", "种", "seeds", "zzz"} {
		for _, r := range Filter(items, map[string]any{"name": needle}) {
			require.Contains(t, strings.ToLower(r.String("name")), strings.ToLower(needle))
		}
	}
}

func TestSearch(t *testing.T) {
	items := sampleRecords()
	got := Search(items, "e00", "name", "code")
	assert.Equal(t, []string{"1", "2", "3", "4"}, recordIDs(got))

	got = Search(items, "安平", "name", "code")
	assert.Equal(t, []string{"3"}, recordIDs(got))

	got = Search(items, "  ", "name")
	assert.Len(t, got, 4)

	got = Search(items, "wang", "contact.name")
	assert.Equal(t, []string{"3"}, recordIDs(got))
}

func TestParseOrder(t *testing.T) {
	for raw, want := range map[string]Order{"asc": Ascending, "ascend": Ascending, "DESC": Descending, "descend": Descending} {
		got, ok := ParseOrder(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got)
	}
	_, ok := ParseOrder("sideways")
	require.False(t, ok)
}

func TestSortNumeric(t *testing.T) {
	items := sampleRecords()
	asc := Sort(items, "capacity", "ascend")
	// Record 4 has no capacity and sorts first.
	assert.Equal(t, []string{"4", "3", "1", "2"}, recordIDs(asc))
	desc := Sort(items, "capacity", "descend")
	assert.Equal(t, []string{"2", "1", "3", "4"}, recordIDs(desc))
	assert.Equal(t, []string{"1", "2", "3", "4"}, recordIDs(items), "input must not be reordered")
}

func TestSortStrings(t *testing.T) {
	items := sampleRecords()
	byCode := Sort(items, "code", "asc")
	assert.Equal(t, []string{"2", "3", "1", "4"}, recordIDs(byCode))

	english := NewSorter(language.English).Sort(items, "contact.name", "asc")
	assert.Equal(t, []string{"4", "2", "3", "1"}, recordIDs(english))
}

func TestSortMixedTypesIsOrderIndependent(t *testing.T) {
	items := []domain.Record{
		{"id": "ten", "v": 10.0},
		{"id": "b", "v": "b"},
		{"id": "two", "v": 2.0},
		{"id": "none"},
		{"id": "a", "v": "a"},
		{"id": "nine", "v": "9"},
	}
	want := []string{"none", "two", "ten", "nine", "a", "b"}
	sorter := NewSorter(language.English)
	rng := rand.New(rand.NewSource(3))
	for round := 0; round < 20; round++ {
		shuffled := slices.Clone(items)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		require.Equal(t, want, recordIDs(sorter.Sort(shuffled, "v", "asc")))
		desc := recordIDs(sorter.Sort(shuffled, "v", "desc"))
		slices.Reverse(desc)
		require.Equal(t, want, desc)
	}
}

func TestSortNoOp(t *testing.T) {
	items := sampleRecords()
	assert.Equal(t, recordIDs(items), recordIDs(Sort(items, "", "asc")))
	assert.Equal(t, recordIDs(items), recordIDs(Sort(items, "code", "")))
}

func TestSortPermutationAndReverseProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := rng.Intn(20)
		items := make([]domain.Record, n)
		for i := range items {
			// Few distinct values so ties are common.
			items[i] = domain.Record{"id": fmt.Sprint(i), "v": float64(rng.Intn(4)), "s": string(rune('a' + rng.Intn(3)))}
		}
		for _, field := range []string{"v", "s"} {
			asc := recordIDs(Sort(items, field, "asc"))
			desc := recordIDs(Sort(items, field, "desc"))

			sortedIn := recordIDs(items)
			slices.Sort(sortedIn)
			sortedAsc := slices.Clone(asc)
			slices.Sort(sortedAsc)
			require.Equal(t, sortedIn, sortedAsc, "ascending must be a permutation")

			reversed := slices.Clone(desc)
			slices.Reverse(reversed)
			require.Equal(t, asc, reversed, "ascending must equal reversed descending")
		}
	}
}

func TestPaginate(t *testing.T) {
	items := sampleRecords()
	page := Paginate(items, 2, 3)
	assert.Equal(t, []string{"4"}, recordIDs(page.Items))
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.Current)
	assert.Equal(t, 3, page.PageSize)

	page = Paginate(items, 0, 0)
	assert.Equal(t, 1, page.Current)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Len(t, page.Items, 4)

	page = Paginate(items, 99, 3)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 4, page.Total)

	page = Paginate(nil, 1, 10)
	assert.NotNil(t, page.Items)
	assert.Zero(t, page.Total)

	page = Paginate(items, 1, math.MaxInt)
	assert.Len(t, page.Items, 4)
	assert.Equal(t, math.MaxInt, page.PageSize)

	page = Paginate(items, 2, math.MaxInt)
	assert.Empty(t, page.Items)
	assert.Equal(t, 4, page.Total)

	page = Paginate(items, math.MaxInt, math.MaxInt)
	assert.Empty(t, page.Items)
}

func TestPaginateReconstructsInputProperty(t *testing.T) {
	for n := 0; n <= 23; n++ {
		items := make([]domain.Record, n)
		for i := range items {
			items[i] = domain.Record{"id": fmt.Sprint(i)}
		}
		for size := 1; size <= 7; size++ {
			var joined []string
			pages := (n + size - 1) / size
			for p := 1; p <= pages; p++ {
				page := Paginate(items, p, size)
				require.LessOrEqual(t, len(page.Items), size)
				require.Equal(t, n, page.Total)
				joined = append(joined, recordIDs(page.Items)...)
			}
			if n == 0 {
				require.Empty(t, joined)
				continue
			}
			require.Equal(t, recordIDs(items), joined)
		}

		whole := Paginate(items, 1, math.MaxInt)
		require.Equal(t, recordIDs(items), recordIDs(whole.Items))
		for p := 2; p <= 4; p++ {
			page := Paginate(items, p, math.MaxInt)
			require.Empty(t, page.Items)
			require.Equal(t, n, page.Total)
		}
	}
}

func TestApplyComposesInOrder(t *testing.T) {
	page := Apply(sampleRecords(), Params{
		Conditions:    map[string]any{"status": "ACTIVE"},
		Keyword:       "e00",
		KeywordFields: []string{"code"},
		SortField:     "code",
		SortOrder:     "desc",
		Page:          1,
		PageSize:      2,
	})
	assert.Equal(t, []string{"4", "1"}, recordIDs(page.Items))
	assert.Equal(t, 3, page.Total)
}
