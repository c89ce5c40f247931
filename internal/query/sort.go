package query

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"qitp/pkg/domain"
)

// Order is a sort direction.
type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// ParseOrder accepts asc/ascend and desc/descend (the spellings table
// components send) case-insensitively.
func ParseOrder(raw string) (Order, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "asc", "ascend", "ascending":
		return Ascending, true
	case "desc", "descend", "descending":
		return Descending, true
	default:
		return "", false
	}
}

// Sorter orders records by a field using numeric comparison for numbers and
// locale-aware collation for everything else.
type Sorter struct {
	tag language.Tag
}

// NewSorter returns a sorter collating strings for the given language.
func NewSorter(tag language.Tag) *Sorter {
	return &Sorter{tag: tag}
}

// DefaultSorter collates for Chinese, the language of the record contents.
var DefaultSorter = NewSorter(language.Chinese)

// Sort orders items with DefaultSorter.
func Sort(items []domain.Record, field, order string) []domain.Record {
	return DefaultSorter.Sort(items, field, order)
}

// Sort returns a sorted copy of items. An empty field or an unrecognised
// order returns the input order unchanged. Records missing the field sort
// first in ascending order. Descending is the exact reverse of ascending.
func (s *Sorter) Sort(items []domain.Record, field, order string) []domain.Record {
	out := make([]domain.Record, len(items))
	copy(out, items)
	dir, ok := ParseOrder(order)
	if field == "" || !ok {
		return out
	}
	// collate.Collator keeps scratch buffers and must not be shared between goroutines.
	c := collate.New(s.tag)
	slices.SortStableFunc(out, func(a, b domain.Record) int {
		av, aok := Lookup(a, field)
		bv, bok := Lookup(b, field)
		return compareValues(c, av, aok && av != nil, bv, bok && bv != nil)
	})
	if dir == Descending {
		slices.Reverse(out)
	}
	return out
}

// Value ranks within one column: missing, then numbers, then everything else.
const (
	rankMissing = iota
	rankNumber
	rankText
)

func rankOf(v any, present bool) (int, float64) {
	if !present {
		return rankMissing, 0
	}
	if f, ok := toFloat(v); ok {
		return rankNumber, f
	}
	return rankText, 0
}

// compareValues orders by rank first so mixed columns still sort totally.
func compareValues(c *collate.Collator, a any, aok bool, b any, bok bool) int {
	ar, af := rankOf(a, aok)
	br, bf := rankOf(b, bok)
	if ar != br {
		return cmp.Compare(ar, br)
	}
	switch ar {
	case rankMissing:
		return 0
	case rankNumber:
		return cmp.Compare(af, bf)
	default:
		return c.CompareString(stringify(a), stringify(b))
	}
}
