package query

import "qitp/pkg/domain"

// Page is one slice of a result set.
type Page struct {
	Items    []domain.Record
	Total    int
	Current  int
	PageSize int
}

// Paginate returns items[(page-1)*pageSize : page*pageSize] clipped to the
// slice bounds. page < 1 is treated as 1 and pageSize < 1 as DefaultPageSize.
// Items is never nil.
func Paginate(items []domain.Record, page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	total := len(items)
	start := total
	if page-1 <= total/pageSize {
		start = min((page-1)*pageSize, total)
	}
	end := start + min(pageSize, total-start)
	out := make([]domain.Record, 0, end-start)
	out = append(out, items[start:end]...)
	return Page{Items: out, Total: total, Current: page, PageSize: pageSize}
}

// Params bundles the list parameters a handler collects from a request.
type Params struct {
	Conditions    map[string]any
	Keyword       string
	KeywordFields []string
	SortField     string
	SortOrder     string
	Page          int
	PageSize      int
}

// Apply runs filter -> search -> sort -> paginate with DefaultSorter.
func Apply(items []domain.Record, p Params) Page {
	return DefaultSorter.Apply(items, p)
}

// Apply runs filter -> search -> sort -> paginate.
func (s *Sorter) Apply(items []domain.Record, p Params) Page {
	filtered := Filter(items, p.Conditions)
	filtered = Search(filtered, p.Keyword, p.KeywordFields...)
	sorted := s.Sort(filtered, p.SortField, p.SortOrder)
	return Paginate(sorted, p.Page, p.PageSize)
}
