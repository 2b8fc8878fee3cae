package pipeline

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/gonglijing/clinisense/internal/models"
)

const (
	// FilterAll 过滤维度上表示“不限制”的取值，查询串中原样保留
	FilterAll = "all"
	// GroupNone 不分组
	GroupNone = "none"

	SortAsc  = "asc"
	SortDesc = "desc"

	DefaultPageSize = 10
)

// FieldKind 字段比较方式
type FieldKind int

const (
	KindText FieldKind = iota
	KindNumber
	KindDate
)

// Field 列表记录上的一个可查询字段。Text 返回字段的文本形式，
// 搜索、过滤、分组都用它；数字与日期字段排序时再从文本解析。
type Field[T any] struct {
	Kind       FieldKind
	Text       func(T) string
	Searchable bool
	Filterable bool
}

// Fields 字段名 -> 字段定义
type Fields[T any] map[string]Field[T]

// TextField 文本字段
func TextField[T any](fn func(T) string) Field[T] {
	return Field[T]{Kind: KindText, Text: fn}
}

// NumberField 数值字段，ok=false 表示缺失
func NumberField[T any](fn func(T) (float64, bool)) Field[T] {
	return Field[T]{Kind: KindNumber, Text: func(r T) string {
		v, ok := fn(r)
		if !ok {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}}
}

// DateField 日期字段
func DateField[T any](fn func(T) models.Timestamp) Field[T] {
	return Field[T]{Kind: KindDate, Text: func(r T) string {
		return fn(r).Raw
	}}
}

// Search 标记为可搜索
func (f Field[T]) Search() Field[T] {
	f.Searchable = true
	return f
}

// Filter 标记为可过滤
func (f Field[T]) Filter() Field[T] {
	f.Filterable = true
	return f
}

// Filterable 可过滤字段名
func (fs Fields[T]) Filterable() []string {
	names := make([]string, 0, len(fs))
	for name, f := range fs {
		if f.Filterable {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Has 字段是否存在
func (fs Fields[T]) Has(name string) bool {
	_, ok := fs[name]
	return ok
}

// Query 列表查询参数
type Query struct {
	Search    string              `json:"search"`
	Filters   map[string][]string `json:"filters,omitempty"`
	SortKey   string              `json:"sort"`
	SortDir   string              `json:"dir"`
	GroupBy   string              `json:"group"`
	PageIndex int                 `json:"page"`
	PageSize  int                 `json:"page_size"`
}

// Group 分组结果
type Group[T any] struct {
	Key     string `json:"key"`
	Count   int    `json:"count"`
	Records []T    `json:"records"`
}

// Result 列表查询结果。分组时 Page 为完整的排序结果，分页字段无意义。
type Result[T any] struct {
	Page       []T        `json:"page"`
	TotalCount int        `json:"total_count"`
	TotalPages int        `json:"total_pages"`
	PageIndex  int        `json:"page_index"`
	PageSize   int        `json:"page_size"`
	Grouped    bool       `json:"grouped"`
	Groups     []Group[T] `json:"groups,omitempty"`
}

// Grouping 是否启用分组
func (q Query) Grouping() bool {
	g := strings.TrimSpace(q.GroupBy)
	return g != "" && g != GroupNone
}

// Apply 依次执行 搜索→过滤→排序→分组或分页。输入切片不会被修改，
// 相同输入与参数得到相同输出。
func Apply[T any](records []T, q Query, fields Fields[T]) Result[T] {
	filtered := make([]T, 0, len(records))
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	filters := activeFilters(q.Filters, fields)
	for _, r := range records {
		if needle != "" && !matchSearch(r, needle, fields) {
			continue
		}
		if !matchFilters(r, filters, fields) {
			continue
		}
		filtered = append(filtered, r)
	}

	if f, ok := fields[q.SortKey]; ok && f.Text != nil {
		sortRecords(filtered, f, strings.ToLower(q.SortDir) == SortDesc)
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	res := Result[T]{TotalCount: len(filtered), PageSize: pageSize}

	if gf, ok := fields[q.GroupBy]; ok && q.Grouping() && gf.Text != nil {
		res.Grouped = true
		res.Page = filtered
		res.Groups = groupRecords(filtered, gf)
		res.TotalPages = 1
		return res
	}

	res.TotalPages = TotalPages(len(filtered), pageSize)
	res.PageIndex = ClampPage(q.PageIndex, res.TotalPages)
	start := res.PageIndex * pageSize
	end := start + pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	res.Page = filtered[start:end]
	return res
}

// TotalPages max(1, ceil(count/pageSize))
func TotalPages(count, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := int(math.Ceil(float64(count) / float64(pageSize)))
	if pages < 1 {
		return 1
	}
	return pages
}

// ClampPage 将页码限制在 [0, totalPages-1]
func ClampPage(pageIndex, totalPages int) int {
	if pageIndex < 0 {
		return 0
	}
	if totalPages < 1 {
		totalPages = 1
	}
	if pageIndex > totalPages-1 {
		return totalPages - 1
	}
	return pageIndex
}

func activeFilters[T any](in map[string][]string, fields Fields[T]) map[string][]string {
	out := make(map[string][]string, len(in))
	for key, values := range in {
		f, ok := fields[key]
		if !ok || !f.Filterable || f.Text == nil {
			continue
		}
		wanted := make([]string, 0, len(values))
		unconstrained := false
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == FilterAll {
				unconstrained = true
				break
			}
			if v != "" {
				wanted = append(wanted, v)
			}
		}
		if unconstrained || len(wanted) == 0 {
			continue
		}
		out[key] = wanted
	}
	return out
}

func matchSearch[T any](r T, needle string, fields Fields[T]) bool {
	for _, f := range fields {
		if !f.Searchable || f.Text == nil {
			continue
		}
		if strings.Contains(strings.ToLower(f.Text(r)), needle) {
			return true
		}
	}
	return false
}

func matchFilters[T any](r T, filters map[string][]string, fields Fields[T]) bool {
	for key, wanted := range filters {
		value := fields[key].Text(r)
		hit := false
		for _, w := range wanted {
			if strings.EqualFold(value, w) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

type sortKey struct {
	text    string
	number  float64
	date    time.Time
	present bool
}

func sortRecords[T any](records []T, f Field[T], desc bool) {
	keys := make([]sortKey, len(records))
	for i, r := range records {
		keys[i] = buildSortKey(f, f.Text(r))
	}

	var cmpText func(a, b string) int
	if f.Kind == KindText {
		col := collate.New(language.French)
		cmpText = col.CompareString
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		c := compareKeys(f.Kind, keys[idx[i]], keys[idx[j]], cmpText)
		if desc {
			return c > 0
		}
		return c < 0
	})

	sorted := make([]T, len(records))
	for i, k := range idx {
		sorted[i] = records[k]
	}
	copy(records, sorted)
}

func buildSortKey[T any](f Field[T], text string) sortKey {
	k := sortKey{text: strings.TrimSpace(text)}
	switch f.Kind {
	case KindNumber:
		if v, err := strconv.ParseFloat(k.text, 64); err == nil {
			k.number = v
			k.present = true
		}
	case KindDate:
		if ts := models.ParseTimestamp(k.text); !ts.Time.IsZero() {
			k.date = ts.Time
			k.present = true
		}
	default:
		k.present = k.text != ""
	}
	return k
}

// 缺失值视为空，升序时排在最前
func compareKeys(kind FieldKind, a, b sortKey, cmpText func(a, b string) int) int {
	if !a.present || !b.present {
		switch {
		case a.present == b.present:
			return 0
		case !a.present:
			return -1
		default:
			return 1
		}
	}
	switch kind {
	case KindNumber:
		switch {
		case a.number < b.number:
			return -1
		case a.number > b.number:
			return 1
		}
		return 0
	case KindDate:
		return a.date.Compare(b.date)
	default:
		return cmpText(a.text, b.text)
	}
}

func groupRecords[T any](records []T, f Field[T]) []Group[T] {
	index := make(map[string]int)
	var groups []Group[T]
	for _, r := range records {
		key := f.Text(r)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group[T]{Key: key})
		}
		groups[i].Records = append(groups[i].Records, r)
		groups[i].Count++
	}
	return groups
}
