package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gonglijing/clinisense/internal/pipeline"
)

const maxPageSize = 100

// 保留参数，其余参数名只有在字段声明为可过滤时才作为过滤条件
var reservedParams = map[string]struct{}{
	"search": {}, "sort": {}, "dir": {}, "group": {}, "page": {}, "page_size": {},
}

// parseListQuery 从查询串读取列表参数。page 从 0 开始，与响应中的 page_index 一致。
// 同一过滤键可重复出现，表示多个取值之一。
func parseListQuery[T any](r *http.Request, fields pipeline.Fields[T]) pipeline.Query {
	values := r.URL.Query()
	q := pipeline.Query{
		Search:   strings.TrimSpace(values.Get("search")),
		SortKey:  values.Get("sort"),
		SortDir:  strings.ToLower(values.Get("dir")),
		GroupBy:  values.Get("group"),
		PageSize: pipeline.DefaultPageSize,
	}
	if q.SortDir != pipeline.SortDesc {
		q.SortDir = pipeline.SortAsc
	}
	if p, err := strconv.Atoi(values.Get("page")); err == nil && p > 0 {
		q.PageIndex = p
	}
	if ps, err := strconv.Atoi(values.Get("page_size")); err == nil && ps > 0 {
		q.PageSize = ps
		if q.PageSize > maxPageSize {
			q.PageSize = maxPageSize
		}
	}

	for key, raw := range values {
		if _, reserved := reservedParams[key]; reserved {
			continue
		}
		f, ok := fields[key]
		if !ok || !f.Filterable {
			continue
		}
		for _, v := range raw {
			if v = strings.TrimSpace(v); v == "" {
				continue
			}
			if q.Filters == nil {
				q.Filters = make(map[string][]string)
			}
			q.Filters[key] = append(q.Filters[key], v)
		}
	}
	return q
}
