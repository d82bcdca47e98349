package query

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/valyala/fasttemplate"
)

// 查询模板中的过滤器占位符写作 ${filters}
const (
	filterTag = "filters"
	tagStart  = "${"
	tagEnd    = "}"
)

// BuildFilterFragment 根据标签过滤器构造匹配器片段，
// 同一标签的取值以 | 连接成正则多选，如 instance=~"a|b",job=~"x"
func BuildFilterFragment(filters map[string][]string) string {
	if len(filters) == 0 {
		return ""
	}
	labels := make([]string, 0, len(filters))
	for label := range filters {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	fragments := make([]string, 0, len(labels))
	for _, label := range labels {
		fragments = append(fragments, fmt.Sprintf(`%s=~"%s"`, label, strings.Join(filters[label], "|")))
	}
	return strings.Join(fragments, ",")
}

// BuildQuery 将模板中所有 ${filters} 占位符替换为过滤器片段。
// filtersAllowed 为 false 或过滤器为空时替换为空串；
// 不含占位符的模板原样返回。纯函数，相同输入结果恒定。
func BuildQuery(template string, filters map[string][]string, filtersAllowed bool) string {
	fragment := ""
	if filtersAllowed {
		fragment = BuildFilterFragment(filters)
	}
	return fasttemplate.ExecuteFuncString(template, tagStart, tagEnd,
		func(w io.Writer, tag string) (int, error) {
			if tag == filterTag {
				return w.Write([]byte(fragment))
			}
			// 其它占位符不属于本引擎，原样保留
			return fmt.Fprintf(w, "%s%s%s", tagStart, tag, tagEnd)
		})
}
