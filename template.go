package lazysql

import (
	"fmt"
	"strings"
)

// ParamCountError reports a mismatch between a template's placeholders and
// the supplied parameters. It is raised at rewrite time, before anything
// reaches the driver, and in both directions: parameters outnumbering
// placeholders and placeholders outnumbering parameters.
type ParamCountError struct {
	// Template is the query text, rewritten up to the point of failure.
	Template string
	// Params is the number of top-level parameters supplied.
	Params int
	// TooMany is true when parameters outnumber placeholders.
	TooMany bool
}

func (e *ParamCountError) Error() string {
	if e.TooMany {
		return fmt.Sprintf("lazysql: too many parameters (%d) for template %q", e.Params, e.Template)
	}
	return fmt.Sprintf("lazysql: too few parameters (%d) for template %q", e.Params, e.Template)
}

// FormatQuery rewrites query so that each collection-valued parameter's
// single ? becomes one comma-joined ? per element. An empty collection
// deletes its placeholder. Placeholders correspond positionally to the
// params as supplied, before expansion; ?s inside quoted literals are
// ignored. A template with only scalar params is returned unchanged.
func FormatQuery(query string, params ...Param) (string, error) {
	return expandQuery(query, params)
}

func expandQuery(query string, params []Param) (string, error) {
	hasList := false
	for _, p := range params {
		if _, ok := p.(listParam); ok {
			hasList = true
			break
		}
	}
	var b strings.Builder
	if hasList {
		b.Grow(len(query) + 8*len(params))
	}
	next := 0
	inSingle, inDouble := false, false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == '?' && !inSingle && !inDouble:
			if next >= len(params) {
				tmpl := query
				if hasList {
					tmpl = b.String() + query[i:]
				}
				return "", &ParamCountError{Template: tmpl, Params: len(params)}
			}
			p := params[next]
			next++
			if hasList {
				if l, ok := p.(listParam); ok {
					b.WriteString(placeholderList(slotCount(l)))
				} else {
					b.WriteByte('?')
				}
			}
			continue
		}
		if hasList {
			b.WriteByte(ch)
		}
	}
	if next < len(params) {
		tmpl := query
		if hasList {
			tmpl = b.String()
		}
		return "", &ParamCountError{Template: tmpl, Params: len(params), TooMany: true}
	}
	if !hasList {
		return query, nil
	}
	return b.String(), nil
}

// placeholderList renders n comma-joined placeholders; zero renders nothing.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}

// bindQuery expands the template and flattens the parameters into driver
// arguments in one step.
func bindQuery(query string, params []Param) (string, []any, error) {
	expanded, err := expandQuery(query, params)
	if err != nil {
		return "", nil, err
	}
	args, err := flattenArgs(params)
	if err != nil {
		return "", nil, err
	}
	return expanded, args, nil
}
