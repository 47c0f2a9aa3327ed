package memory

import "strings"

// Project narrows doc to the listed dotted paths. Arrays are narrowed
// element-wise. The id field is always kept.
func Project(doc map[string]any, fields []string) map[string]any {
	tree := map[string]any{}
	for _, f := range append([]string{"id"}, fields...) {
		node := tree
		parts := strings.Split(f, ".")
		for i, p := range parts {
			if i == len(parts)-1 {
				node[p] = true
				break
			}
			next, ok := node[p].(map[string]any)
			if !ok {
				if node[p] == true {
					break
				}
				next = map[string]any{}
				node[p] = next
			}
			node = next
		}
	}
	return projectMap(doc, tree)
}

func projectMap(doc map[string]any, tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for k, sel := range tree {
		v, ok := doc[k]
		if !ok {
			continue
		}
		if sel == true {
			out[k] = v
			continue
		}
		sub := sel.(map[string]any)
		switch t := v.(type) {
		case map[string]any:
			out[k] = projectMap(t, sub)
		case []any:
			items := make([]any, 0, len(t))
			for _, item := range t {
				if m, ok := item.(map[string]any); ok {
					items = append(items, projectMap(m, sub))
				}
			}
			out[k] = items
		}
	}
	return out
}
