package resolver

import (
	"sort"

	"github.com/dolmen-go/jsonmap"
	"github.com/graphql-go/graphql/language/ast"
)

// orderedArg returns the coerced argument name with the key order of the
// literal in the query document restored. graphql-go coerces input objects
// into plain maps, which loses the order filter parameters are numbered in.
// Arguments passed through variables keep the coerced map; the filter
// translator then walks its keys in sorted order.
func orderedArg(field *ast.Field, name string, coerced interface{}) interface{} {
	if field == nil || coerced == nil {
		return coerced
	}
	for _, arg := range field.Arguments {
		if arg.Name != nil && arg.Name.Value == name {
			return orderedValue(arg.Value, coerced)
		}
	}
	return coerced
}

func orderedValue(node ast.Value, coerced interface{}) interface{} {
	switch n := node.(type) {
	case *ast.ObjectValue:
		m, ok := coerced.(map[string]interface{})
		if !ok {
			return coerced
		}
		out := jsonmap.Ordered{Data: make(map[string]interface{}, len(m))}
		for _, f := range n.Fields {
			if f.Name == nil {
				continue
			}
			key := f.Name.Value
			if _, dup := out.Data[key]; dup {
				continue
			}
			v, present := m[key]
			if !present {
				// graphql-go drops explicit null fields while coercing.
				if f.Value == nil || f.Value.GetKind() != "NullValue" {
					continue
				}
				out.Data[key] = nil
				out.Order = append(out.Order, key)
				continue
			}
			out.Data[key] = orderedValue(f.Value, v)
			out.Order = append(out.Order, key)
		}
		var rest []string
		for key := range m {
			if _, seen := out.Data[key]; !seen {
				rest = append(rest, key)
			}
		}
		sort.Strings(rest)
		for _, key := range rest {
			out.Data[key] = m[key]
			out.Order = append(out.Order, key)
		}
		return out
	case *ast.ListValue:
		list, ok := coerced.([]interface{})
		if !ok || len(list) != len(n.Values) {
			return coerced
		}
		out := make([]interface{}, len(list))
		for i := range list {
			out[i] = orderedValue(n.Values[i], list[i])
		}
		return out
	default:
		return coerced
	}
}
