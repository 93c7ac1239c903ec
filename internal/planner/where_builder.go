package planner

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"relgraph/internal/introspection"
	"relgraph/internal/sqlutil"
)

// Binding is an ordered parameter-name to value mapping produced by one translation.
type Binding struct {
	names  []string
	values map[string]interface{}
}

func (b *Binding) add(name string, value interface{}) {
	if b.values == nil {
		b.values = make(map[string]interface{})
	}
	b.names = append(b.names, name)
	b.values[name] = value
}

// Names returns the parameter names in allocation order.
func (b Binding) Names() []string {
	return append([]string(nil), b.names...)
}

// Value returns the value bound to name.
func (b Binding) Value(name string) (interface{}, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Len returns the number of bound parameters.
func (b Binding) Len() int {
	return len(b.names)
}

// Map returns a copy of the binding as a plain map.
func (b Binding) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// WhereClause is a translated filter: a boolean SQL expression using
// :name placeholders and the values bound to them.
type WhereClause struct {
	Expression string
	Params     Binding
	// UsedColumns lists referenced columns in first-use order.
	UsedColumns []string
}

// IsEmpty reports whether the clause restricts nothing.
func (w *WhereClause) IsEmpty() bool {
	return w == nil || w.Expression == ""
}

// ToSql implements squirrel.Sqlizer. Named placeholders are rewritten to
// positional ? placeholders in order of appearance, so the clause can be
// embedded in any squirrel builder and re-numbered by its PlaceholderFormat.
func (w *WhereClause) ToSql() (string, []interface{}, error) {
	if w.IsEmpty() {
		return "", nil, nil
	}
	var args []interface{}
	var missing string
	sql := rewriteNamedParams(w.Expression, func(name string) string {
		value, ok := w.Params.Value(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return ":" + name
		}
		args = append(args, value)
		return "?"
	})
	if missing != "" {
		return "", nil, fmt.Errorf("parameter %q is not bound", missing)
	}
	return sql, args, nil
}

// Namespaced returns a copy whose parameters are prefixed, so several clauses
// can share one statement without name collisions.
func (w *WhereClause) Namespaced(prefix string) *WhereClause {
	if w.IsEmpty() || prefix == "" {
		return w
	}
	out := &WhereClause{UsedColumns: append([]string(nil), w.UsedColumns...)}
	for _, name := range w.Params.names {
		out.Params.add(prefix+"_"+name, w.Params.values[name])
	}
	out.Expression = rewriteNamedParams(w.Expression, func(name string) string {
		return ":" + prefix + "_" + name
	})
	return out
}

// Signature is a stable digest of the expression and its values, used to key
// batch groups that share a filter.
func (w *WhereClause) Signature() string {
	if w.IsEmpty() {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(w.Expression))
	for _, name := range w.Params.names {
		_, _ = fmt.Fprintf(h, "|%s=%T:%v", name, w.Params.values[name], w.Params.values[name])
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// rewriteNamedParams replaces every :name token outside quoted sections with
// the string returned by replace.
func rewriteNamedParams(expr string, replace func(name string) string) string {
	var sb strings.Builder
	sb.Grow(len(expr))
	var quote byte
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		if quote != 0 {
			sb.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			sb.WriteByte(ch)
		case ch == ':' && i+1 < len(expr) && isParamChar(expr[i+1]):
			j := i + 1
			for j < len(expr) && isParamChar(expr[j]) {
				j++
			}
			sb.WriteString(replace(expr[i+1 : j]))
			i = j - 1
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

func isParamChar(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// Translator turns filter objects into WhereClauses for registered entities.
type Translator struct {
	provider introspection.Provider
	dialect  sqlutil.Dialect
}

// NewTranslator creates a translator resolving entities through provider.
func NewTranslator(provider introspection.Provider, dialect sqlutil.Dialect) *Translator {
	return &Translator{provider: provider, dialect: dialect}
}

// Translate validates filter against the named entity and renders it.
func (t *Translator) Translate(entityName string, filter interface{}) (*WhereClause, error) {
	entity, err := t.provider.Describe(entityName)
	if err != nil {
		return nil, err
	}
	return TranslateFilter(entity, t.dialect, filter)
}

// TranslateFilter renders filter with columns qualified by the entity's table.
func TranslateFilter(entity *introspection.Entity, dialect sqlutil.Dialect, filter interface{}) (*WhereClause, error) {
	return TranslateFilterQualified(entity, dialect, entity.Table, filter)
}

// TranslateFilterQualified renders filter with columns qualified by alias.
// An empty alias leaves columns unqualified.
func TranslateFilterQualified(entity *introspection.Entity, dialect sqlutil.Dialect, alias string, filter interface{}) (*WhereClause, error) {
	node, err := ParseFilter(entity, filter)
	if err != nil {
		return nil, err
	}
	return RenderFilter(node, dialect, alias), nil
}

// RenderFilter renders a parsed filter. Parameters are named {column}{n}
// where n counts leaves depth-first starting at 1. Groups with more than one
// member are parenthesised when nested; OR groups always are.
func RenderFilter(node FilterNode, dialect sqlutil.Dialect, alias string) *WhereClause {
	r := &filterRenderer{dialect: dialect, alias: alias, seen: make(map[string]bool)}
	clause := &WhereClause{}
	if node != nil {
		clause.Expression = r.render(node, false)
	}
	clause.Params = r.params
	clause.UsedColumns = r.columns
	return clause
}

type filterRenderer struct {
	dialect sqlutil.Dialect
	alias   string
	counter int
	params  Binding
	columns []string
	seen    map[string]bool
}

func (r *filterRenderer) render(node FilterNode, nested bool) string {
	switch n := node.(type) {
	case And:
		return r.group(n.Children, " AND ", "1 = 1", nested)
	case Or:
		return r.group(n.Children, " OR ", "1 = 0", true)
	case Not:
		return "NOT (" + r.renderBare(n.Child) + ")"
	case Compare:
		return r.compare(n)
	default:
		return "1 = 1"
	}
}

// renderBare renders a node that is already enclosed in parentheses.
func (r *filterRenderer) renderBare(node FilterNode) string {
	switch n := node.(type) {
	case And:
		return r.group(n.Children, " AND ", "1 = 1", false)
	case Or:
		return r.group(n.Children, " OR ", "1 = 0", false)
	}
	return r.render(node, false)
}

func (r *filterRenderer) group(children []FilterNode, sep, empty string, parens bool) string {
	switch len(children) {
	case 0:
		return empty
	case 1:
		return r.render(children[0], parens)
	}
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = r.render(child, true)
	}
	joined := strings.Join(parts, sep)
	if parens {
		return "(" + joined + ")"
	}
	return joined
}

var comparisonSQL = map[Operator]string{
	OpEq:  "=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func (r *filterRenderer) compare(c Compare) string {
	r.counter++
	name := r.paramName(c.Column.Name)
	column := r.dialect.QuoteQualified(r.alias, c.Column.Name)
	if !r.seen[c.Column.Name] {
		r.seen[c.Column.Name] = true
		r.columns = append(r.columns, c.Column.Name)
	}

	switch c.Operator {
	case OpIsNull:
		if isNull, _ := c.Value.(bool); !isNull {
			return column + " IS NOT NULL"
		}
		return column + " IS NULL"
	case OpEq, OpGt, OpGte, OpLt, OpLte:
		if c.Value == nil {
			return column + " IS NULL"
		}
		r.params.add(name, c.Value)
		return column + " " + comparisonSQL[c.Operator] + " :" + name
	case OpIn:
		values, _ := c.Value.([]interface{})
		if len(values) == 0 {
			return "1 = 0"
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			elem := r.unique(name + "_" + strconv.Itoa(i))
			r.params.add(elem, v)
			placeholders[i] = ":" + elem
		}
		return column + " IN (" + strings.Join(placeholders, ", ") + ")"
	default:
		s, _ := c.Value.(string)
		pattern := sqlutil.EscapeLike(s)
		switch c.Operator {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern = pattern + "%"
		case OpEndsWith:
			pattern = "%" + pattern
		}
		r.params.add(name, pattern)
		return column + " LIKE :" + name + " " + r.dialect.LikeEscapeClause()
	}
}

// paramName allocates the placeholder for the current leaf. A base ending in
// a digit gets a separator so a1 at leaf 1 and a at leaf 11 stay distinct.
func (r *filterRenderer) paramName(column string) string {
	base := paramBase(column)
	if n := len(base); n > 0 && base[n-1] >= '0' && base[n-1] <= '9' {
		base += "_"
	}
	return r.unique(base + strconv.Itoa(r.counter))
}

// unique returns name, or name with trailing underscores when it is already
// bound in this clause.
func (r *filterRenderer) unique(name string) string {
	for {
		if _, taken := r.params.values[name]; !taken {
			return name
		}
		name += "_"
	}
}

// paramBase maps a column name onto the characters allowed in a placeholder.
func paramBase(column string) string {
	var sb strings.Builder
	for i := 0; i < len(column); i++ {
		if isParamChar(column[i]) {
			sb.WriteByte(column[i])
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
