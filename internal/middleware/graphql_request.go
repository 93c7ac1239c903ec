package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

type graphQLRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// RequestInfo is what the request middleware read from a GraphQL payload.
type RequestInfo struct {
	OperationName  string
	OperationType  string
	DocumentBytes  int
	FieldCount     int
	SelectionDepth int
	VariableCount  int
}

type requestInfoKey struct{}

// RequestInfoFromContext returns the payload summary stored by
// RequestScopeMiddleware.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}

func withRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// analyzeRequest reads the query and operation name without consuming the
// body. A payload that does not parse yields an unknown operation type.
func analyzeRequest(r *http.Request) RequestInfo {
	query, operationName := extractGraphQLRequest(r)
	info := RequestInfo{
		OperationName: operationName,
		OperationType: "unknown",
		DocumentBytes: len(query),
	}
	metadata, err := extractQueryMetadata(query, operationName)
	if err != nil || metadata == nil {
		return info
	}
	if op := strings.TrimSpace(metadata.operationType); op != "" {
		info.OperationType = op
	}
	info.FieldCount = metadata.fieldCount
	info.SelectionDepth = metadata.selectionDepth
	info.VariableCount = metadata.variableCount
	return info
}

type queryMetadata struct {
	operationType  string
	fieldCount     int
	selectionDepth int
	variableCount  int
}

func extractGraphQLRequest(r *http.Request) (string, string) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	case http.MethodPost:
	default:
		return "", ""
	}
	if r.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}
	var payload graphQLRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

func extractQueryMetadata(query, operationName string) (*queryMetadata, error) {
	if query == "" {
		return nil, nil
	}
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		return nil, err
	}

	w := selectionWalker{
		fragments: make(map[string]*ast.FragmentDefinition),
		visited:   make(map[string]bool),
	}
	var target, first *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch def := def.(type) {
		case *ast.FragmentDefinition:
			w.fragments[def.Name.Value] = def
		case *ast.OperationDefinition:
			if first == nil {
				first = def
			}
			if target == nil && operationName != "" && def.Name != nil && def.Name.Value == operationName {
				target = def
			}
		}
	}
	// Without a name the first operation runs; an unmatched name runs nothing.
	if target == nil && operationName == "" {
		target = first
	}
	if target == nil {
		return nil, nil
	}

	metadata := &queryMetadata{
		operationType: string(target.Operation),
		variableCount: len(target.VariableDefinitions),
	}
	metadata.fieldCount, metadata.selectionDepth = w.walk(target.SelectionSet, 1)
	return metadata, nil
}

// selectionWalker counts fields and nesting depth across fragment spreads.
// Each named fragment is expanded once, which also stops spread cycles.
type selectionWalker struct {
	fragments map[string]*ast.FragmentDefinition
	visited   map[string]bool
}

func (w *selectionWalker) walk(set *ast.SelectionSet, depth int) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	merge := func(n, d int) {
		fields += n
		maxDepth = max(maxDepth, d)
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				merge(w.walk(sel.SelectionSet, depth+1))
			}
		case *ast.InlineFragment:
			merge(w.walk(sel.SelectionSet, depth))
		case *ast.FragmentSpread:
			name := sel.Name.Value
			if w.visited[name] {
				continue
			}
			w.visited[name] = true
			if frag, ok := w.fragments[name]; ok {
				merge(w.walk(frag.SelectionSet, depth))
			}
		}
	}
	return fields, maxDepth
}
